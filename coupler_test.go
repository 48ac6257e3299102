/*
Copyright © 2018 the IceBin authors.
This file is part of IceBin.

IceBin is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

IceBin is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with IceBin.  If not, see <http://www.gnu.org/licenses/>.
*/

package icebin

import (
	"testing"

	"github.com/ctessum/sparse"
)

// testCoupler builds a coupler over testMaker's single-cell atmosphere
// grid, driven by the demo backend.
func testCoupler(t *testing.T) (*IceCoupler, *GCMContracts) {
	mm, sheet := testMaker(t, []float64{1000., 2000.}, 1000.)
	c := NewIceCoupler("testsheet", BackendDismal, mm, sheet)
	g := ModelEGCMContracts()
	err := c.SetupContracts(GCMModelE, CouplingParams{Coupling: DirichletBC}, g,
		BackendConfig{Kind: BackendDismal})
	if err != nil {
		t.Fatal(err)
	}
	return c, g
}

func TestCoupleDismal(t *testing.T) {
	c, g := testCoupler(t)
	if c.State() != StateContractsSet {
		t.Errorf("state after contract setup: have %v, want %v", c.State(), StateContractsSet)
	}

	// All ice sits at 1000 m, so only elevation class 0 feeds the ice
	// grid.
	gcmOvalsE := sparse.ZerosDense(2, g.GCMOutputs.SizeNoUnit())
	lismb, _ := g.GCMOutputs.Index("lismb")
	liseb, _ := g.GCMOutputs.Index("liseb")
	litg2, _ := g.GCMOutputs.Index("litg2")
	gcmOvalsE.Set(2., 0, lismb)
	gcmOvalsE.Set(3., 0, liseb)
	gcmOvalsE.Set(10., 0, litg2)
	scalars := [numIO][]float64{{1.}, {1.}}

	if _, err := c.Couple(0., gcmOvalsE, scalars, true); err == nil {
		t.Fatal("coupling before Realize should fail")
	}
	if err := c.Realize(); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateReady {
		t.Errorf("state after Realize: have %v, want %v", c.State(), StateReady)
	}

	r, err := c.Couple(0., gcmOvalsE, scalars, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.State() != StateCoupling {
		t.Errorf("state after Couple: have %v, want %v", c.State(), StateCoupling)
	}
	if r.IvE == nil {
		t.Error("result is missing the regridding matrix")
	}

	// The demo backend reports its static surface elevation, which
	// comes back to the GCM as elev1 on class 0.
	elev1, _ := g.GCMInputs.Index("elev1")
	if got := r.GcmIvalsE.Get(0, elev1); different(got, 1000., testTolerance) {
		t.Errorf("elev1 class 0: have %g, want 1000", got)
	}
	if got := r.GcmIvalsE.Get(1, elev1); got != 0. {
		t.Errorf("elev1 class 1 is uncovered: have %g, want 0", got)
	}
}

func TestCoupleShapeMismatch(t *testing.T) {
	c, _ := testCoupler(t)
	if err := c.Realize(); err != nil {
		t.Fatal(err)
	}
	scalars := [numIO][]float64{{1.}, {1.}}
	if _, err := c.Couple(0., sparse.ZerosDense(2, 2), scalars, true); err == nil {
		t.Error("wrong field-block shape should fail")
	}
	// A rejected step must not advance the lifecycle.
	if c.State() != StateReady {
		t.Errorf("state after rejected Couple: have %v, want %v", c.State(), StateReady)
	}
	gcmOvalsE := sparse.ZerosDense(2, c.Transformers[Input].Contract(AxisInputs).SizeNoUnit())
	if _, err := c.Couple(0., gcmOvalsE, scalars, true); err != nil {
		t.Errorf("well-shaped Couple after a rejected one: %v", err)
	}
}

func TestSetupContractsLifecycle(t *testing.T) {
	mm, sheet := testMaker(t, []float64{1000., 2000.}, 1000.)
	c := NewIceCoupler("testsheet", BackendDismal, mm, sheet)
	if c.State() != StateUninitialized {
		t.Errorf("initial state: have %v, want %v", c.State(), StateUninitialized)
	}
	if err := c.Realize(); err == nil {
		t.Error("Realize before contract setup should fail")
	}
	g := ModelEGCMContracts()
	err := c.SetupContracts(GCMModelE, CouplingParams{}, g, BackendConfig{Kind: BackendPISM})
	if err == nil {
		t.Error("mismatched backend config kind should fail")
	}
	if err := c.SetupContracts(GCMModelE, CouplingParams{}, g, BackendConfig{Kind: BackendDismal}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetupContracts(GCMModelE, CouplingParams{}, g, BackendConfig{Kind: BackendDismal}); err == nil {
		t.Error("repeated contract setup should fail")
	}
}
