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
	"context"
	"math"
	"os"
	"testing"

	"github.com/ctessum/cdf"
)

// sameMaskArray compares elevation arrays treating NaN as equal to NaN.
func sameMaskArray(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.IsNaN(a[i]) && math.IsNaN(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestElevMaskRoundTrip(t *testing.T) {
	path := "testElevMask.nc"
	defer os.Remove(path)

	want := &ElevMask{
		Land: []float64{100., 250., math.NaN(), 0.},
		Ice:  []float64{100., math.NaN(), math.NaN(), 0.},
	}
	if err := WriteElevMask(want, path); err != nil {
		t.Fatal(err)
	}

	src := NewElevMaskSource(4)
	got, err := src.Read(context.Background(), "icebin:"+path)
	if err != nil {
		t.Fatal(err)
	}
	if !sameMaskArray(got.Land, want.Land) {
		t.Errorf("land: have %v, want %v", got.Land, want.Land)
	}
	if !sameMaskArray(got.Ice, want.Ice) {
		t.Errorf("ice: have %v, want %v", got.Ice, want.Ice)
	}

	masks, err := src.ReadAll(context.Background(), []string{"icebin:" + path, "icebin:" + path})
	if err != nil {
		t.Fatal(err)
	}
	if len(masks) != 2 || !sameMaskArray(masks[1].Ice, want.Ice) {
		t.Errorf("ReadAll returned %d masks", len(masks))
	}
}

// writeTestPISMState writes a minimal PISM state file with the given
// bed topography, ice thickness, and surface type codes.
func writeTestPISMState(t *testing.T, path string, topg, thk, mask []float64) {
	h := cdf.NewHeader([]string{"nI"}, []int{len(topg)})
	h.AddVariable("topg", []string{"nI"}, []float64{0})
	h.AddVariable("thk", []string{"nI"}, []float64{0})
	h.AddVariable("mask", []string{"nI"}, []float64{0})
	h.Define()
	for _, err := range h.Check() {
		t.Fatal(err)
	}
	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string][]float64{"topg": topg, "thk": thk, "mask": mask} {
		w := f.Writer(name, []int{0}, []int{len(data)})
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadElevMaskPISM(t *testing.T) {
	path := "testPISMState.nc"
	defer os.Remove(path)

	// One cell per PISM surface type: grounded ice, floating ice,
	// ice-free land, and open ocean.
	topg := []float64{100., -200., 50., -3000.}
	thk := []float64{900., 300., 0., 0.}
	mask := []float64{2., 3., 0., 4.}
	writeTestPISMState(t, path, topg, thk, mask)

	em, err := ReadElevMaskPISM(path)
	if err != nil {
		t.Fatal(err)
	}
	wantIce := []float64{1000., 100., math.NaN(), math.NaN()}
	wantLand := []float64{1000., 100., 50., math.NaN()}
	if !sameMaskArray(em.Ice, wantIce) {
		t.Errorf("ice: have %v, want %v", em.Ice, wantIce)
	}
	if !sameMaskArray(em.Land, wantLand) {
		t.Errorf("land: have %v, want %v", em.Land, wantLand)
	}
}

func TestElevMaskSpecErrors(t *testing.T) {
	src := NewElevMaskSource(4)
	if _, err := src.Read(context.Background(), "no-colon-here"); err == nil {
		t.Error("spec without a format prefix should fail")
	}
	if _, err := src.Read(context.Background(), "giss:whatever.nc"); err == nil {
		t.Error("unknown format should fail")
	}
}
