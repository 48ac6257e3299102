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

import "testing"

func TestSetupContractsDirichlet(t *testing.T) {
	g := ModelEGCMContracts()
	contracts, transformers, err := SetupContracts(BackendPISM, GCMModelE,
		CouplingParams{Coupling: DirichletBC}, g)
	if err != nil {
		t.Fatal(err)
	}

	iceIn := contracts[Input]
	for _, name := range []string{"surface_downward_mass_flux",
		"surface_downward_enthalpy_flux", "surface_temperature"} {
		if _, ok := iceIn.Index(name); !ok {
			t.Errorf("ice input contract is missing %s", name)
		}
	}

	// Mass crossing the boundary carries the reference-state enthalpy.
	c, err := transformers[Input].Coeff("surface_downward_enthalpy_flux", "lismb", UnitField)
	if err != nil {
		t.Fatal(err)
	}
	if c != enthModelEToPISM {
		t.Errorf("enthalpy correction: have %g, want %g", c, enthModelEToPISM)
	}

	// GCM outputs in contract order: lismb, liseb, litg2.
	y, err := transformers[Input].Apply([]float64{1., 2., 10.}, []float64{1.})
	if err != nil {
		t.Fatal(err)
	}
	mass, _ := iceIn.Index("surface_downward_mass_flux")
	enth, _ := iceIn.Index("surface_downward_enthalpy_flux")
	temp, _ := iceIn.Index("surface_temperature")
	if y[mass] != 1. {
		t.Errorf("mass flux: have %g, want 1", y[mass])
	}
	if different(y[enth], 2.+enthModelEToPISM, testTolerance) {
		t.Errorf("enthalpy flux: have %g, want %g", y[enth], 2.+enthModelEToPISM)
	}
	if different(y[temp], 10.+c2k, testTolerance) {
		t.Errorf("surface temperature: have %g, want %g", y[temp], 10.+c2k)
	}

	// Ice outputs in contract order; give the model a surface
	// elevation and some basal melt.
	iceOut := contracts[Output]
	outVec := make([]float64, iceOut.SizeNoUnit())
	usurf, _ := iceOut.Index("usurf")
	brMass, _ := iceOut.Index("basal_runoff.mass")
	brEnth, _ := iceOut.Index("basal_runoff.enth")
	outVec[usurf] = 100.
	outVec[brMass] = 2.
	outVec[brEnth] = 5.
	back, err := transformers[Output].Apply(outVec, []float64{1.})
	if err != nil {
		t.Fatal(err)
	}
	// The surface enthalpy state shifts between reference states.
	c, err = transformers[Output].Coeff("ice_surface_enth", UnitField, UnitField)
	if err != nil {
		t.Fatal(err)
	}
	if c != -enthModelEToPISM {
		t.Errorf("surface enthalpy shift: have %g, want %g", c, -enthModelEToPISM)
	}

	elev1, _ := g.GCMInputs.Index("elev1")
	gMass, _ := g.GCMInputs.Index("basal_runoff.mass")
	gEnth, _ := g.GCMInputs.Index("basal_runoff.enth")
	if back[elev1] != 100. {
		t.Errorf("elev1: have %g, want 100", back[elev1])
	}
	if back[gMass] != 2. {
		t.Errorf("basal_runoff.mass: have %g, want 2", back[gMass])
	}
	if want := 5. - 2.*enthModelEToPISM; different(back[gEnth], want, testTolerance) {
		t.Errorf("basal_runoff.enth: have %g, want %g", back[gEnth], want)
	}
}

func TestSetupContractsNeumann(t *testing.T) {
	g := ModelEGCMContracts()
	contracts, transformers, err := SetupContracts(BackendPISM, GCMModelE,
		CouplingParams{Coupling: NeumannBC}, g)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := contracts[Input].Index("surface_temperature"); ok {
		t.Error("Neumann coupling should not prescribe a surface temperature")
	}
	if _, ok := contracts[Input].Index("surface_conductive_flux"); !ok {
		t.Error("Neumann coupling should prescribe a conductive flux")
	}
	c, err := transformers[Input].Coeff("surface_conductive_flux", "liseb", UnitField)
	if err != nil {
		t.Fatal(err)
	}
	if c != 1. {
		t.Errorf("conductive flux coefficient: have %g, want 1", c)
	}
}

func TestSetupContractsWriter(t *testing.T) {
	g := ModelEGCMContracts()
	contracts, transformers, err := SetupContracts(BackendWriter, GCMModelE,
		CouplingParams{}, g)
	if err != nil {
		t.Fatal(err)
	}
	// The writer contracts mirror the GCM's own field declarations.
	if contracts[Input].SizeNoUnit() != g.GCMOutputs.SizeNoUnit() {
		t.Errorf("writer input fields: have %d, want %d",
			contracts[Input].SizeNoUnit(), g.GCMOutputs.SizeNoUnit())
	}
	y, err := transformers[Input].Apply([]float64{1., 2., 3.}, []float64{1.})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < contracts[Input].SizeNoUnit(); i++ {
		if y[i] != float64(i+1) {
			t.Errorf("field %d: have %g, want %d", i, y[i], i+1)
		}
	}
}

func TestSetupContractsUnknownKinds(t *testing.T) {
	g := ModelEGCMContracts()
	if _, _, err := SetupContracts(BackendKind(99), GCMModelE, CouplingParams{}, g); err == nil {
		t.Error("unknown backend kind should fail")
	}
	if _, _, err := SetupContracts(BackendPISM, GCMKind(99), CouplingParams{}, g); err == nil {
		t.Error("unknown GCM kind should fail")
	}
}
