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

import "fmt"

// CouplingType selects how the surface boundary condition is handed
// to the ice model.
type CouplingType int

const (
	// DirichletBC prescribes the ice surface temperature.
	DirichletBC CouplingType = iota
	// NeumannBC prescribes the conductive heat flux into the surface.
	NeumannBC
)

func (t CouplingType) String() string {
	switch t {
	case DirichletBC:
		return "DIRICHLET_BC"
	case NeumannBC:
		return "NEUMANN_BC"
	}
	return fmt.Sprintf("CouplingType(%d)", int(t))
}

// CouplingParams holds run-level choices that shape the contracts.
type CouplingParams struct {
	Coupling CouplingType
}

// GCMContracts holds the GCM side's field declarations: what it
// produces each coupling step, what it expects back, and the named
// scalars available to the transformers in each direction.
type GCMContracts struct {
	GCMOutputs *CouplingContract
	GCMInputs  *CouplingContract
	Scalars    [numIO]*CouplingContract
}

// The enthalpy of ModelE's zero-point reference state measured
// against PISM's, in J kg-1. Mass fluxes crossing the boundary carry
// this much extra enthalpy in PISM's accounting.
const enthModelEToPISM = 437000.

// Celsius to Kelvin.
const c2k = 273.15

// mustAdd adds a field whose name and units are compile-time
// constants; a failure is a programming error.
func mustAdd(c *CouplingContract, name string, defaultValue float64, units string, flags uint, description string) {
	if _, err := c.Add(name, defaultValue, units, flags, description); err != nil {
		panic(err)
	}
}

func mustScalarContract(names ...string) *CouplingContract {
	c, err := NewScalarContract(names...)
	if err != nil {
		panic(err)
	}
	return c
}

// ModelEGCMContracts declares ModelE's standard coupling fields: the
// land-ice surface fluxes it produces and the surface state it takes
// back, with a per-timestep scalar for each direction.
func ModelEGCMContracts() *GCMContracts {
	out := NewCouplingContract()
	mustAdd(out, "lismb", 0, "kg m-2 s-1", GridElevation, "surface mass balance of land ice")
	mustAdd(out, "liseb", 0, "W m-2", GridElevation, "enthalpy flux into land ice surface")
	mustAdd(out, "litg2", 0, "degC", GridElevation, "temperature in second land ice layer")

	in := NewCouplingContract()
	mustAdd(in, "elev1", 0, "m", GridIce, "ice upper surface elevation")
	mustAdd(in, "ice_surface_enth", 0, "J kg-1", GridIce, "enthalpy at ice surface")
	mustAdd(in, "ice_surface_enth_depth", 0, "m", GridIce, "depth at which ice_surface_enth is reported")
	mustAdd(in, "basal_runoff.mass", 0, "kg m-2 s-1", GridIce, "basal melt water mass")
	mustAdd(in, "basal_runoff.enth", 0, "W m-2", GridIce, "basal melt water enthalpy")
	mustAdd(in, "calving.mass", 0, "kg m-2 s-1", GridIce, "ice calved into the ocean, mass")
	mustAdd(in, "calving.enth", 0, "W m-2", GridIce, "ice calved into the ocean, enthalpy")
	mustAdd(in, "strain_heating", 0, "W m-2", GridIce, "heat from ice deformation")
	mustAdd(in, "epsilon.mass", 0, "kg m-2 s-1", GridIce, "conservation residual, mass")
	mustAdd(in, "epsilon.enth", 0, "W m-2", GridIce, "conservation residual, enthalpy")

	return &GCMContracts{
		GCMOutputs: out,
		GCMInputs:  in,
		Scalars: [numIO]*CouplingContract{
			mustScalarContract("by_dt"),
			mustScalarContract("by_dt"),
		},
	}
}

// SetupContracts resolves the coupling contracts and the name/unit
// transformations between a GCM and an ice backend. It is a pure
// function of its arguments: the same pairing always yields the same
// contracts.
func SetupContracts(kind BackendKind, gcm GCMKind, params CouplingParams, g *GCMContracts) ([numIO]*CouplingContract, [numIO]*VarTransformer, error) {
	var none [numIO]*CouplingContract
	if gcm != GCMModelE {
		return none, [numIO]*VarTransformer{}, fmt.Errorf("icebin: no contracts defined for GCM kind %v", gcm)
	}
	switch kind {
	case BackendPISM, BackendISSM, BackendDismal:
		return setupModelEIce(params, g)
	case BackendWriter:
		return setupModelEWriter(g)
	}
	return none, [numIO]*VarTransformer{}, fmt.Errorf("icebin: no contracts defined for backend kind %v", kind)
}

// setupModelEIce builds the ModelE to ice-physics contracts. The ice
// model works in SI mass and enthalpy fluxes referenced to its own
// zero point, so the transformers shift the enthalpy reference on the
// way in and back out, and convert ModelE's Celsius surface
// temperature to Kelvin.
func setupModelEIce(params CouplingParams, g *GCMContracts) ([numIO]*CouplingContract, [numIO]*VarTransformer, error) {
	var none [numIO]*CouplingContract

	iceIn := NewCouplingContract()
	mustAdd(iceIn, "surface_downward_mass_flux", 0, "kg m-2 s-1", GridIce, "mass flux into ice upper surface")
	mustAdd(iceIn, "surface_downward_enthalpy_flux", 0, "W m-2", GridIce, "enthalpy flux into ice upper surface")
	switch params.Coupling {
	case DirichletBC:
		mustAdd(iceIn, "surface_temperature", 0, "K", GridIce, "prescribed ice surface temperature")
	case NeumannBC:
		mustAdd(iceIn, "surface_conductive_flux", 0, "W m-2", GridIce, "prescribed conductive heat flux at surface")
	default:
		return none, [numIO]*VarTransformer{}, fmt.Errorf("icebin: unknown coupling type %v", params.Coupling)
	}

	iceOut := NewCouplingContract()
	mustAdd(iceOut, "usurf", 0, "m", GridIce, "ice upper surface elevation")
	mustAdd(iceOut, "ice_surface_enth", 0, "J kg-1", GridIce, "enthalpy at ice surface")
	mustAdd(iceOut, "ice_surface_enth_depth", 0, "m", GridIce, "depth at which ice_surface_enth is reported")
	mustAdd(iceOut, "basal_runoff.mass", 0, "kg m-2 s-1", GridIce, "basal melt water mass")
	mustAdd(iceOut, "basal_runoff.enth", 0, "W m-2", GridIce, "basal melt water enthalpy")
	mustAdd(iceOut, "calving.mass", 0, "kg m-2 s-1", GridIce, "calved ice mass")
	mustAdd(iceOut, "calving.enth", 0, "W m-2", GridIce, "calved ice enthalpy")
	mustAdd(iceOut, "strain_heating", 0, "W m-2", GridIce, "heat from ice deformation")
	mustAdd(iceOut, "epsilon.mass", 0, "kg m-2 s-1", GridIce, "conservation residual, mass")
	mustAdd(iceOut, "epsilon.enth", 0, "W m-2", GridIce, "conservation residual, enthalpy")

	vtIn := NewVarTransformer()
	if err := bindAxes(vtIn, iceIn, g.GCMOutputs, g.Scalars[Input]); err != nil {
		return none, [numIO]*VarTransformer{}, err
	}
	ok := true
	ok = ok && vtIn.Set("surface_downward_mass_flux", "lismb", UnitField, 1.)
	ok = ok && vtIn.Set("surface_downward_enthalpy_flux", "liseb", UnitField, 1.)
	// Mass crossing the boundary carries the enthalpy of ModelE's
	// reference state, which the ice model does not count.
	ok = ok && vtIn.Set("surface_downward_enthalpy_flux", "lismb", UnitField, enthModelEToPISM)
	switch params.Coupling {
	case DirichletBC:
		ok = ok && vtIn.Set("surface_temperature", "litg2", UnitField, 1.)
		ok = ok && vtIn.Set("surface_temperature", UnitField, UnitField, c2k)
	case NeumannBC:
		ok = ok && vtIn.Set("surface_conductive_flux", "liseb", UnitField, 1.)
	}
	if !ok {
		return none, [numIO]*VarTransformer{}, fmt.Errorf("icebin: binding GCM outputs to ice inputs: unresolved field name")
	}

	vtOut := NewVarTransformer()
	if err := bindAxes(vtOut, g.GCMInputs, iceOut, g.Scalars[Output]); err != nil {
		return none, [numIO]*VarTransformer{}, err
	}
	ok = true
	ok = ok && vtOut.Set("elev1", "usurf", UnitField, 1.)
	// Specific enthalpy of the ice surface moves between the two
	// models' reference states directly.
	ok = ok && vtOut.Set("ice_surface_enth", "ice_surface_enth", UnitField, 1.)
	ok = ok && vtOut.Set("ice_surface_enth", UnitField, UnitField, -enthModelEToPISM)
	ok = ok && vtOut.Set("ice_surface_enth_depth", "ice_surface_enth_depth", UnitField, 1.)
	ok = ok && vtOut.Set("strain_heating", "strain_heating", UnitField, 1.)
	// Mass fluxes leaving the ice model give that reference enthalpy
	// back.
	for _, f := range []string{"basal_runoff", "calving", "epsilon"} {
		ok = ok && vtOut.Set(f+".mass", f+".mass", UnitField, 1.)
		ok = ok && vtOut.Set(f+".enth", f+".enth", UnitField, 1.)
		ok = ok && vtOut.Set(f+".enth", f+".mass", UnitField, -enthModelEToPISM)
	}
	if !ok {
		return none, [numIO]*VarTransformer{}, fmt.Errorf("icebin: binding ice outputs to GCM inputs: unresolved field name")
	}

	return [numIO]*CouplingContract{iceIn, iceOut},
		[numIO]*VarTransformer{vtIn, vtOut}, nil
}

// setupModelEWriter builds identity contracts that mirror the GCM's
// own declarations, for runs that only record the exchanged fields.
func setupModelEWriter(g *GCMContracts) ([numIO]*CouplingContract, [numIO]*VarTransformer, error) {
	var none [numIO]*CouplingContract

	iceIn := NewCouplingContract()
	for f := 0; f < g.GCMOutputs.SizeNoUnit(); f++ {
		fld := g.GCMOutputs.Field(f)
		if _, err := iceIn.AddField(CoupledField{
			Name: fld.Name, DefaultValue: fld.DefaultValue, Units: fld.Units,
			Flags: GridIce, Description: fld.Description,
		}); err != nil {
			return none, [numIO]*VarTransformer{}, err
		}
	}
	iceOut := NewCouplingContract()
	for f := 0; f < g.GCMInputs.SizeNoUnit(); f++ {
		if _, err := iceOut.AddField(*g.GCMInputs.Field(f)); err != nil {
			return none, [numIO]*VarTransformer{}, err
		}
	}

	vtIn := NewVarTransformer()
	if err := bindAxes(vtIn, iceIn, g.GCMOutputs, g.Scalars[Input]); err != nil {
		return none, [numIO]*VarTransformer{}, err
	}
	vtOut := NewVarTransformer()
	if err := bindAxes(vtOut, g.GCMInputs, iceOut, g.Scalars[Output]); err != nil {
		return none, [numIO]*VarTransformer{}, err
	}
	for _, vt := range []*VarTransformer{vtIn, vtOut} {
		ok := true
		out := vt.Contract(AxisOutputs)
		for f := 0; f < out.SizeNoUnit(); f++ {
			name := out.Field(f).Name
			ok = ok && vt.Set(name, name, UnitField, 1.)
		}
		if !ok {
			return none, [numIO]*VarTransformer{}, fmt.Errorf("icebin: binding writer contracts: unresolved field name")
		}
	}

	return [numIO]*CouplingContract{iceIn, iceOut},
		[numIO]*VarTransformer{vtIn, vtOut}, nil
}

// bindAxes binds all three transformer axes and allocates the
// coefficient tensor.
func bindAxes(vt *VarTransformer, outputs, inputs, scalars *CouplingContract) error {
	if err := vt.SetNames(AxisOutputs, outputs); err != nil {
		return err
	}
	if err := vt.SetNames(AxisInputs, inputs); err != nil {
		return err
	}
	if err := vt.SetNames(AxisScalars, scalars); err != nil {
		return err
	}
	return vt.Allocate()
}
