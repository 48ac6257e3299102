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
	"os"
	"reflect"
	"testing"
)

func TestWeightedRoundTrip(t *testing.T) {
	fname := "testWeighted.nc"
	defer os.Remove(fname)

	w := NewWeighted(3, 4)
	w.M.Add(2, 3, 4.)
	w.M.Add(0, 1, 2.)
	w.M.Add(0, 0, 1.)
	w.Weight.Add(0, 3.)
	w.Weight.Add(2, 4.)
	if err := WriteWeighted(fname, "IvE", w); err != nil {
		t.Fatal(err)
	}

	got, err := ReadWeighted(fname, "IvE")
	if err != nil {
		t.Fatal(err)
	}
	if got.M.Rows != 3 || got.M.Cols != 4 {
		t.Errorf("shape: have %dx%d, want 3x4", got.M.Rows, got.M.Cols)
	}
	// WriteWeighted compressed w in place, so the two are directly
	// comparable.
	if !reflect.DeepEqual(got.M.Triplets, w.M.Triplets) {
		t.Errorf("triplets: have %v, want %v", got.M.Triplets, w.M.Triplets)
	}
	if !reflect.DeepEqual(got.Weight.Elements, w.Weight.Elements) {
		t.Errorf("weight: have %v, want %v", got.Weight.Elements, w.Weight.Elements)
	}
}

func TestMatrixMakerRoundTrip(t *testing.T) {
	fname := "testRegridder.nc"
	defer os.Remove(fname)

	mm, _ := testMaker(t, []float64{1000., 2000.}, 1100.)
	const eqRad = 6.371e6
	if err := WriteMatrixMaker(fname, mm, eqRad); err != nil {
		t.Fatal(err)
	}

	// The reader applies state to pre-registered sheets, so build a
	// fresh registry with empty elevations.
	mm2, sheet2 := testMaker(t, nil, 0.)
	gotRad, err := ReadMatrixMakerInto(fname, mm2)
	if err != nil {
		t.Fatal(err)
	}
	if gotRad != eqRad {
		t.Errorf("eq_rad: have %g, want %g", gotRad, eqRad)
	}
	if !reflect.DeepEqual(mm2.HCDefs, mm.HCDefs) {
		t.Errorf("hcdefs: have %v, want %v", mm2.HCDefs, mm.HCDefs)
	}
	for i, e := range sheet2.ElevI {
		if e != 1100. || !sheet2.MaskI[i] {
			t.Fatalf("sheet cell %d: have (%g, %v), want (1100, true)", i, e, sheet2.MaskI[i])
		}
	}
}

func TestTopoRoundTrip(t *testing.T) {
	fname := "testTopo.nc"
	defer os.Remove(fname)

	topo := NewTopoFields(3)
	v := 0.
	for _, f := range topo.topoVars() {
		for i := range *f.data {
			(*f.data)[i] = v
			v++
		}
	}
	if err := WriteTopo(fname, topo); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTopo(fname)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, topo) {
		t.Errorf("have %+v, want %+v", got, topo)
	}
}

func TestContractRoundTrip(t *testing.T) {
	fname := "testContract.nc"
	defer os.Remove(fname)

	c := NewCouplingContract()
	c.Add("lismb", 0., "kg m-2 s-1", GridElevation|FlagInitial, "mass flux into the ice sheet")
	c.Add("litg2", 273.15, "K", GridElevation, "")
	if err := WriteContract(fname, "outputs", c); err != nil {
		t.Fatal(err)
	}

	got, err := ReadContract(fname, "outputs")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Fields(), c.Fields()) {
		t.Errorf("have %v, want %v", got.Fields(), c.Fields())
	}
	if _, err := ReadContract(fname, "nosuch"); err == nil {
		t.Error("reading a contract the file does not hold should fail")
	}
}

func TestVarTransformerRoundTrip(t *testing.T) {
	fname := "testTransformer.nc"
	defer os.Remove(fname)

	outputs := NewCouplingContract()
	outputs.Add("massxfer", 0., "kg m-2 s-1", GridIce, "")
	inputs := NewCouplingContract()
	inputs.Add("smb", 0., "kg m-2 s-1", GridIce, "")
	scalars := NewCouplingContract()
	scalars.Add("by_dt", 0., "s-1", 0, "")

	vt := NewVarTransformer()
	vt.SetNames(AxisOutputs, outputs)
	vt.SetNames(AxisInputs, inputs)
	vt.SetNames(AxisScalars, scalars)
	if err := WriteVarTransformer(fname, "gcmi", vt); err == nil {
		t.Fatal("writing an unallocated transformer should fail")
	}
	if err := vt.Allocate(); err != nil {
		t.Fatal(err)
	}
	if !vt.Set("massxfer", "smb", "by_dt", 2.) ||
		!vt.Set("massxfer", UnitField, UnitField, 5.) {
		t.Fatal("Set failed")
	}
	if err := WriteVarTransformer(fname, "gcmi", vt); err != nil {
		t.Fatal(err)
	}

	got, err := ReadVarTransformer(fname, "gcmi")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.coeff, vt.coeff) {
		t.Errorf("coeff: have %v, want %v", got.coeff, vt.coeff)
	}
	// dt = 0.5 s: out = 2*smb/dt + 5.
	y, err := got.Apply([]float64{3.}, []float64{2.})
	if err != nil {
		t.Fatal(err)
	}
	if want := 2.*3.*2. + 5.; different(y[0], want, testTolerance) {
		t.Errorf("applied: have %g, want %g", y[0], want)
	}
}

func TestEOpvAOpRoundTrip(t *testing.T) {
	fname := "testEOpvAOp.nc"
	defer os.Remove(fname)

	indexing := HCIndex{NA: 2, NHC: 2}
	m := NewMatrix(indexing.Extent(), indexing.NA)
	m.Add(0, 0, 3.)
	m.Add(3, 1, 4.)
	dimE := NewSparseSet(indexing.Extent())
	dimA := NewSparseSet(indexing.NA)
	for _, tr := range m.Triplets {
		dimE.AddDense(tr.Row)
		dimA.AddDense(tr.Col)
	}
	r := &EOpvAOpResult{
		EOpvAOp:    m,
		DimEOp:     dimE,
		DimAOp:     dimA,
		HCDefs:     []float64{500., 1000.},
		IndexingHC: indexing,
		UndericeHC: []bool{false, true},
	}
	if err := WriteEOpvAOp(fname, r); err != nil {
		t.Fatal(err)
	}

	gotM, gotHCDefs, gotIndexing, err := ReadEOpvAOp(fname)
	if err != nil {
		t.Fatal(err)
	}
	if gotIndexing != indexing {
		t.Errorf("indexing: have %+v, want %+v", gotIndexing, indexing)
	}
	if !reflect.DeepEqual(gotHCDefs, r.HCDefs) {
		t.Errorf("hcdefs: have %v, want %v", gotHCDefs, r.HCDefs)
	}
	if !reflect.DeepEqual(gotM.Triplets, m.Triplets) {
		t.Errorf("triplets: have %v, want %v", gotM.Triplets, m.Triplets)
	}
	if gotM.Rows != indexing.Extent() || gotM.Cols != indexing.NA {
		t.Errorf("shape: have %dx%d, want %dx%d",
			gotM.Rows, gotM.Cols, indexing.Extent(), indexing.NA)
	}
}
