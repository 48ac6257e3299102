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
	"reflect"
	"testing"
)

// mergeTestMaker builds a two-cell atmosphere grid whose first cell is
// fully covered by a 2x2 local ice sheet at 1200 m.
func mergeTestMaker(t *testing.T) (*MatrixMaker, []ElevMask) {
	atm := NewGridRegular("atm", 2, 1, 2., 2., 0., 0., testSR(t))
	mm := NewMatrixMaker(atm, []float64{1000., 2000.})
	ice := NewGridRegular("ice", 2, 2, 1., 1., 0., 0., testSR(t))
	sheet, err := NewIceSheet("testsheet", ice,
		make([]float64, ice.Extent), make([]bool, ice.Extent))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mm.AddIceSheet(sheet); err != nil {
		t.Fatal(err)
	}
	em := ElevMask{Land: make([]float64, ice.Extent), Ice: make([]float64, ice.Extent)}
	for i := range em.Ice {
		em.Land[i] = 1200.
		em.Ice[i] = 1200.
	}
	return mm, []ElevMask{em}
}

func TestMergeTopo(t *testing.T) {
	mm, elevmasks := mergeTestMaker(t)
	topo := NewTopoFields(2)
	// Cell 0 starts as bare ground; cell 1 is open ocean and must come
	// through the merge untouched.
	topo.Fgrnd[0] = 1.
	topo.Focean[1] = 1.
	topo.FoceanF[1] = 1.
	topo.Zatmo[1] = -5.

	var errs []string
	if err := MergeTopo(topo, mm, elevmasks, &errs); err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected sanity errors: %v", errs)
	}

	if different(topo.Fgice[0], 1., testTolerance) {
		t.Errorf("FGICE[0]: have %g, want 1", topo.Fgice[0])
	}
	if different(topo.Fgrnd[0], 0., testTolerance) {
		t.Errorf("FGRND[0]: have %g, want 0", topo.Fgrnd[0])
	}
	if different(topo.Zicetop[0], 1200., testTolerance) {
		t.Errorf("ZICETOP[0]: have %g, want 1200", topo.Zicetop[0])
	}
	if different(topo.Zatmo[0], 1200., testTolerance) {
		t.Errorf("ZATMO[0]: have %g, want 1200", topo.Zatmo[0])
	}

	if topo.Focean[1] != 1. || topo.Fgice[1] != 0. || topo.Zatmo[1] != -5. {
		t.Errorf("cell 1 changed: FOCEAN=%g FGICE=%g ZATMO=%g",
			topo.Focean[1], topo.Fgice[1], topo.Zatmo[1])
	}
}

func TestMergeTopoSanityErrors(t *testing.T) {
	mm, elevmasks := mergeTestMaker(t)
	topo := NewTopoFields(2)
	// Half-ocean cell: local ice claims the whole cell, driving FGRND
	// negative.
	topo.Focean[0] = 0.5
	topo.Fgrnd[0] = 0.5
	topo.Fgrnd[1] = 1.

	var errs []string
	if err := MergeTopo(topo, mm, elevmasks, &errs); err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 {
		t.Fatalf("sanity errors: have %d (%v), want 1", len(errs), errs)
	}
}

func TestMergeEvASquash(t *testing.T) {
	mm, elevmasks := mergeTestMaker(t)
	indexingGlobal := HCIndex{NA: 2, NHC: 1}
	globalEvA := NewMatrix(indexingGlobal.Extent(), indexingGlobal.NA)
	globalEvA.Add(indexingGlobal.ToE(0, 0), 0, 3.)
	globalEvA.Add(indexingGlobal.ToE(1, 0), 1, 5.)

	var errs []string
	r, err := MergeEvA(globalEvA, []float64{500.}, indexingGlobal, mm, elevmasks, true, &errs)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected sanity errors: %v", errs)
	}

	// Cell 0's global entry is replaced by the local ice area; cell 1
	// keeps its global entry.
	if len(r.EOpvAOp.Triplets) != 2 {
		t.Fatalf("triplet count: have %d, want 2", len(r.EOpvAOp.Triplets))
	}
	t0, t1 := r.EOpvAOp.Triplets[0], r.EOpvAOp.Triplets[1]
	if t0.Row != 0 || t0.Col != 0 || different(t0.Val, 4., testTolerance) {
		t.Errorf("entry 0: have (%d, %d, %g), want (0, 0, 4)", t0.Row, t0.Col, t0.Val)
	}
	if t1.Row != 1 || t1.Col != 1 || t1.Val != 5. {
		t.Errorf("entry 1: have (%d, %d, %g), want (1, 1, 5)", t1.Row, t1.Col, t1.Val)
	}

	if !reflect.DeepEqual(r.HCDefs, []float64{500.}) {
		t.Errorf("merged hcdefs: have %v, want [500]", r.HCDefs)
	}
	if !reflect.DeepEqual(r.UndericeHC, []bool{true}) {
		t.Errorf("underice: have %v, want [true]", r.UndericeHC)
	}
	if r.IndexingHC.NHC != 1 {
		t.Errorf("merged class count: have %d, want 1", r.IndexingHC.NHC)
	}
}

func TestMergeEvAUnsquashed(t *testing.T) {
	mm, elevmasks := mergeTestMaker(t)
	indexingGlobal := HCIndex{NA: 2, NHC: 1}
	globalEvA := NewMatrix(indexingGlobal.Extent(), indexingGlobal.NA)
	globalEvA.Add(indexingGlobal.ToE(0, 0), 0, 3.)
	globalEvA.Add(indexingGlobal.ToE(1, 0), 1, 5.)

	var errs []string
	r, err := MergeEvA(globalEvA, []float64{500.}, indexingGlobal, mm, elevmasks, false, &errs)
	if err != nil {
		t.Fatal(err)
	}

	// Local classes are appended after the global ones, so the 1200 m
	// ice lands in merged class 1 (local class 0).
	if !reflect.DeepEqual(r.HCDefs, []float64{500., 1000., 2000.}) {
		t.Errorf("merged hcdefs: have %v, want [500 1000 2000]", r.HCDefs)
	}
	if !reflect.DeepEqual(r.UndericeHC, []bool{false, true, true}) {
		t.Errorf("underice: have %v, want [false true true]", r.UndericeHC)
	}
	if len(r.EOpvAOp.Triplets) != 2 {
		t.Fatalf("triplet count: have %d, want 2", len(r.EOpvAOp.Triplets))
	}
	local := r.EOpvAOp.Triplets[1]
	wantRow := r.IndexingHC.ToE(0, 1)
	if local.Row != wantRow || local.Col != 0 || different(local.Val, 4., testTolerance) {
		t.Errorf("local entry: have (%d, %d, %g), want (%d, 0, 4)",
			local.Row, local.Col, local.Val, wantRow)
	}
	if _, ok := r.DimEOp.ToDense(wantRow); !ok {
		t.Errorf("DimEOp is missing sparse row %d", wantRow)
	}
	for _, iA := range []int{0, 1} {
		if _, ok := r.DimAOp.ToDense(iA); !ok {
			t.Errorf("DimAOp is missing sparse column %d", iA)
		}
	}
}

func TestMergeEvAIndexingMismatch(t *testing.T) {
	mm, elevmasks := mergeTestMaker(t)
	var errs []string
	_, err := MergeEvA(NewMatrix(3, 3), []float64{500.}, HCIndex{NA: 3, NHC: 1},
		mm, elevmasks, true, &errs)
	if err == nil {
		t.Error("indexing over the wrong grid extent should fail")
	}
}
