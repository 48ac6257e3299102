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
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// topoVars pairs the TOPO file variable names with their slots, in
// file order.
func (t *TopoFields) topoVars() []struct {
	name string
	data *[]float64
} {
	return []struct {
		name string
		data *[]float64
	}{
		{"FOCEANF", &t.FoceanF},
		{"FGICEF", &t.FgiceF},
		{"ZATMOF", &t.ZatmoF},
		{"FOCEAN", &t.Focean},
		{"FLAKE", &t.Flake},
		{"FGRND", &t.Fgrnd},
		{"FGICE", &t.Fgice},
		{"ZATMO", &t.Zatmo},
		{"ZLAKE", &t.Zlake},
		{"ZICETOP", &t.Zicetop},
	}
}

// ReadTopo reads a TOPO file's surface fractions and topography,
// flattened to sparse atmosphere/ocean indices.
func ReadTopo(fname string) (*TopoFields, error) {
	ff, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening TOPO file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening TOPO file %s: %v", fname, err)
	}
	t := new(TopoFields)
	n := -1
	for _, v := range t.topoVars() {
		data, err := readVarFloat64(f, v.name)
		if err != nil {
			return nil, fmt.Errorf("icebin: TOPO file %s: %v", fname, err)
		}
		if n >= 0 && len(data) != n {
			return nil, fmt.Errorf("icebin: TOPO file %s: variable %s has %d cells, others have %d",
				fname, v.name, len(data), n)
		}
		n = len(data)
		*v.data = data
	}
	return t, nil
}

// WriteTopo writes t as a flat TOPO file.
func WriteTopo(fname string, t *TopoFields) error {
	n := t.Extent()
	if err := t.check(n); err != nil {
		return err
	}
	h := cdf.NewHeader([]string{"nA"}, []int{n})
	for _, v := range t.topoVars() {
		h.AddVariable(v.name, []string{"nA"}, []float64{0})
	}
	h.AddAttribute("FOCEANF", "description", "ocean fraction, unrounded")
	h.AddAttribute("FGICEF", "description", "land ice fraction, unrounded")
	h.AddAttribute("ZICETOP", "units", "m")
	h.AddAttribute("ZATMO", "units", "m")
	h.AddAttribute("ZATMOF", "units", "m")
	h.AddAttribute("ZLAKE", "units", "m")
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("icebin: defining TOPO file %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("icebin: creating TOPO file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating TOPO file %s: %v", fname, err)
	}
	for _, v := range t.topoVars() {
		w := f.Writer(v.name, []int{0}, []int{n})
		if _, err := w.Write(*v.data); err != nil {
			return fmt.Errorf("icebin: writing %s to %s: %v", v.name, fname, err)
		}
	}
	return nil
}

// ReadEOpvAOp reads an elevation-versus-atmosphere matrix file
// written by WriteEOpvAOp, returning the matrix over sparse indices,
// the elevation class definitions, and the elevation-grid indexing.
func ReadEOpvAOp(fname string) (*Matrix, []float64, HCIndex, error) {
	var hc HCIndex
	ff, err := os.Open(fname)
	if err != nil {
		return nil, nil, hc, fmt.Errorf("icebin: opening EC matrix file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, nil, hc, fmt.Errorf("icebin: opening EC matrix file %s: %v", fname, err)
	}
	hc.NA, err = readAttrInt(f, "indexing.nA")
	if err != nil {
		return nil, nil, hc, err
	}
	hc.NHC, err = readAttrInt(f, "indexing.nhc")
	if err != nil {
		return nil, nil, hc, err
	}
	hcdefs, err := readVarFloat64(f, "hcdefs")
	if err != nil {
		return nil, nil, hc, err
	}
	rows, err := readVarInt(f, "EOpvAOp.row")
	if err != nil {
		return nil, nil, hc, err
	}
	cols, err := readVarInt(f, "EOpvAOp.col")
	if err != nil {
		return nil, nil, hc, err
	}
	vals, err := readVarFloat64(f, "EOpvAOp.val")
	if err != nil {
		return nil, nil, hc, err
	}
	if len(rows) != len(cols) || len(rows) != len(vals) {
		return nil, nil, hc, fmt.Errorf("icebin: EC matrix in %s has ragged triplet variables", fname)
	}
	m := NewMatrix(hc.Extent(), hc.NA)
	for i := range rows {
		m.Add(rows[i], cols[i], vals[i])
	}
	return m, hcdefs, hc, nil
}

// WriteEOpvAOp writes a merged elevation-versus-atmosphere matrix,
// its compressed dimension maps, and the merged elevation class
// metadata.
func WriteEOpvAOp(fname string, r *EOpvAOpResult) error {
	nnz := len(r.EOpvAOp.Triplets)
	h := cdf.NewHeader(
		[]string{"nnz", "nEOp", "nAOp", "nhc"},
		[]int{nnz, r.DimEOp.DenseExtent(), r.DimAOp.DenseExtent(), len(r.HCDefs)})
	h.AddVariable("EOpvAOp.row", []string{"nnz"}, []int32{0})
	h.AddVariable("EOpvAOp.col", []string{"nnz"}, []int32{0})
	h.AddVariable("EOpvAOp.val", []string{"nnz"}, []float64{0})
	h.AddVariable("dimEOp", []string{"nEOp"}, []int32{0})
	h.AddVariable("dimAOp", []string{"nAOp"}, []int32{0})
	h.AddVariable("hcdefs", []string{"nhc"}, []float64{0})
	h.AddAttribute("hcdefs", "units", "m")
	h.AddVariable("underice", []string{"nhc"}, []uint8{0})
	h.AddAttribute("underice", "description", "1 where the class is backed by a dynamic ice sheet")
	h.AddAttribute("", "indexing.nA", []int32{int32(r.IndexingHC.NA)})
	h.AddAttribute("", "indexing.nhc", []int32{int32(r.IndexingHC.NHC)})
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("icebin: defining EC matrix file %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("icebin: creating EC matrix file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating EC matrix file %s: %v", fname, err)
	}

	rows := make([]int32, nnz)
	cols := make([]int32, nnz)
	vals := make([]float64, nnz)
	for i, t := range r.EOpvAOp.Triplets {
		rows[i], cols[i], vals[i] = int32(t.Row), int32(t.Col), t.Val
	}
	dimE := make([]int32, r.DimEOp.DenseExtent())
	for i := range dimE {
		dimE[i] = int32(r.DimEOp.ToSparse(i))
	}
	dimA := make([]int32, r.DimAOp.DenseExtent())
	for i := range dimA {
		dimA[i] = int32(r.DimAOp.ToSparse(i))
	}
	underice := make([]uint8, len(r.UndericeHC))
	for i, u := range r.UndericeHC {
		if u {
			underice[i] = 1
		}
	}
	for _, v := range []struct {
		name string
		data interface{}
		n    int
	}{
		{"EOpvAOp.row", rows, nnz},
		{"EOpvAOp.col", cols, nnz},
		{"EOpvAOp.val", vals, nnz},
		{"dimEOp", dimE, len(dimE)},
		{"dimAOp", dimA, len(dimA)},
		{"hcdefs", r.HCDefs, len(r.HCDefs)},
		{"underice", underice, len(underice)},
	} {
		w := f.Writer(v.name, []int{0}, []int{v.n})
		if _, err := w.Write(v.data); err != nil {
			return fmt.Errorf("icebin: writing %s to %s: %v", v.name, fname, err)
		}
	}
	return nil
}
