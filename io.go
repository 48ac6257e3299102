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
	"strings"

	"github.com/ctessum/cdf"
)

// This file persists regridding state to NetCDF. A weighted matrix is
// stored in coordinate form as three parallel variables name.row,
// name.col and name.val plus a weight vector, so files stay sparse no
// matter the grid extents. Grid geometry is not stored: grids are
// rebuilt programmatically and the files carry only the state layered
// on top of them.

// WriteWeighted writes w to fname in coordinate form, compressing w
// in place first.
func WriteWeighted(fname, name string, w *Weighted) error {
	if err := w.Check(); err != nil {
		return err
	}
	w.M.Compress()
	w.Weight.Compress()
	m, wt := w.M, w.Weight
	h := cdf.NewHeader(
		[]string{name + ".nnz", name + ".nweight"},
		[]int{len(m.Triplets), len(wt.Elements)})
	h.AddVariable(name+".row", []string{name + ".nnz"}, []int32{0})
	h.AddVariable(name+".col", []string{name + ".nnz"}, []int32{0})
	h.AddVariable(name+".val", []string{name + ".nnz"}, []float64{0})
	h.AddVariable(name+".weight.ix", []string{name + ".nweight"}, []int32{0})
	h.AddVariable(name+".weight.val", []string{name + ".nweight"}, []float64{0})
	h.AddAttribute("", name+".rows", []int32{int32(m.Rows)})
	h.AddAttribute("", name+".cols", []int32{int32(m.Cols)})
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("icebin: defining matrix file %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("icebin: creating matrix file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating matrix file %s: %v", fname, err)
	}

	rows := make([]int32, len(m.Triplets))
	cols := make([]int32, len(m.Triplets))
	vals := make([]float64, len(m.Triplets))
	for i, t := range m.Triplets {
		rows[i], cols[i], vals[i] = int32(t.Row), int32(t.Col), t.Val
	}
	wix := make([]int32, len(wt.Elements))
	wval := make([]float64, len(wt.Elements))
	for i, e := range wt.Elements {
		wix[i], wval[i] = int32(e.Index), e.Val
	}
	for _, v := range []struct {
		name string
		data interface{}
		n    int
	}{
		{name + ".row", rows, len(rows)},
		{name + ".col", cols, len(cols)},
		{name + ".val", vals, len(vals)},
		{name + ".weight.ix", wix, len(wix)},
		{name + ".weight.val", wval, len(wval)},
	} {
		wtr := f.Writer(v.name, []int{0}, []int{v.n})
		if _, err := wtr.Write(v.data); err != nil {
			return fmt.Errorf("icebin: writing %s to %s: %v", v.name, fname, err)
		}
	}
	return nil
}

// ReadWeighted reads a matrix written by WriteWeighted.
func ReadWeighted(fname, name string) (*Weighted, error) {
	ff, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening matrix file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening matrix file %s: %v", fname, err)
	}

	rows, err := readAttrInt(f, name+".rows")
	if err != nil {
		return nil, err
	}
	cols, err := readAttrInt(f, name+".cols")
	if err != nil {
		return nil, err
	}
	w := NewWeighted(rows, cols)

	mrow, err := readVarInt(f, name+".row")
	if err != nil {
		return nil, err
	}
	mcol, err := readVarInt(f, name+".col")
	if err != nil {
		return nil, err
	}
	mval, err := readVarFloat64(f, name+".val")
	if err != nil {
		return nil, err
	}
	if len(mrow) != len(mcol) || len(mrow) != len(mval) {
		return nil, fmt.Errorf("icebin: matrix %s in %s has ragged triplet variables", name, fname)
	}
	for i := range mrow {
		w.M.Add(mrow[i], mcol[i], mval[i])
	}
	wix, err := readVarInt(f, name+".weight.ix")
	if err != nil {
		return nil, err
	}
	wval, err := readVarFloat64(f, name+".weight.val")
	if err != nil {
		return nil, err
	}
	if len(wix) != len(wval) {
		return nil, fmt.Errorf("icebin: weight vector %s in %s has ragged variables", name, fname)
	}
	for i := range wix {
		w.Weight.Add(wix[i], wval[i])
	}
	if err := w.Check(); err != nil {
		return nil, fmt.Errorf("icebin: matrix %s in %s: %v", name, fname, err)
	}
	return w, nil
}

// WriteMatrixMaker writes mm's non-geometric state: the elevation
// class definitions, the registered sheet names, and each sheet's
// elevation and mask fields. eqRad records the sphere radius the
// grids were built against; zero means unset.
func WriteMatrixMaker(fname string, mm *MatrixMaker, eqRad float64) error {
	sheets := mm.Sheets()
	dims := []string{"nhc"}
	lengths := []int{mm.NHC()}
	for _, s := range sheets {
		dims = append(dims, "sheet."+s.Name+".nI")
		lengths = append(lengths, s.Grid.Extent)
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddVariable("hcdefs", []string{"nhc"}, []float64{0})
	h.AddAttribute("hcdefs", "units", "m")
	names := make([]string, len(sheets))
	for i, s := range sheets {
		names[i] = s.Name
		dim := []string{"sheet." + s.Name + ".nI"}
		h.AddVariable("sheet."+s.Name+".elev", dim, []float64{0})
		h.AddAttribute("sheet."+s.Name+".elev", "units", "m")
		h.AddVariable("sheet."+s.Name+".mask", dim, []uint8{0})
	}
	h.AddAttribute("", "sheetnames", strings.Join(names, ","))
	if eqRad != 0 {
		h.AddAttribute("", "eq_rad", []float64{eqRad})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("icebin: defining regridder file %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("icebin: creating regridder file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating regridder file %s: %v", fname, err)
	}

	w := f.Writer("hcdefs", []int{0}, []int{mm.NHC()})
	if _, err := w.Write(mm.HCDefs); err != nil {
		return fmt.Errorf("icebin: writing hcdefs to %s: %v", fname, err)
	}
	for _, s := range sheets {
		w = f.Writer("sheet."+s.Name+".elev", []int{0}, []int{s.Grid.Extent})
		if _, err := w.Write(s.ElevI); err != nil {
			return fmt.Errorf("icebin: writing sheet %s to %s: %v", s.Name, fname, err)
		}
		mask := make([]uint8, s.Grid.Extent)
		for i, m := range s.MaskI {
			if m {
				mask[i] = 1
			}
		}
		w = f.Writer("sheet."+s.Name+".mask", []int{0}, []int{s.Grid.Extent})
		if _, err := w.Write(mask); err != nil {
			return fmt.Errorf("icebin: writing sheet %s to %s: %v", s.Name, fname, err)
		}
	}
	return nil
}

// ReadMatrixMakerInto reads a file written by WriteMatrixMaker and
// applies its state to mm, whose grids and sheets must already be
// registered under the same names. It returns the stored eq_rad, or
// zero if the file carries none.
func ReadMatrixMakerInto(fname string, mm *MatrixMaker) (float64, error) {
	ff, err := os.Open(fname)
	if err != nil {
		return 0, fmt.Errorf("icebin: opening regridder file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return 0, fmt.Errorf("icebin: opening regridder file %s: %v", fname, err)
	}

	hcdefs, err := readVarFloat64(f, "hcdefs")
	if err != nil {
		return 0, err
	}
	mm.HCDefs = hcdefs

	namesAttr, ok := f.Header.GetAttribute("", "sheetnames").(string)
	if !ok {
		return 0, fmt.Errorf("icebin: regridder file %s has no sheetnames attribute", fname)
	}
	for _, name := range strings.Split(namesAttr, ",") {
		if name == "" {
			continue
		}
		sheet, ok := mm.Sheet(name)
		if !ok {
			return 0, fmt.Errorf("icebin: regridder file %s names unregistered ice sheet %q", fname, name)
		}
		elev, err := readVarFloat64(f, "sheet."+name+".elev")
		if err != nil {
			return 0, err
		}
		maskv, err := readVarInt(f, "sheet."+name+".mask")
		if err != nil {
			return 0, err
		}
		if len(maskv) != len(elev) {
			return 0, fmt.Errorf("icebin: sheet %s in %s has ragged elevation and mask", name, fname)
		}
		mask := make([]bool, len(maskv))
		for i, m := range maskv {
			mask[i] = m != 0
		}
		if err := sheet.SetElev(elev, mask); err != nil {
			return 0, err
		}
	}

	var eqRad float64
	if v, ok := f.Header.GetAttribute("", "eq_rad").([]float64); ok && len(v) > 0 {
		eqRad = v[0]
	}
	return eqRad, nil
}

// Contracts are stored as parallel defaults/flags variables plus
// field-name and unit attributes, so a checkpointed coupler setup can
// be rebuilt without the code that declared it.

func defineContract(h *cdf.Header, name string, c *CouplingContract) {
	dim := []string{name + ".nfields"}
	h.AddVariable(name+".defaults", dim, []float64{0})
	h.AddVariable(name+".flags", dim, []int32{0})
	names := make([]string, c.SizeNoUnit())
	for i := range names {
		fld := c.Field(i)
		names[i] = fld.Name
		if fld.Units != "" {
			h.AddAttribute("", name+"."+fld.Name+".units", fld.Units)
		}
		if fld.Description != "" {
			h.AddAttribute("", name+"."+fld.Name+".description", fld.Description)
		}
	}
	h.AddAttribute("", name+".fields", strings.Join(names, ","))
}

func writeContract(f *cdf.File, name string, c *CouplingContract) error {
	n := c.SizeNoUnit()
	defaults := make([]float64, n)
	flags := make([]int32, n)
	for i := 0; i < n; i++ {
		fld := c.Field(i)
		defaults[i] = fld.DefaultValue
		flags[i] = int32(fld.Flags)
	}
	for _, v := range []struct {
		name string
		data interface{}
	}{
		{name + ".defaults", defaults},
		{name + ".flags", flags},
	} {
		w := f.Writer(v.name, []int{0}, []int{n})
		if _, err := w.Write(v.data); err != nil {
			return fmt.Errorf("icebin: writing %s: %v", v.name, err)
		}
	}
	return nil
}

func readContract(f *cdf.File, name string) (*CouplingContract, error) {
	namesAttr, ok := f.Header.GetAttribute("", name+".fields").(string)
	if !ok {
		return nil, fmt.Errorf("icebin: file has no contract named %q", name)
	}
	defaults, err := readVarFloat64(f, name+".defaults")
	if err != nil {
		return nil, err
	}
	flags, err := readVarInt(f, name+".flags")
	if err != nil {
		return nil, err
	}
	c := NewCouplingContract()
	for i, fieldName := range strings.Split(namesAttr, ",") {
		if fieldName == "" {
			continue
		}
		if i >= len(defaults) || i >= len(flags) {
			return nil, fmt.Errorf("icebin: contract %s names more fields than it stores", name)
		}
		units, _ := f.Header.GetAttribute("", name+"."+fieldName+".units").(string)
		desc, _ := f.Header.GetAttribute("", name+"."+fieldName+".description").(string)
		if _, err := c.Add(fieldName, defaults[i], units, uint(flags[i]), desc); err != nil {
			return nil, fmt.Errorf("icebin: contract %s: %v", name, err)
		}
	}
	return c, nil
}

// WriteContract writes one coupling contract to fname.
func WriteContract(fname, name string, c *CouplingContract) error {
	h := cdf.NewHeader([]string{name + ".nfields"}, []int{c.SizeNoUnit()})
	defineContract(h, name, c)
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("icebin: defining contract file %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("icebin: creating contract file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating contract file %s: %v", fname, err)
	}
	return writeContract(f, name, c)
}

// ReadContract reads a contract written by WriteContract.
func ReadContract(fname, name string) (*CouplingContract, error) {
	ff, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening contract file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening contract file %s: %v", fname, err)
	}
	return readContract(f, name)
}

var transformerAxes = []struct {
	axis  TransformerAxis
	label string
}{
	{AxisOutputs, "outputs"},
	{AxisInputs, "inputs"},
	{AxisScalars, "scalars"},
}

// WriteVarTransformer writes an allocated transformer and its three
// axis contracts to fname.
func WriteVarTransformer(fname, name string, vt *VarTransformer) error {
	if vt.coeff == nil {
		return fmt.Errorf("icebin: writing unallocated transformer %s", name)
	}
	var dims []string
	var lengths []int
	for _, a := range transformerAxes {
		dims = append(dims, name+"."+a.label+".nfields")
		lengths = append(lengths, vt.contracts[a.axis].SizeNoUnit())
	}
	dims = append(dims, name+".ncoeff")
	lengths = append(lengths, len(vt.coeff))
	h := cdf.NewHeader(dims, lengths)
	for _, a := range transformerAxes {
		defineContract(h, name+"."+a.label, vt.contracts[a.axis])
	}
	h.AddVariable(name+".coeff", []string{name + ".ncoeff"}, []float64{0})
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("icebin: defining transformer file %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("icebin: creating transformer file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating transformer file %s: %v", fname, err)
	}
	for _, a := range transformerAxes {
		if err := writeContract(f, name+"."+a.label, vt.contracts[a.axis]); err != nil {
			return err
		}
	}
	w := f.Writer(name+".coeff", []int{0}, []int{len(vt.coeff)})
	if _, err := w.Write(vt.coeff); err != nil {
		return fmt.Errorf("icebin: writing %s.coeff to %s: %v", name, fname, err)
	}
	return nil
}

// ReadVarTransformer reads a transformer written by
// WriteVarTransformer, reconstructing its axis contracts.
func ReadVarTransformer(fname, name string) (*VarTransformer, error) {
	ff, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening transformer file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening transformer file %s: %v", fname, err)
	}
	vt := NewVarTransformer()
	for _, a := range transformerAxes {
		c, err := readContract(f, name+"."+a.label)
		if err != nil {
			return nil, err
		}
		if err := vt.SetNames(a.axis, c); err != nil {
			return nil, err
		}
	}
	if err := vt.Allocate(); err != nil {
		return nil, err
	}
	coeff, err := readVarFloat64(f, name+".coeff")
	if err != nil {
		return nil, err
	}
	if len(coeff) != len(vt.coeff) {
		return nil, fmt.Errorf("icebin: transformer %s in %s stores %d coefficients, contracts imply %d",
			name, fname, len(coeff), len(vt.coeff))
	}
	copy(vt.coeff, coeff)
	return vt, nil
}

// readVarInt reads an integer variable of any NetCDF width.
func readVarInt(f *cdf.File, name string) ([]int, error) {
	if !hasVar(f, name) {
		return nil, fmt.Errorf("icebin: file has no variable %q", name)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("icebin: reading variable %q: %v", name, err)
	}
	switch v := buf.(type) {
	case []int32:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out, nil
	case []int16:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out, nil
	case []uint8:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("icebin: variable %q is not an integer type", name)
}

func readAttrInt(f *cdf.File, name string) (int, error) {
	v, ok := f.Header.GetAttribute("", name).([]int32)
	if !ok || len(v) == 0 {
		return 0, fmt.Errorf("icebin: file has no attribute %q", name)
	}
	return int(v[0]), nil
}

func hasVar(f *cdf.File, name string) bool {
	for _, v := range f.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}
