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
	"math"
	"sort"

	"github.com/ctessum/sparse"
)

// A Triplet is one coordinate-form matrix entry over sparse indices.
type Triplet struct {
	Row, Col int
	Val      float64
}

// A Matrix is a sparse matrix in coordinate form. Triplets are kept in
// insertion order and duplicates are allowed; duplicate entries at the
// same (row, col) are summed by SumDuplicates or Compress.
type Matrix struct {
	Rows, Cols int
	Triplets   []Triplet
}

// NewMatrix creates an empty matrix with the given shape.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols}
}

// Add appends the entry (row, col, val).
func (m *Matrix) Add(row, col int, val float64) {
	m.Triplets = append(m.Triplets, Triplet{Row: row, Col: col, Val: val})
}

// Append concatenates the entries of o onto m. The shapes must match.
func (m *Matrix) Append(o *Matrix) error {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return fmt.Errorf("icebin: appending %dx%d matrix to %dx%d matrix",
			o.Rows, o.Cols, m.Rows, m.Cols)
	}
	m.Triplets = append(m.Triplets, o.Triplets...)
	return nil
}

// SumDuplicates merges entries sharing a (row, col) coordinate into a
// single entry holding their sum, keeping first-encounter order.
func (m *Matrix) SumDuplicates() {
	pos := make(map[[2]int]int, len(m.Triplets))
	out := m.Triplets[:0]
	for _, t := range m.Triplets {
		key := [2]int{t.Row, t.Col}
		if p, ok := pos[key]; ok {
			out[p].Val += t.Val
			continue
		}
		pos[key] = len(out)
		out = append(out, t)
	}
	m.Triplets = out
}

// Compress sorts the entries by (row, col) and merges duplicates,
// producing the canonical form used for storage.
func (m *Matrix) Compress() {
	sort.Slice(m.Triplets, func(i, j int) bool {
		a, b := m.Triplets[i], m.Triplets[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	out := m.Triplets[:0]
	for _, t := range m.Triplets {
		if n := len(out); n > 0 && out[n-1].Row == t.Row && out[n-1].Col == t.Col {
			out[n-1].Val += t.Val
			continue
		}
		out = append(out, t)
	}
	m.Triplets = out
}

// Scale multiplies every entry by val.
func (m *Matrix) Scale(val float64) {
	for i := range m.Triplets {
		m.Triplets[i].Val *= val
	}
}

// Transpose returns a new matrix with rows and columns exchanged.
func (m *Matrix) Transpose() *Matrix {
	o := NewMatrix(m.Cols, m.Rows)
	for _, t := range m.Triplets {
		o.Add(t.Col, t.Row, t.Val)
	}
	return o
}

// MulVec computes m times x, where len(x) must equal the number of
// columns. Duplicate entries contribute additively.
func (m *Matrix) MulVec(x []float64) ([]float64, error) {
	if len(x) != m.Cols {
		return nil, fmt.Errorf("icebin: multiplying %dx%d matrix by vector of length %d",
			m.Rows, m.Cols, len(x))
	}
	y := make([]float64, m.Rows)
	for _, t := range m.Triplets {
		y[t.Row] += t.Val * x[t.Col]
	}
	return y, nil
}

// RowSums accumulates the sum of the entries in each row.
func (m *Matrix) RowSums() *Vector {
	v := NewVector(m.Rows)
	for _, t := range m.Triplets {
		v.Add(t.Row, t.Val)
	}
	v.Compress()
	return v
}

// DivideRows divides every entry by the weight of its row. Entries in
// rows with a zero or missing weight are a structural error.
func (m *Matrix) DivideRows(w *Vector) error {
	weights := w.DenseMap()
	for i, t := range m.Triplets {
		wt, ok := weights[t.Row]
		if !ok || wt == 0 {
			return fmt.Errorf("icebin: dividing matrix row %d by zero or missing weight", t.Row)
		}
		m.Triplets[i].Val /= wt
	}
	return nil
}

// Mul computes the sparse matrix product a times b, accumulating
// partial products in a map-backed accumulator and returning the
// compressed result.
func Mul(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Rows {
		return nil, fmt.Errorf("icebin: multiplying %dx%d matrix by %dx%d matrix",
			a.Rows, a.Cols, b.Rows, b.Cols)
	}
	bByRow := make(map[int][]Triplet)
	for _, t := range b.Triplets {
		bByRow[t.Row] = append(bByRow[t.Row], t)
	}
	acc := sparse.ZerosSparse(a.Rows, b.Cols)
	for _, ta := range a.Triplets {
		for _, tb := range bByRow[ta.Col] {
			acc.AddVal(ta.Val*tb.Val, ta.Row, tb.Col)
		}
	}
	out := NewMatrix(a.Rows, b.Cols)
	for index1d, val := range acc.Elements {
		ij := acc.IndexNd(index1d)
		out.Add(ij[0], ij[1], val)
	}
	out.Compress()
	return out, nil
}

// An Element is one coordinate-form vector entry over sparse indices.
type Element struct {
	Index int
	Val   float64
}

// A Vector is a sparse vector in coordinate form, with the same
// duplicate-summing conventions as Matrix.
type Vector struct {
	Extent   int
	Elements []Element
}

// NewVector creates an empty vector with the given extent.
func NewVector(extent int) *Vector {
	return &Vector{Extent: extent}
}

// Add appends the entry (index, val).
func (v *Vector) Add(index int, val float64) {
	v.Elements = append(v.Elements, Element{Index: index, Val: val})
}

// Compress sorts the entries by index and merges duplicates.
func (v *Vector) Compress() {
	sort.Slice(v.Elements, func(i, j int) bool {
		return v.Elements[i].Index < v.Elements[j].Index
	})
	out := v.Elements[:0]
	for _, e := range v.Elements {
		if n := len(out); n > 0 && out[n-1].Index == e.Index {
			out[n-1].Val += e.Val
			continue
		}
		out = append(out, e)
	}
	v.Elements = out
}

// Sum returns the sum of all entries.
func (v *Vector) Sum() float64 {
	var s float64
	for _, e := range v.Elements {
		s += e.Val
	}
	return s
}

// Dense expands the vector to a dense slice of length Extent.
func (v *Vector) Dense() []float64 {
	d := make([]float64, v.Extent)
	for _, e := range v.Elements {
		d[e.Index] += e.Val
	}
	return d
}

// DenseMap expands the vector to a map from index to summed value.
func (v *Vector) DenseMap() map[int]float64 {
	d := make(map[int]float64, len(v.Elements))
	for _, e := range v.Elements {
		d[e.Index] += e.Val
	}
	return d
}

// A Weighted pairs an unscaled regridding matrix with its weight
// vector. The matrix entries are physical overlap areas (or masses):
// applying M to a source field and dividing each row by its weight
// yields the conservative area-weighted average on the target grid.
// Rows with zero weight have no defined output and are returned as NaN
// for the caller to mask.
type Weighted struct {
	M      *Matrix
	Weight *Vector
}

// NewWeighted creates an empty weighted matrix with the given shape.
func NewWeighted(rows, cols int) *Weighted {
	return &Weighted{M: NewMatrix(rows, cols), Weight: NewVector(rows)}
}

// Check verifies that the matrix row dimension matches the weight
// extent.
func (w *Weighted) Check() error {
	if w.M.Rows != w.Weight.Extent {
		return fmt.Errorf("icebin: weighted matrix has %d rows but weight extent %d",
			w.M.Rows, w.Weight.Extent)
	}
	return nil
}

// Apply regrids the source field x onto the target grid.
func (w *Weighted) Apply(x []float64) ([]float64, error) {
	if err := w.Check(); err != nil {
		return nil, err
	}
	y, err := w.M.MulVec(x)
	if err != nil {
		return nil, err
	}
	weights := w.Weight.Dense()
	for i := range y {
		if weights[i] == 0 {
			y[i] = math.NaN()
		} else {
			y[i] /= weights[i]
		}
	}
	return y, nil
}

// Scaled returns a copy of the matrix with each row divided by its
// weight, i.e. the form that maps source values directly to target
// values. Rows with zero weight are dropped.
func (w *Weighted) Scaled() *Matrix {
	weights := w.Weight.DenseMap()
	o := NewMatrix(w.M.Rows, w.M.Cols)
	for _, t := range w.M.Triplets {
		if wt := weights[t.Row]; wt != 0 {
			o.Add(t.Row, t.Col, t.Val/wt)
		}
	}
	return o
}

// Compose combines two weighted regridding operators into the operator
// that applies b first and then a. The weight of the result is
// re-derived from the row sums of the composed unscaled matrix;
// multiplying the two weight vectors would be wrong because weights
// are physical areas, not probabilities.
func Compose(a, b *Weighted) (*Weighted, error) {
	if err := a.Check(); err != nil {
		return nil, err
	}
	if err := b.Check(); err != nil {
		return nil, err
	}
	m, err := Mul(a.M, b.Scaled())
	if err != nil {
		return nil, err
	}
	return &Weighted{M: m, Weight: m.RowSums()}, nil
}
