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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// A GridCell is one cell of a grid, carrying its stable sparse index.
type GridCell struct {
	geom.Polygonal
	Index int
}

// A Grid is a set of cells indexed by a sparse index space of the
// given extent, with geometry in the spatial reference SR. GCM grids
// are regular lat-lon grids; ice grids are usually projected
// (e.g. polar stereographic) and may cover only part of their index
// space.
type Grid struct {
	Name   string
	SR     *proj.SR
	Extent int

	cells   []*GridCell
	byIndex map[int]*GridCell
	tree    *rtree.Rtree
}

// NewGrid creates an empty grid with the given sparse extent.
func NewGrid(name string, extent int, sr *proj.SR) *Grid {
	return &Grid{
		Name:    name,
		SR:      sr,
		Extent:  extent,
		byIndex: make(map[int]*GridCell),
		tree:    rtree.NewTree(25, 50),
	}
}

// NewGridRegular creates a regular grid of nx by ny cells of size
// dx by dy with lower-left corner (x0, y0). Cell (ix, iy) gets sparse
// index iy*nx+ix.
func NewGridRegular(name string, nx, ny int, dx, dy, x0, y0 float64, sr *proj.SR) *Grid {
	g := NewGrid(name, nx*ny, sr)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			x := x0 + float64(ix)*dx
			y := y0 + float64(iy)*dy
			p := geom.Polygon([]geom.Path{{
				{X: x, Y: y}, {X: x + dx, Y: y},
				{X: x + dx, Y: y + dy}, {X: x, Y: y + dy}, {X: x, Y: y}}})
			// Indices are always in range here, so AddCell cannot fail.
			g.AddCell(iy*nx+ix, p)
		}
	}
	return g
}

// AddCell adds a cell with the given sparse index.
func (g *Grid) AddCell(index int, p geom.Polygonal) error {
	if index < 0 || index >= g.Extent {
		return fmt.Errorf("icebin: cell index %d outside grid %s extent %d", index, g.Name, g.Extent)
	}
	if _, ok := g.byIndex[index]; ok {
		return fmt.Errorf("icebin: duplicate cell index %d in grid %s", index, g.Name)
	}
	c := &GridCell{Polygonal: p, Index: index}
	g.cells = append(g.cells, c)
	g.byIndex[index] = c
	g.tree.Insert(c)
	return nil
}

// Cells returns the cells present in this grid, in insertion order.
func (g *Grid) Cells() []*GridCell { return g.cells }

// Cell looks up the cell with the given sparse index.
func (g *Grid) Cell(index int) (*GridCell, bool) {
	c, ok := g.byIndex[index]
	return c, ok
}

// SearchIntersect returns the cells whose bounds intersect b.
func (g *Grid) SearchIntersect(b *geom.Bounds) []*GridCell {
	hits := g.tree.SearchIntersect(b)
	cells := make([]*GridCell, len(hits))
	for i, h := range hits {
		cells[i] = h.(*GridCell)
	}
	return cells
}

// Filter removes the cells whose sparse index fails keep, rebuilding
// the spatial index. It is used to restrict a grid to the cells in the
// local MPI domain's halo.
func (g *Grid) Filter(keep func(sparseIndex int) bool) {
	kept := g.cells[:0]
	g.tree = rtree.NewTree(25, 50)
	for _, c := range g.cells {
		if keep(c.Index) {
			kept = append(kept, c)
			g.tree.Insert(c)
		} else {
			delete(g.byIndex, c.Index)
		}
	}
	g.cells = kept
}

// transformedInto returns this grid's cell polygons reprojected into
// sr, keyed by sparse index.
func (g *Grid) transformedInto(sr *proj.SR) (map[int]geom.Polygonal, error) {
	ct, err := g.SR.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("icebin: projecting grid %s: %v", g.Name, err)
	}
	out := make(map[int]geom.Polygonal, len(g.cells))
	for _, c := range g.cells {
		gg, err := c.Polygonal.Transform(ct)
		if err != nil {
			return nil, fmt.Errorf("icebin: projecting cell %d of grid %s: %v", c.Index, g.Name, err)
		}
		out[c.Index] = gg.(geom.Polygonal)
	}
	return out, nil
}

// An HCIndex converts between (atmosphere cell, elevation class) pairs
// and combined elevation-grid indices. Classes are laid out
// layer-major: all cells of class 0, then all cells of class 1, and so
// on, matching the layout of the GCM's per-class arrays.
type HCIndex struct {
	NA, NHC int
}

// ToE combines an atmosphere cell index and an elevation class into an
// elevation-grid index.
func (h HCIndex) ToE(iA, hc int) int { return hc*h.NA + iA }

// Split separates an elevation-grid index into its atmosphere cell and
// elevation class.
func (h HCIndex) Split(iE int) (iA, hc int) { return iE % h.NA, iE / h.NA }

// Extent returns the size of the elevation-grid index space.
func (h HCIndex) Extent() int { return h.NA * h.NHC }

// An IceSheet is one registered high-resolution ice sheet: its native
// grid plus per-cell surface elevation and ice mask. Sheets are owned
// by a MatrixMaker; Index identifies the sheet within its owning
// registry.
type IceSheet struct {
	Name  string
	Index int

	Grid  *Grid
	ElevI []float64 // surface elevation, indexed by sparse ice index
	MaskI []bool    // true where ice is present
}

// NewIceSheet creates an ice sheet, checking that the elevation and
// mask arrays match the grid's sparse extent.
func NewIceSheet(name string, grid *Grid, elevI []float64, maskI []bool) (*IceSheet, error) {
	if len(elevI) != grid.Extent {
		return nil, fmt.Errorf("icebin: elevI for %s has wrong size: %d (vs %d expected)",
			name, len(elevI), grid.Extent)
	}
	if len(maskI) != grid.Extent {
		return nil, fmt.Errorf("icebin: maskI for %s has wrong size: %d (vs %d expected)",
			name, len(maskI), grid.Extent)
	}
	return &IceSheet{Name: name, Index: -1, Grid: grid, ElevI: elevI, MaskI: maskI}, nil
}

// SetElev replaces the sheet's elevation and mask arrays, e.g. after
// the ice model reports new surface elevations.
func (s *IceSheet) SetElev(elevI []float64, maskI []bool) error {
	if len(elevI) != s.Grid.Extent || len(maskI) != s.Grid.Extent {
		return fmt.Errorf("icebin: elevation update for %s has wrong size: %d/%d (vs %d expected)",
			s.Name, len(elevI), len(maskI), s.Grid.Extent)
	}
	s.ElevI = elevI
	s.MaskI = maskI
	return nil
}

// An overlap records the intersection of one ice cell with one
// atmosphere cell, measured in the ice grid's projection plane.
// Planar areas are used throughout; the spherical-earth correction is
// deliberately not applied, matching the accumulation this package is
// specified against.
type overlap struct {
	iceIndex, atmIndex int
	area               float64 // area of the intersection
	iceArea            float64 // total area of the ice cell
	atmArea            float64 // projected area of the atmosphere cell
}

// overlaps computes the area-weighted overlaps between the masked
// cells of sheet and the atmosphere grid, with the atmosphere cells
// reprojected into the sheet's native projection.
func (mm *MatrixMaker) overlaps(sheet *IceSheet) ([]overlap, error) {
	atmCells, err := mm.GridA.transformedInto(sheet.Grid.SR)
	if err != nil {
		return nil, err
	}
	tree := rtree.NewTree(25, 50)
	for index, p := range atmCells {
		tree.Insert(&GridCell{Polygonal: p, Index: index})
	}
	var out []overlap
	for _, ice := range sheet.Grid.Cells() {
		if !sheet.MaskI[ice.Index] {
			continue
		}
		iceArea := ice.Area()
		if iceArea == 0 {
			continue
		}
		for _, hit := range tree.SearchIntersect(ice.Bounds()) {
			atm := hit.(*GridCell)
			isect := ice.Polygonal.Intersection(atm.Polygonal)
			if isect == nil {
				continue
			}
			a := isect.Area()
			if a == 0 {
				continue
			}
			out = append(out, overlap{
				iceIndex: ice.Index,
				atmIndex: atm.Index,
				area:     a,
				iceArea:  iceArea,
				atmArea:  atm.Area(),
			})
		}
	}
	return out, nil
}

// HPToIce builds the height-point-to-ice interpolation matrix for one
// sheet: each masked ice cell's value is the overlap-fraction-weighted
// combination of the bracketing height points of the atmosphere cells
// it falls in.
func (mm *MatrixMaker) HPToIce(sheet *IceSheet) (*Matrix, error) {
	ovs, err := mm.overlaps(sheet)
	if err != nil {
		return nil, err
	}
	h := mm.HCIndex()
	m := NewMatrix(sheet.Grid.Extent, h.Extent())
	for _, ov := range ovs {
		frac := ov.area / ov.iceArea
		k0, k1, w0, w1 := mm.interpHP(sheet.ElevI[ov.iceIndex])
		m.Add(ov.iceIndex, h.ToE(ov.atmIndex, k0), frac*w0)
		if k1 != k0 {
			m.Add(ov.iceIndex, h.ToE(ov.atmIndex, k1), frac*w1)
		}
	}
	m.Compress()
	return m, nil
}

// IceToHC builds the ice-to-elevation-class overlap matrix for one
// sheet. Entries are overlap areas; the per-class area accumulated
// into areaHC is the weight that later normalizes the combined
// matrix.
func (mm *MatrixMaker) IceToHC(sheet *IceSheet, areaHC *Vector) (*Matrix, error) {
	ovs, err := mm.overlaps(sheet)
	if err != nil {
		return nil, err
	}
	h := mm.HCIndex()
	m := NewMatrix(h.Extent(), sheet.Grid.Extent)
	for _, ov := range ovs {
		iE := h.ToE(ov.atmIndex, mm.ClassOf(sheet.ElevI[ov.iceIndex]))
		m.Add(iE, ov.iceIndex, ov.area)
		areaHC.Add(iE, ov.area)
	}
	m.Compress()
	return m, nil
}

// IvE builds the unscaled ice-versus-elevation regridding operator for
// one sheet: the matrix that, applied to a field on the elevation grid
// and divided by its weight, yields the conservative field on the ice
// grid. The weight is the total overlap area of each ice cell.
func (mm *MatrixMaker) IvE(sheet *IceSheet) (*Weighted, error) {
	ovs, err := mm.overlaps(sheet)
	if err != nil {
		return nil, err
	}
	h := mm.HCIndex()
	w := NewWeighted(sheet.Grid.Extent, h.Extent())
	for _, ov := range ovs {
		k0, k1, w0, w1 := mm.interpHP(sheet.ElevI[ov.iceIndex])
		w.M.Add(ov.iceIndex, h.ToE(ov.atmIndex, k0), ov.area*w0)
		if k1 != k0 {
			w.M.Add(ov.iceIndex, h.ToE(ov.atmIndex, k1), ov.area*w1)
		}
		w.Weight.Add(ov.iceIndex, ov.area)
	}
	w.M.Compress()
	w.Weight.Compress()
	return w, nil
}

// EvI builds the elevation-versus-ice regridding operator for one
// sheet, used to lift ice model outputs onto the elevation grid.
func (mm *MatrixMaker) EvI(sheet *IceSheet) (*Weighted, error) {
	areaHC := NewVector(mm.HCIndex().Extent())
	m, err := mm.IceToHC(sheet, areaHC)
	if err != nil {
		return nil, err
	}
	areaHC.Compress()
	return &Weighted{M: m, Weight: areaHC}, nil
}
