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
	"sort"

	"github.com/ctessum/sparse"
	log "github.com/sirupsen/logrus"
)

// A MatrixMaker owns the GCM grid, the elevation class definitions,
// and the registered ice sheets, and computes the transformation
// matrices and coverage diagnostics relating them. Sheet indices are
// assigned from an explicit counter on the registry; sheets refer back
// to their owner by that index only.
type MatrixMaker struct {
	GridA *Grid // GCM atmosphere/ocean grid, lat-lon

	// HCDefs are the height-point elevations defining the elevation
	// classes, ascending.
	HCDefs []float64

	nextSheetIndex int
	sheets         []*IceSheet
	byName         map[string]*IceSheet
}

// NewMatrixMaker creates a registry for the given GCM grid and
// elevation class definitions.
func NewMatrixMaker(gridA *Grid, hcdefs []float64) *MatrixMaker {
	return &MatrixMaker{
		GridA:  gridA,
		HCDefs: hcdefs,
		byName: make(map[string]*IceSheet),
	}
}

// NHC returns the number of elevation classes.
func (mm *MatrixMaker) NHC() int { return len(mm.HCDefs) }

// HCIndex returns the index converter for this registry's elevation
// grid.
func (mm *MatrixMaker) HCIndex() HCIndex {
	return HCIndex{NA: mm.GridA.Extent, NHC: len(mm.HCDefs)}
}

// AddIceSheet registers sheet and assigns it the next sheet index.
// Sheets must be named, and names must be unique within the registry.
func (mm *MatrixMaker) AddIceSheet(sheet *IceSheet) (int, error) {
	if sheet.Name == "" {
		return 0, fmt.Errorf("icebin: ice sheet must have a name")
	}
	if _, ok := mm.byName[sheet.Name]; ok {
		return 0, fmt.Errorf("icebin: duplicate ice sheet name %q", sheet.Name)
	}
	sheet.Index = mm.nextSheetIndex
	mm.nextSheetIndex++
	mm.byName[sheet.Name] = sheet
	mm.sheets = append(mm.sheets, sheet)
	log.WithFields(log.Fields{"sheet": sheet.Name, "index": sheet.Index}).
		Info("icebin: registered ice sheet")
	return sheet.Index, nil
}

// Sheets returns the registered sheets in registration order.
func (mm *MatrixMaker) Sheets() []*IceSheet { return mm.sheets }

// Sheet looks up a sheet by name.
func (mm *MatrixMaker) Sheet(name string) (*IceSheet, bool) {
	s, ok := mm.byName[name]
	return s, ok
}

// Realize checks the structural preconditions before matrices are
// computed: class definitions present and ascending, and every
// sheet's arrays sized to its grid.
func (mm *MatrixMaker) Realize() error {
	if len(mm.HCDefs) == 0 {
		return fmt.Errorf("icebin: no elevation classes defined")
	}
	if !sort.Float64sAreSorted(mm.HCDefs) {
		return fmt.Errorf("icebin: elevation class definitions must be ascending")
	}
	for _, s := range mm.sheets {
		if len(s.ElevI) != s.Grid.Extent {
			return fmt.Errorf("icebin: elevI for %s has wrong size: %d (vs %d expected)",
				s.Name, len(s.ElevI), s.Grid.Extent)
		}
		if len(s.MaskI) != s.Grid.Extent {
			return fmt.Errorf("icebin: maskI for %s has wrong size: %d (vs %d expected)",
				s.Name, len(s.MaskI), s.Grid.Extent)
		}
	}
	return nil
}

// Filter drops the GCM grid cells outside the local domain's halo.
// Matrices computed afterwards only touch local cells.
func (mm *MatrixMaker) Filter(d Domain) {
	mm.GridA.Filter(func(sparseIndex int) bool {
		return InHaloGlobal(d, sparseIndex)
	})
}

// ClassOf returns the elevation class for a surface elevation: the
// class of the nearest height point, ties going to the lower class.
func (mm *MatrixMaker) ClassOf(elev float64) int {
	k := sort.SearchFloat64s(mm.HCDefs, elev)
	if k == 0 {
		return 0
	}
	if k == len(mm.HCDefs) {
		return len(mm.HCDefs) - 1
	}
	if elev-mm.HCDefs[k-1] <= mm.HCDefs[k]-elev {
		return k - 1
	}
	return k
}

// interpHP returns the pair of height points bracketing elev and their
// linear interpolation weights, clamped at the ends of the range.
func (mm *MatrixMaker) interpHP(elev float64) (k0, k1 int, w0, w1 float64) {
	k := sort.SearchFloat64s(mm.HCDefs, elev)
	switch {
	case k == 0:
		return 0, 0, 1, 0
	case k == len(mm.HCDefs):
		n := len(mm.HCDefs) - 1
		return n, n, 1, 0
	default:
		lo, hi := mm.HCDefs[k-1], mm.HCDefs[k]
		f := (elev - lo) / (hi - lo)
		return k - 1, k, 1 - f, f
	}
}

// FHCResult holds the coverage diagnostics for the GCM grid.
type FHCResult struct {
	// Fgice1 is the fraction of each GCM cell covered by ice, over
	// sparse atmosphere indices.
	Fgice1 *Vector

	// Fhc1h is the fraction of each GCM cell's total ice area in each
	// elevation class, over sparse elevation-grid indices.
	Fhc1h *Vector
}

// ComputeFHC accumulates ice-covered areas over all registered sheets
// and converts them into the fgice1 and fhc1h coverage fractions.
// Per-sheet accumulation is independent: overlapping ice sheets on the
// same GCM cell are not corrected for, matching this package's
// documented approximation.
func (mm *MatrixMaker) ComputeFHC() (*FHCResult, error) {
	if err := mm.Realize(); err != nil {
		return nil, err
	}
	h := mm.HCIndex()
	areaA := sparse.ZerosSparse(mm.GridA.Extent) // ice-covered area per GCM cell
	areaAHC := sparse.ZerosSparse(h.Extent())    // ice-covered area per (cell, class)
	fgice1 := NewVector(mm.GridA.Extent)

	for _, sheet := range mm.sheets {
		log.WithField("sheet", sheet.Name).Info("icebin: accumulating areas")
		ovs, err := mm.overlaps(sheet)
		if err != nil {
			return nil, err
		}
		// Local accumulation for this sheet only; fgice needs the
		// per-sheet covered area against the projected cell area.
		larea := sparse.ZerosSparse(mm.GridA.Extent)
		atmArea := make(map[int]float64)
		for _, ov := range ovs {
			larea.AddVal(ov.area, ov.atmIndex)
			atmArea[ov.atmIndex] = ov.atmArea
			areaAHC.AddVal(ov.area, h.ToE(ov.atmIndex, mm.ClassOf(sheet.ElevI[ov.iceIndex])))
		}
		for _, iA := range larea.Nonzero() {
			fgice1.Add(iA, larea.Get1d(iA)/atmArea[iA])
		}
		areaA.AddSparse(larea)
	}
	fgice1.Compress()

	fhc1h := NewVector(h.Extent())
	for _, iE := range areaAHC.Nonzero() {
		iA, _ := h.Split(iE)
		fhc1h.Add(iE, areaAHC.Get1d(iE)/areaA.Get1d(iA))
	}
	fhc1h.Compress()

	return &FHCResult{Fgice1: fgice1, Fhc1h: fhc1h}, nil
}

// HPToHC computes the combined height-point-to-height-class matrix for
// all registered sheets: the per-sheet product of IceToHC and HPToIce,
// appended row-wise, then normalized by the accumulated per-class area
// weight.
func (mm *MatrixMaker) HPToHC() (*Matrix, error) {
	if err := mm.Realize(); err != nil {
		return nil, err
	}
	h := mm.HCIndex()
	ret := NewMatrix(h.Extent(), h.Extent())
	areaHC := NewVector(h.Extent())
	for _, sheet := range mm.sheets {
		log.WithField("sheet", sheet.Name).Info("icebin: computing hp->hc")
		hpToIce, err := mm.HPToIce(sheet)
		if err != nil {
			return nil, err
		}
		iceToHC, err := mm.IceToHC(sheet, areaHC)
		if err != nil {
			return nil, err
		}
		prod, err := Mul(iceToHC, hpToIce)
		if err != nil {
			return nil, err
		}
		if err := ret.Append(prod); err != nil {
			return nil, err
		}
	}
	areaHC.Compress()
	if err := ret.DivideRows(areaHC); err != nil {
		return nil, err
	}
	ret.Compress()
	return ret, nil
}
