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

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// fracTolerance is the tolerance within which the surface fractions of
// a GCM cell must sum to 1.
const fracTolerance = 1e-9

// TopoFields holds the TOPO surface-type fractions and topography on
// the GCM's ocean grid, all indexed by sparse atmosphere/ocean index.
// The F-suffixed arrays are the unrounded fractions; the others are
// the rounded versions the GCM consumes.
type TopoFields struct {
	FoceanF, FgiceF, ZatmoF []float64

	Focean, Flake, Fgrnd, Fgice []float64
	Zatmo, Zlake, Zicetop       []float64
}

// NewTopoFields allocates TOPO arrays for a grid of extent n.
func NewTopoFields(n int) *TopoFields {
	return &TopoFields{
		FoceanF: make([]float64, n),
		FgiceF:  make([]float64, n),
		ZatmoF:  make([]float64, n),
		Focean:  make([]float64, n),
		Flake:   make([]float64, n),
		Fgrnd:   make([]float64, n),
		Fgice:   make([]float64, n),
		Zatmo:   make([]float64, n),
		Zlake:   make([]float64, n),
		Zicetop: make([]float64, n),
	}
}

// Extent returns the grid extent the arrays were allocated for.
func (t *TopoFields) Extent() int { return len(t.Focean) }

func (t *TopoFields) check(n int) error {
	for name, a := range map[string][]float64{
		"FOCEANF": t.FoceanF, "FGICEF": t.FgiceF, "ZATMOF": t.ZatmoF,
		"FOCEAN": t.Focean, "FLAKE": t.Flake, "FGRND": t.Fgrnd,
		"FGICE": t.Fgice, "ZATMO": t.Zatmo, "ZLAKE": t.Zlake,
		"ZICETOP": t.Zicetop,
	} {
		if len(a) != n {
			return fmt.Errorf("icebin: TOPO field %s has wrong size: %d (vs %d expected)",
				name, len(a), n)
		}
	}
	return nil
}

// An ElevMask is one ice sheet's elevation data read from an external
// source: surface elevation where land (respectively ice) is present
// and NaN elsewhere, both on the sheet's ice grid.
type ElevMask struct {
	Land, Ice []float64
}

// iceMask converts the Ice array to the elevation/mask pair the
// regridder consumes.
func (em *ElevMask) iceMask() (elev []float64, mask []bool) {
	elev = make([]float64, len(em.Ice))
	mask = make([]bool, len(em.Ice))
	for i, e := range em.Ice {
		if !math.IsNaN(e) {
			elev[i] = e
			mask[i] = true
		}
	}
	return elev, mask
}

// applyElevMasks loads the per-sheet elevation masks into the
// registry's sheets. Masks must be supplied in sheet registration
// order.
func applyElevMasks(mm *MatrixMaker, elevmasks []ElevMask) error {
	if len(elevmasks) != len(mm.Sheets()) {
		return fmt.Errorf("icebin: %d elevation masks supplied for %d ice sheets",
			len(elevmasks), len(mm.Sheets()))
	}
	for i, sheet := range mm.Sheets() {
		elev, mask := elevmasks[i].iceMask()
		if err := sheet.SetElev(elev, mask); err != nil {
			return err
		}
	}
	return nil
}

// MergeTopo merges the registry's local ice sheets into TOPO fields
// computed for global ice only. For every GCM cell covered by local
// ice the ice fraction is replaced (not summed) by the local coverage,
// the ground fraction is rebalanced, and the ice-top topography is
// replaced by the area-weighted local surface elevation. Cells without
// local ice keep their exact pre-merge values.
//
// Physical-consistency violations are appended to errs as descriptive
// strings rather than failing the merge, so a caller sees every
// problem in one pass.
func MergeTopo(topo *TopoFields, mm *MatrixMaker, elevmasks []ElevMask, errs *[]string) error {
	if err := topo.check(mm.GridA.Extent); err != nil {
		return err
	}
	if err := applyElevMasks(mm, elevmasks); err != nil {
		return err
	}
	if err := mm.Realize(); err != nil {
		return err
	}

	for _, sheet := range mm.Sheets() {
		log.WithField("sheet", sheet.Name).Info("icebin: merging sheet into TOPO")
		ovs, err := mm.overlaps(sheet)
		if err != nil {
			return err
		}
		iceArea := make(map[int]float64)  // local ice-covered area per GCM cell
		elevArea := make(map[int]float64) // sum of area*elevation per GCM cell
		atmArea := make(map[int]float64)  // projected GCM cell area
		for _, ov := range ovs {
			iceArea[ov.atmIndex] += ov.area
			elevArea[ov.atmIndex] += ov.area * sheet.ElevI[ov.iceIndex]
			atmArea[ov.atmIndex] = ov.atmArea
		}
		for iA, a := range iceArea {
			fgice := a / atmArea[iA]
			zice := elevArea[iA] / a

			topo.FgiceF[iA] = fgice
			topo.Fgice[iA] = fgice
			topo.Zicetop[iA] = zice

			// Local ice claims area from ground, never from ocean or
			// lake; the remainder rebalances FGRND.
			fgrnd := 1 - topo.Focean[iA] - topo.Flake[iA] - fgice
			topo.Fgrnd[iA] = fgrnd

			zatmo := topo.Zatmo[iA]*(1-fgice) + zice*fgice
			topo.Zatmo[iA] = zatmo
			topo.ZatmoF[iA] = zatmo
		}
	}

	sanityCheckTopo(topo, mm, errs)
	return nil
}

// sanityCheckTopo collects a descriptive error for every GCM cell
// whose surface fractions are inconsistent.
func sanityCheckTopo(topo *TopoFields, mm *MatrixMaker, errs *[]string) {
	for _, cell := range mm.GridA.Cells() {
		iA := cell.Index
		fracs := []float64{topo.Focean[iA], topo.Flake[iA], topo.Fgrnd[iA], topo.Fgice[iA]}
		if sum := floats.Sum(fracs); math.Abs(sum-1) > fracTolerance {
			*errs = append(*errs, fmt.Sprintf(
				"cell %d: FOCEAN+FLAKE+FGRND+FGICE = %g, which is not 1", iA, sum))
		}
		for i, name := range []string{"FOCEAN", "FLAKE", "FGRND", "FGICE"} {
			if fracs[i] < -fracTolerance {
				*errs = append(*errs, fmt.Sprintf(
					"cell %d: %s = %g, which is negative", iA, name, fracs[i]))
			}
		}
	}
}

// An EOpvAOpResult is the product of merging local ice sheets into a
// global-ice elevation-class matrix.
type EOpvAOpResult struct {
	// EOpvAOp is the merged elevation-versus-atmosphere matrix over
	// sparse indices.
	EOpvAOp *Matrix

	// DimEOp and DimAOp register the sparse row and column indices
	// the merged matrix actually touches, for compressed storage.
	DimEOp, DimAOp *SparseSet

	// HCDefs are the merged elevation class definitions, and
	// IndexingHC the merged elevation-grid index converter.
	HCDefs     []float64
	IndexingHC HCIndex

	// UndericeHC flags, per merged class, whether the class is backed
	// by a dynamic (local) ice sheet rather than global ice.
	UndericeHC []bool
}

// MergeEvA splices per-ice-sheet local contributions into a global-ice
// EvA matrix. Global entries for GCM cells now covered by local ice
// are replaced, never summed, so overlap cannot double-count area.
//
// Without squashing, the local sheets' elevation classes are appended
// after the global classes; with squashEC, every local contribution
// collapses into the first global class, the convention used when
// two-way coupling is disabled, so each merged cell gains exactly one
// elevation-class row.
func MergeEvA(globalEvA *Matrix, hcdefsGlobal []float64, indexingGlobal HCIndex,
	mm *MatrixMaker, elevmasks []ElevMask, squashEC bool, errs *[]string) (*EOpvAOpResult, error) {

	if err := applyElevMasks(mm, elevmasks); err != nil {
		return nil, err
	}
	if err := mm.Realize(); err != nil {
		return nil, err
	}
	if indexingGlobal.NA != mm.GridA.Extent {
		return nil, fmt.Errorf("icebin: global EvA indexing covers %d GCM cells, grid has %d",
			indexingGlobal.NA, mm.GridA.Extent)
	}
	if indexingGlobal.NHC != len(hcdefsGlobal) {
		return nil, fmt.Errorf("icebin: global EvA indexing has %d classes, hcdefs has %d",
			indexingGlobal.NHC, len(hcdefsGlobal))
	}

	// Per-sheet overlaps, and the footprint of GCM cells the local
	// ice claims.
	type localEntry struct {
		iA, hcLocal int
		area        float64
	}
	var locals []localEntry
	footprint := make(map[int]bool)
	for _, sheet := range mm.Sheets() {
		ovs, err := mm.overlaps(sheet)
		if err != nil {
			return nil, err
		}
		for _, ov := range ovs {
			locals = append(locals, localEntry{
				iA:      ov.atmIndex,
				hcLocal: mm.ClassOf(sheet.ElevI[ov.iceIndex]),
				area:    ov.area,
			})
			footprint[ov.atmIndex] = true
		}
	}

	// Merged class layout.
	nhcGlobal := len(hcdefsGlobal)
	hcdefs := append([]float64{}, hcdefsGlobal...)
	underice := make([]bool, nhcGlobal)
	if squashEC {
		if nhcGlobal == 0 {
			return nil, fmt.Errorf("icebin: squashing elevation classes requires at least one global class")
		}
		underice[0] = len(footprint) > 0
	} else {
		hcdefs = append(hcdefs, mm.HCDefs...)
		for range mm.HCDefs {
			underice = append(underice, true)
		}
	}
	indexing := HCIndex{NA: indexingGlobal.NA, NHC: len(hcdefs)}

	out := NewMatrix(indexing.Extent(), indexing.NA)

	// Global ice, minus the cells replaced by local ice. Global class
	// indices carry over unchanged.
	for _, t := range globalEvA.Triplets {
		iA, hcG := indexingGlobal.Split(t.Row)
		if iA != t.Col {
			*errs = append(*errs, fmt.Sprintf(
				"global EvA entry (%d,%d) links class row of cell %d to column of cell %d",
				t.Row, t.Col, iA, t.Col))
			continue
		}
		if footprint[iA] {
			continue
		}
		out.Add(indexing.ToE(iA, hcG), iA, t.Val)
	}

	// Local ice contributions.
	for _, le := range locals {
		hc := nhcGlobal + le.hcLocal
		if squashEC {
			hc = 0
		}
		out.Add(indexing.ToE(le.iA, hc), le.iA, le.area)
	}
	out.Compress()

	dimEOp := NewSparseSet(indexing.Extent())
	dimAOp := NewSparseSet(indexing.NA)
	for _, t := range out.Triplets {
		dimEOp.AddDense(t.Row)
		dimAOp.AddDense(t.Col)
	}

	return &EOpvAOpResult{
		EOpvAOp:    out,
		DimEOp:     dimEOp,
		DimAOp:     dimAOp,
		HCDefs:     hcdefs,
		IndexingHC: indexing,
		UndericeHC: underice,
	}, nil
}
