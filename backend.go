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

	"github.com/ctessum/sparse"
)

// BackendConfig selects and configures an ice-model backend. Kind
// chooses the variant; exactly the matching config field is read.
type BackendConfig struct {
	Kind   BackendKind
	Dismal *DismalConfig
	PISM   *PISMConfig
	ISSM   *ISSMConfig
	Writer *WriterConfig
}

// DismalConfig configures the demo ice sheet backend.
type DismalConfig struct {
	// OutputDir, if non-empty, is where the backend dumps its field
	// blocks each timestep for inspection.
	OutputDir string
}

// PISMConfig configures a backend whose state is read from PISM
// output files.
type PISMConfig struct {
	// StateFile is a PISM NetCDF state file holding topg, thk and
	// mask variables on this sheet's ice grid.
	StateFile string
}

// ISSMConfig configures a backend whose state is read from an
// IceBin-format elevation/mask file produced by an ISSM run.
type ISSMConfig struct {
	StateFile string
}

// WriterConfig configures the record-only backend.
type WriterConfig struct{}

// NewBackend constructs the backend named by cfg.Kind. The set of
// kinds is closed; an unknown kind is an error, not a fallthrough.
func NewBackend(cfg BackendConfig, sheet *IceSheet, contracts [numIO]*CouplingContract) (IceBackend, error) {
	switch cfg.Kind {
	case BackendDismal:
		return newDismal(cfg.Dismal, sheet, contracts)
	case BackendPISM:
		if cfg.PISM == nil {
			return nil, fmt.Errorf("icebin: PISM backend for %s is missing its config", sheet.Name)
		}
		em, err := ReadElevMaskPISM(cfg.PISM.StateFile)
		if err != nil {
			return nil, err
		}
		return newFileBackend(cfg.Kind, sheet, contracts, em)
	case BackendISSM:
		if cfg.ISSM == nil {
			return nil, fmt.Errorf("icebin: ISSM backend for %s is missing its config", sheet.Name)
		}
		em, err := readElevMaskIcebin(cfg.ISSM.StateFile)
		if err != nil {
			return nil, err
		}
		return newFileBackend(cfg.Kind, sheet, contracts, em)
	case BackendWriter:
		return &writerBackend{sheet: sheet}, nil
	}
	return nil, fmt.Errorf("icebin: unknown backend kind %v for %s", cfg.Kind, sheet.Name)
}

// dismal is a trivial ice model used for coupling tests and demos.
// Its surface elevation never changes, and each step it reports its
// output contract's default values except for the surface elevation
// field, which reports the (static) elevation.
type dismal struct {
	sheet     *IceSheet
	outputs   *CouplingContract
	usurf     int
	hasUsurf  bool
	outputDir string
	nstep     int
}

func newDismal(cfg *DismalConfig, sheet *IceSheet, contracts [numIO]*CouplingContract) (*dismal, error) {
	d := &dismal{sheet: sheet, outputs: contracts[Output]}
	if cfg != nil {
		d.outputDir = cfg.OutputDir
	}
	d.usurf, d.hasUsurf = d.outputs.Index("usurf")
	return d, nil
}

func (d *dismal) ElevI() ([]float64, error) {
	elev := make([]float64, d.sheet.Grid.Extent)
	for i := range elev {
		if d.sheet.MaskI[i] {
			elev[i] = d.sheet.ElevI[i]
		} else {
			elev[i] = math.NaN()
		}
	}
	return elev, nil
}

func (d *dismal) RunTimestep(timeS float64, ivalsI, ovalsI *sparse.DenseArray, doRun bool) error {
	d.nstep++
	for i := 0; i < d.sheet.Grid.Extent; i++ {
		if !d.sheet.MaskI[i] {
			continue
		}
		for f := 0; f < d.outputs.SizeNoUnit(); f++ {
			ovalsI.Set(d.outputs.Field(f).DefaultValue, i, f)
		}
		if d.hasUsurf {
			ovalsI.Set(d.sheet.ElevI[i], i, d.usurf)
		}
	}
	return nil
}

// fileBackend serves elevation and mask state read from an external
// ice model's output files. It can report diagnostic state but cannot
// advance the model: the engine itself runs out of process.
type fileBackend struct {
	kind    BackendKind
	sheet   *IceSheet
	outputs *CouplingContract
	em      *ElevMask
}

func newFileBackend(kind BackendKind, sheet *IceSheet, contracts [numIO]*CouplingContract, em *ElevMask) (*fileBackend, error) {
	if len(em.Ice) != sheet.Grid.Extent {
		return nil, fmt.Errorf("icebin: %s state has %d cells, ice grid %s has %d",
			kind, len(em.Ice), sheet.Grid.Name, sheet.Grid.Extent)
	}
	return &fileBackend{kind: kind, sheet: sheet, outputs: contracts[Output], em: em}, nil
}

func (b *fileBackend) ElevI() ([]float64, error) {
	elev := make([]float64, len(b.em.Ice))
	copy(elev, b.em.Ice)
	return elev, nil
}

func (b *fileBackend) RunTimestep(timeS float64, ivalsI, ovalsI *sparse.DenseArray, doRun bool) error {
	if doRun {
		return fmt.Errorf("icebin: %s runs out of process; only state queries are supported", b.kind)
	}
	usurf, hasUsurf := b.outputs.Index("usurf")
	for i, e := range b.em.Ice {
		if math.IsNaN(e) {
			continue
		}
		for f := 0; f < b.outputs.SizeNoUnit(); f++ {
			ovalsI.Set(b.outputs.Field(f).DefaultValue, i, f)
		}
		if hasUsurf {
			ovalsI.Set(e, i, usurf)
		}
	}
	return nil
}

// writerBackend never runs; it exists so a run can record the field
// blocks it would have sent to a real ice model.
type writerBackend struct {
	sheet *IceSheet
}

func (b *writerBackend) ElevI() ([]float64, error) {
	elev := make([]float64, b.sheet.Grid.Extent)
	for i := range elev {
		if b.sheet.MaskI[i] {
			elev[i] = b.sheet.ElevI[i]
		} else {
			elev[i] = math.NaN()
		}
	}
	return elev, nil
}

func (b *writerBackend) RunTimestep(timeS float64, ivalsI, ovalsI *sparse.DenseArray, doRun bool) error {
	return nil
}
