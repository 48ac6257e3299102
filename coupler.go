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
	log "github.com/sirupsen/logrus"
)

// BackendKind identifies the ice-model engine behind an IceCoupler.
// The set is closed: coupling behavior dispatches on the kind, not on
// subclassing.
type BackendKind int

const (
	BackendDismal BackendKind = iota // demo ice sheet model and land ice
	BackendPISM
	BackendISSM
	BackendWriter
)

func (k BackendKind) String() string {
	switch k {
	case BackendDismal:
		return "DISMAL"
	case BackendPISM:
		return "PISM"
	case BackendISSM:
		return "ISSM"
	case BackendWriter:
		return "WRITER"
	}
	return fmt.Sprintf("BackendKind(%d)", int(k))
}

// GCMKind identifies the general circulation model on the other side
// of the coupling.
type GCMKind int

const (
	GCMModelE GCMKind = iota
)

// IO selects the direction of a contract or transformer relative to
// the ice model: Input is GCM output -> ice input; Output is ice
// output -> GCM input.
type IO int

const (
	Input IO = iota
	Output
	numIO
)

// An IceBackend is the narrow boundary to an external ice physics
// engine. Field blocks are dense arrays shaped [nI, nvars], with
// variable order fixed by the corresponding contract. If doRun is
// false the backend only reports its current diagnostic state.
// Backend errors are opaque to this package: they are neither
// retried nor inspected.
type IceBackend interface {
	ElevI() ([]float64, error)
	RunTimestep(timeS float64, ivalsI, ovalsI *sparse.DenseArray, doRun bool) error
}

// CouplerState tracks an IceCoupler through its lifecycle.
type CouplerState int

const (
	StateUninitialized CouplerState = iota
	StateContractsSet
	StateReady
	StateCoupling
)

// An IceCoupler owns one ice sheet's coupling state: its contracts,
// its variable transformers, its regridding matrix, and the backend
// engine, and drives the per-timestep exchange protocol.
type IceCoupler struct {
	Name string
	Kind BackendKind

	// Contracts and Transformers are indexed by IO direction.
	Contracts    [numIO]*CouplingContract
	Transformers [numIO]*VarTransformer

	// IvE regrids elevation-grid fields onto the ice grid; EvI lifts
	// ice-grid fields back. Both are refreshed when the ice surface
	// elevation changes.
	IvE, EvI *Weighted

	maker   *MatrixMaker
	sheet   *IceSheet
	backend IceBackend
	writers [numIO]*IceWriter
	state   CouplerState
	elevI   []float64
}

// NewIceCoupler creates a coupler for one registered ice sheet. The
// backend is constructed later, during SetupContracts, because most
// backends need the contracts to interpret their field blocks.
func NewIceCoupler(name string, kind BackendKind, maker *MatrixMaker, sheet *IceSheet) *IceCoupler {
	return &IceCoupler{Name: name, Kind: kind, maker: maker, sheet: sheet}
}

// State returns the coupler's lifecycle state.
func (c *IceCoupler) State() CouplerState { return c.state }

// Sheet returns the coupled ice sheet.
func (c *IceCoupler) Sheet() *IceSheet { return c.sheet }

// NData returns the ice grid's sparse extent.
func (c *IceCoupler) NData() int { return c.sheet.Grid.Extent }

// SetupContracts resolves the coupling contracts and variable
// transformers for this (backend, GCM) pairing and constructs the
// backend. The choice of coupling rules is fixed for the run.
func (c *IceCoupler) SetupContracts(gcm GCMKind, params CouplingParams, g *GCMContracts, cfg BackendConfig) error {
	if c.state != StateUninitialized {
		return fmt.Errorf("icebin: contracts for %s already set up", c.Name)
	}
	if cfg.Kind != c.Kind {
		return fmt.Errorf("icebin: backend config kind %v does not match coupler kind %v",
			cfg.Kind, c.Kind)
	}
	contracts, transformers, err := SetupContracts(c.Kind, gcm, params, g)
	if err != nil {
		return err
	}
	c.Contracts = contracts
	c.Transformers = transformers
	c.backend, err = NewBackend(cfg, c.sheet, contracts)
	if err != nil {
		return err
	}
	c.state = StateContractsSet
	return nil
}

// SetWriters attaches NetCDF writers recording the field blocks seen
// by this coupler in each direction. Either writer may be nil.
func (c *IceCoupler) SetWriters(input, output *IceWriter) {
	c.writers[Input] = input
	c.writers[Output] = output
}

// Realize computes the initial regridding matrices, moving the
// coupler to the ready state.
func (c *IceCoupler) Realize() error {
	if c.state < StateContractsSet {
		return fmt.Errorf("icebin: realizing coupler %s before contract setup", c.Name)
	}
	elevI, err := c.backend.ElevI()
	if err != nil {
		return fmt.Errorf("icebin: getting initial elevation for %s: %v", c.Name, err)
	}
	if err := c.updateElev(elevI); err != nil {
		return err
	}
	c.state = StateReady
	return nil
}

// updateElev stores a new ice surface elevation and recomputes the
// regridding matrices from it.
func (c *IceCoupler) updateElev(elevI []float64) error {
	mask := make([]bool, len(elevI))
	for i, e := range elevI {
		mask[i] = !math.IsNaN(e)
	}
	elev := make([]float64, len(elevI))
	for i, e := range elevI {
		if !math.IsNaN(e) {
			elev[i] = e
		}
	}
	if err := c.sheet.SetElev(elev, mask); err != nil {
		return err
	}
	var err error
	if c.IvE, err = c.maker.IvE(c.sheet); err != nil {
		return fmt.Errorf("icebin: regridding matrix for %s: %v", c.Name, err)
	}
	if c.EvI, err = c.maker.EvI(c.sheet); err != nil {
		return fmt.Errorf("icebin: regridding matrix for %s: %v", c.Name, err)
	}
	c.elevI = elevI
	return nil
}

// A CoupleResult carries one coupling step's GCM-facing output.
type CoupleResult struct {
	// GcmIvalsE holds the GCM input fields on the elevation grid,
	// shaped [nE, len(gcmInputs)].
	GcmIvalsE *sparse.DenseArray

	// IvE is the regridding matrix in effect after the step; it
	// changes when the ice model reports new surface elevations.
	IvE *Weighted
}

// Couple runs one coupling timestep: the GCM's output fields on the
// elevation grid are transformed into the ice model's input contract,
// the backend is run (or queried, when doRun is false) for the elapsed
// interval, and the ice model's outputs are transformed back into GCM
// input fields and lifted onto the elevation grid. If the backend
// fails, no output transformation is applied.
//
// gcmOvalsE must be shaped [nE, gcmOutputs.SizeNoUnit()]. scalars
// holds the values of the named scalars bound to each direction's
// transformer.
func (c *IceCoupler) Couple(timeS float64, gcmOvalsE *sparse.DenseArray, scalars [numIO][]float64, doRun bool) (*CoupleResult, error) {
	if c.state < StateReady {
		return nil, fmt.Errorf("icebin: coupling %s before Realize", c.Name)
	}
	nI := c.NData()
	nE := c.maker.HCIndex().Extent()
	gcmOut := c.Transformers[Input].Contract(AxisInputs)
	shape := gcmOvalsE.GetShape()
	if len(shape) != 2 || shape[0] != nE || shape[1] != gcmOut.SizeNoUnit() {
		return nil, fmt.Errorf("icebin: GCM output block shaped %v, expected [%d %d]",
			shape, nE, gcmOut.SizeNoUnit())
	}
	c.state = StateCoupling
	log.WithFields(log.Fields{"sheet": c.Name, "time_s": timeS, "run": doRun}).
		Debug("icebin: coupling step")

	// Scatter each GCM output field down to the ice grid.
	gcmOvalsI := make([][]float64, gcmOut.SizeNoUnit())
	for f := range gcmOvalsI {
		fieldE := make([]float64, nE)
		for iE := 0; iE < nE; iE++ {
			fieldE[iE] = gcmOvalsE.Get(iE, f)
		}
		fieldI, err := c.IvE.Apply(fieldE)
		if err != nil {
			return nil, err
		}
		gcmOvalsI[f] = fieldI
	}

	// Transform names and units into the ice model's input contract,
	// cell by cell.
	iceIn := c.Contracts[Input]
	ivalsI := sparse.ZerosDense(nI, iceIn.SizeNoUnit())
	inVec := make([]float64, gcmOut.SizeNoUnit())
	for i := 0; i < nI; i++ {
		if !c.sheet.MaskI[i] {
			continue
		}
		for f := range inVec {
			v := gcmOvalsI[f][i]
			if math.IsNaN(v) {
				v = gcmOut.Field(f).DefaultValue
			}
			inVec[f] = v
		}
		out, err := c.Transformers[Input].Apply(inVec, scalars[Input])
		if err != nil {
			return nil, err
		}
		for f, v := range out {
			ivalsI.Set(v, i, f)
		}
	}
	if w := c.writers[Input]; w != nil {
		if err := w.Write(timeS, ivalsI); err != nil {
			return nil, err
		}
	}

	// Run the ice model. On failure no output transformation is
	// applied for this cycle.
	iceOut := c.Contracts[Output]
	ovalsI := sparse.ZerosDense(nI, iceOut.SizeNoUnit())
	if err := c.backend.RunTimestep(timeS, ivalsI, ovalsI, doRun); err != nil {
		return nil, fmt.Errorf("icebin: running %s backend for %s: %v", c.Kind, c.Name, err)
	}
	if w := c.writers[Output]; w != nil {
		if err := w.Write(timeS, ovalsI); err != nil {
			return nil, err
		}
	}

	// Refresh the regridding matrices if the ice surface moved.
	elevI, err := c.backend.ElevI()
	if err != nil {
		return nil, fmt.Errorf("icebin: getting elevation for %s: %v", c.Name, err)
	}
	if elevChanged(c.elevI, elevI) {
		log.WithField("sheet", c.Name).Info("icebin: elevation changed; rebuilding IvE")
		if err := c.updateElev(elevI); err != nil {
			return nil, err
		}
	}

	// Transform the ice model's outputs into GCM input fields and
	// lift them onto the elevation grid.
	gcmIn := c.Transformers[Output].Contract(AxisOutputs)
	gcmIvalsI := make([][]float64, gcmIn.SizeNoUnit())
	for f := range gcmIvalsI {
		gcmIvalsI[f] = make([]float64, nI)
	}
	outVec := make([]float64, iceOut.SizeNoUnit())
	for i := 0; i < nI; i++ {
		if !c.sheet.MaskI[i] {
			continue
		}
		for f := range outVec {
			outVec[f] = ovalsI.Get(i, f)
		}
		vals, err := c.Transformers[Output].Apply(outVec, scalars[Output])
		if err != nil {
			return nil, err
		}
		for f, v := range vals {
			gcmIvalsI[f][i] = v
		}
	}

	gcmIvalsE := sparse.ZerosDense(nE, gcmIn.SizeNoUnit())
	for f := range gcmIvalsI {
		fieldE, err := c.EvI.Apply(gcmIvalsI[f])
		if err != nil {
			return nil, err
		}
		for iE, v := range fieldE {
			if math.IsNaN(v) {
				continue
			}
			gcmIvalsE.Set(v, iE, f)
		}
	}

	return &CoupleResult{GcmIvalsE: gcmIvalsE, IvE: c.IvE}, nil
}

func elevChanged(old, cur []float64) bool {
	if len(old) != len(cur) {
		return true
	}
	for i := range old {
		a, b := old[i], cur[i]
		if math.IsNaN(a) != math.IsNaN(b) {
			return true
		}
		if !math.IsNaN(a) && a != b {
			return true
		}
	}
	return false
}
