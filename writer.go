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
	"github.com/ctessum/sparse"
)

// An IceWriter appends the field blocks exchanged in one coupling
// direction to a NetCDF file, one record per coupling step. The file
// has an unlimited "time" dimension and one [time, nI] variable per
// contract field.
type IceWriter struct {
	contract *CouplingContract
	nCells   int
	nrec     int
	ff       *os.File
	f        *cdf.File
}

// NewIceWriter creates fname and defines one record variable per
// field in contract, plus the "time" coordinate.
func NewIceWriter(fname string, contract *CouplingContract, nCells int) (*IceWriter, error) {
	h := cdf.NewHeader([]string{"time", "nI"}, []int{0, nCells})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "seconds since start of run")
	for i := 0; i < contract.SizeNoUnit(); i++ {
		fld := contract.Field(i)
		h.AddVariable(fld.Name, []string{"time", "nI"}, []float64{0})
		h.AddAttribute(fld.Name, "units", fld.Units)
		if fld.Description != "" {
			h.AddAttribute(fld.Name, "description", fld.Description)
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("icebin: defining step writer %s: %v", fname, errs)
	}
	ff, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("icebin: creating step writer: %v", err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("icebin: creating step writer %s: %v", fname, err)
	}
	return &IceWriter{contract: contract, nCells: nCells, ff: ff, f: f}, nil
}

// Write appends one record: the coupling time and a [nI, nvars] field
// block whose variable order follows the contract.
func (w *IceWriter) Write(timeS float64, valsI *sparse.DenseArray) error {
	shape := valsI.GetShape()
	if len(shape) != 2 || shape[0] != w.nCells || shape[1] != w.contract.SizeNoUnit() {
		return fmt.Errorf("icebin: step writer got block shaped %v, expected [%d %d]",
			shape, w.nCells, w.contract.SizeNoUnit())
	}
	rec := w.nrec
	tw := w.f.Writer("time", []int{rec}, []int{rec + 1})
	if _, err := tw.Write([]float64{timeS}); err != nil {
		return fmt.Errorf("icebin: writing step time: %v", err)
	}
	buf := make([]float64, w.nCells)
	for i := 0; i < w.contract.SizeNoUnit(); i++ {
		for c := 0; c < w.nCells; c++ {
			buf[c] = valsI.Get(c, i)
		}
		vw := w.f.Writer(w.contract.Field(i).Name, []int{rec, 0}, []int{rec + 1, w.nCells})
		if _, err := vw.Write(buf); err != nil {
			return fmt.Errorf("icebin: writing step field %s: %v", w.contract.Field(i).Name, err)
		}
	}
	w.nrec++
	return cdf.UpdateNumRecs(w.ff)
}

// Close finalizes the record count and closes the file.
func (w *IceWriter) Close() error {
	if err := cdf.UpdateNumRecs(w.ff); err != nil {
		w.ff.Close()
		return fmt.Errorf("icebin: finalizing step writer: %v", err)
	}
	return w.ff.Close()
}
