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

// Package modele adapts the coupling library to the ModelE GCM: its
// domain decomposition and its Fortran indexing conventions.
package modele

import "fmt"

// A Domain describes one MPI rank's rectangle of ModelE's
// latitude-longitude atmosphere grid. ModelE decomposes by latitude
// band, each rank holding rows J0 through J1 plus a halo row on each
// side. Local indices are 1-based in both dimensions, following the
// Fortran side of the coupling.
type Domain struct {
	// IM and JM are the global grid extents in longitude and
	// latitude.
	IM, JM int

	// I0, I1, J0 and J1 bound the cells this rank owns, inclusive.
	I0, I1, J0, J1 int

	// I0H, I1H, J0H and J1H bound the owned cells plus the halo.
	I0H, I1H, J0H, J1H int
}

// NewDomain describes a whole-band domain for rows j0 through j1 of
// an IM by JM grid, with a one-row halo clipped at the poles.
func NewDomain(im, jm, j0, j1 int) (*Domain, error) {
	if im <= 0 || jm <= 0 {
		return nil, fmt.Errorf("modele: invalid grid extents %d x %d", im, jm)
	}
	if j0 < 1 || j1 > jm || j0 > j1 {
		return nil, fmt.Errorf("modele: rows %d..%d outside grid of %d rows", j0, j1, jm)
	}
	d := &Domain{
		IM: im, JM: jm,
		I0: 1, I1: im, J0: j0, J1: j1,
		I0H: 1, I1H: im, J0H: j0 - 1, J1H: j1 + 1,
	}
	if d.J0H < 1 {
		d.J0H = 1
	}
	if d.J1H > jm {
		d.J1H = jm
	}
	return d, nil
}

// GlobalToLocal converts a 0-based row-major global atmosphere index
// into ModelE's 1-based (i, j) pair.
func (d *Domain) GlobalToLocal(gindex int) []int {
	j := gindex / d.IM
	i := gindex - d.IM*j
	return []int{i + 1, j + 1}
}

// InDomain reports whether the local index lies in the cells this
// rank owns.
func (d *Domain) InDomain(lindex []int) bool {
	i, j := lindex[0], lindex[1]
	return i >= d.I0 && i <= d.I1 && j >= d.J0 && j <= d.J1
}

// InHalo reports whether the local index lies in the owned cells or
// their halo.
func (d *Domain) InHalo(lindex []int) bool {
	i, j := lindex[0], lindex[1]
	return i >= d.I0H && i <= d.I1H && j >= d.J0H && j <= d.J1H
}
