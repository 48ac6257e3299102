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

// Package icebin couples general circulation models to high-resolution
// ice sheet models through conservative sparse regridding across the
// ice grid, the elevation-class grid, and the atmosphere/ocean grid,
// and through a per-field contract and unit-transformation layer.
package icebin

import "fmt"

// A SparseSet is a bidirectional translation between a sparse (global,
// stable) index space and a dense (local, compacted) index space. Dense
// indices are assigned sequentially the first time each sparse index
// is registered, so a matrix or vector can be compacted to only the
// rows and columns a computation actually touches.
type SparseSet struct {
	sparseExtent int
	toDense      map[int]int
	toSparse     []int
}

// NewSparseSet creates a SparseSet whose sparse index space has the
// given extent. An extent of -1 leaves the extent unspecified.
func NewSparseSet(sparseExtent int) *SparseSet {
	return &SparseSet{
		sparseExtent: sparseExtent,
		toDense:      make(map[int]int),
	}
}

// SparseExtent returns the size of the sparse index space.
func (s *SparseSet) SparseExtent() int { return s.sparseExtent }

// DenseExtent returns the number of sparse indices registered so far,
// which is the size of the dense index space.
func (s *SparseSet) DenseExtent() int { return len(s.toSparse) }

// AddDense registers sparseIndex if it has not been seen before and
// returns its dense index. Dense indices are stable: registering the
// same sparse index again returns the index assigned the first time.
func (s *SparseSet) AddDense(sparseIndex int) int {
	if d, ok := s.toDense[sparseIndex]; ok {
		return d
	}
	d := len(s.toSparse)
	s.toDense[sparseIndex] = d
	s.toSparse = append(s.toSparse, sparseIndex)
	return d
}

// ToDense looks up the dense index for sparseIndex. The second return
// value reports whether sparseIndex has been registered.
func (s *SparseSet) ToDense(sparseIndex int) (int, bool) {
	d, ok := s.toDense[sparseIndex]
	return d, ok
}

// MustToDense is like ToDense but returns an error for indices that
// were never registered.
func (s *SparseSet) MustToDense(sparseIndex int) (int, error) {
	d, ok := s.toDense[sparseIndex]
	if !ok {
		return 0, fmt.Errorf("icebin: sparse index %d is not present in this set", sparseIndex)
	}
	return d, nil
}

// ToSparse returns the sparse index corresponding to denseIndex.
// denseIndex must be in [0, DenseExtent()).
func (s *SparseSet) ToSparse(denseIndex int) int {
	return s.toSparse[denseIndex]
}
