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

// A Domain answers the one question this package asks about MPI domain
// decomposition: whether a global grid index belongs to the local
// domain or its halo. The decomposition mechanics themselves live in
// the GCM's coupling driver.
type Domain interface {
	// GlobalToLocal decomposes a global (sparse) index into the
	// GCM's local index tuple.
	GlobalToLocal(gindex int) []int

	// InDomain reports whether a local index tuple is inside the
	// local domain proper.
	InDomain(lindex []int) bool

	// InHalo reports whether a local index tuple is inside the local
	// domain including its halo cells.
	InHalo(lindex []int) bool
}

// InDomainGlobal reports whether global index gindex is in d's local
// domain.
func InDomainGlobal(d Domain, gindex int) bool {
	return d.InDomain(d.GlobalToLocal(gindex))
}

// InHaloGlobal reports whether global index gindex is in d's local
// domain or halo.
func InHaloGlobal(d Domain, gindex int) bool {
	return d.InHalo(d.GlobalToLocal(gindex))
}
