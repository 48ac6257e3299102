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
	"strconv"
	"strings"

	"github.com/ctessum/unit"
)

// Field flags. The low bits encode which grid level a field lives on;
// FlagInitial marks fields only valid at initialization time, before
// the first coupling step.
const (
	GridMask       uint = 0x3
	GridAtmosphere uint = 1
	GridIce        uint = 2
	GridElevation  uint = 3

	FlagInitial uint = 4
)

// UnitField is the name of the synthetic pseudo-field every contract
// exposes; its value is always 1, so a transformer coefficient against
// it acts as a constant bias or pure scaling term.
const UnitField = "unit"

// A CoupledField describes one physical field exchanged between two
// coupled parties.
type CoupledField struct {
	Name         string
	DefaultValue float64
	Units        string // UDUNITS-compatible string
	Flags        uint
	Description  string
}

// Grid returns the grid level encoded in the field's flags.
func (f *CoupledField) Grid() uint { return f.Flags & GridMask }

func (f *CoupledField) String() string {
	return fmt.Sprintf("(%s: [%s] flags:%d)", f.Name, f.Units, f.Flags)
}

// Dimensions parses the field's unit string into SI dimensions.
// The second return value is false for unit strings this package does
// not recognize (dimensionless fractions such as "1" or "0:1" parse
// as an empty dimension set).
func (f *CoupledField) Dimensions() (*unit.Unit, bool) {
	dims := unit.Dimensions{}
	switch f.Units {
	case "", "1", "0:1":
		return unit.New(1, dims), true
	}
	for _, tok := range strings.Fields(f.Units) {
		sym := tok
		exp := 1
		if i := strings.IndexAny(tok, "-0123456789"); i > 0 {
			var err error
			if exp, err = strconv.Atoi(tok[i:]); err != nil {
				return nil, false
			}
			sym = tok[:i]
		}
		d, ok := baseDimensions[sym]
		if !ok {
			return nil, false
		}
		for dim, e := range d {
			dims[dim] += e * exp
		}
	}
	return unit.New(1, dims), true
}

// baseDimensions expands the unit symbols used by the coupling
// contracts into SI base dimensions.
var baseDimensions = map[string]unit.Dimensions{
	"m":  {unit.LengthDim: 1},
	"kg": {unit.MassDim: 1},
	"s":  {unit.TimeDim: 1},
	"K":  {unit.TemperatureDim: 1},
	"J":  {unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2},
	"W":  {unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -3},
	"Pa": {unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2},
}

// A CouplingContract is an ordered, named schema of the fields one
// party sends or receives. Insertion order is semantically meaningful:
// it defines the row and column order used by VarTransformer. Field
// names must be unique within a contract. Every contract implicitly
// carries the "unit" pseudo-field at the index one past the last named
// field.
type CouplingContract struct {
	fields      []CoupledField
	nameToIndex map[string]int
}

// NewCouplingContract creates an empty contract.
func NewCouplingContract() *CouplingContract {
	return &CouplingContract{nameToIndex: make(map[string]int)}
}

// AddField appends f to the contract, assigning it the next sequential
// index. Duplicate, empty, and reserved names are structural errors.
func (c *CouplingContract) AddField(f CoupledField) (int, error) {
	if f.Name == "" || f.Name == UnitField {
		return 0, fmt.Errorf("icebin: invalid contract field name %q", f.Name)
	}
	if _, ok := c.nameToIndex[f.Name]; ok {
		return 0, fmt.Errorf("icebin: duplicate contract field name %q", f.Name)
	}
	ix := len(c.fields)
	c.nameToIndex[f.Name] = ix
	c.fields = append(c.fields, f)
	return ix, nil
}

// Add is shorthand for AddField.
func (c *CouplingContract) Add(name string, defaultValue float64, units string, flags uint, description string) (int, error) {
	return c.AddField(CoupledField{
		Name:         name,
		DefaultValue: defaultValue,
		Units:        units,
		Flags:        flags,
		Description:  description,
	})
}

// Index resolves a field name to its index. The "unit" pseudo-field
// resolves to UnitIndex. The second return value reports whether the
// name is present; callers decide whether absence is a hard failure.
func (c *CouplingContract) Index(name string) (int, bool) {
	if name == UnitField {
		return c.UnitIndex(), true
	}
	ix, ok := c.nameToIndex[name]
	return ix, ok
}

// MustIndex is like Index but returns an error for unresolved names.
func (c *CouplingContract) MustIndex(name string) (int, error) {
	ix, ok := c.Index(name)
	if !ok {
		return 0, fmt.Errorf("icebin: contract has no field named %q", name)
	}
	return ix, nil
}

// Field returns the field at index ix.
func (c *CouplingContract) Field(ix int) *CoupledField { return &c.fields[ix] }

// FieldByName returns the named field, or an error if it is absent.
func (c *CouplingContract) FieldByName(name string) (*CoupledField, error) {
	ix, ok := c.nameToIndex[name]
	if !ok {
		return nil, fmt.Errorf("icebin: contract has no field named %q", name)
	}
	return &c.fields[ix], nil
}

// Fields returns the named fields in insertion order.
func (c *CouplingContract) Fields() []CoupledField { return c.fields }

// Name returns the name of the field at index ix, or "unit" for the
// pseudo-field index.
func (c *CouplingContract) Name(ix int) string {
	if ix == c.UnitIndex() {
		return UnitField
	}
	return c.fields[ix].Name
}

// SizeNoUnit returns the number of named fields.
func (c *CouplingContract) SizeNoUnit() int { return len(c.fields) }

// SizeWithUnit returns the number of named fields plus the unit
// pseudo-field.
func (c *CouplingContract) SizeWithUnit() int { return len(c.fields) + 1 }

// UnitIndex returns the index of the unit pseudo-field.
func (c *CouplingContract) UnitIndex() int { return len(c.fields) }

// CheckUnits verifies that every field's unit string is one this
// package can parse into SI dimensions.
func (c *CouplingContract) CheckUnits() error {
	for i := range c.fields {
		if _, ok := c.fields[i].Dimensions(); !ok {
			return fmt.Errorf("icebin: field %q has unparseable units %q",
				c.fields[i].Name, c.fields[i].Units)
		}
	}
	return nil
}

func (c *CouplingContract) String() string {
	names := make([]string, len(c.fields))
	for i := range c.fields {
		names[i] = c.fields[i].String()
	}
	return strings.Join(names, ", ")
}

// NewScalarContract builds a contract of dimensionless scalar names,
// for binding to a VarTransformer's SCALARS axis.
func NewScalarContract(names ...string) (*CouplingContract, error) {
	c := NewCouplingContract()
	for _, name := range names {
		if _, err := c.Add(name, 0, "1", 0, ""); err != nil {
			return nil, err
		}
	}
	return c, nil
}
