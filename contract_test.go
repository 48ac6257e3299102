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
	"testing"

	"github.com/ctessum/unit"
)

func TestCouplingContract(t *testing.T) {
	c := NewCouplingContract()
	ix, err := c.Add("lismb", 0, "kg m-2 s-1", GridElevation, "surface mass balance")
	if err != nil {
		t.Fatal(err)
	}
	if ix != 0 {
		t.Errorf("first field index: have %d, want 0", ix)
	}
	if _, err := c.Add("liseb", 0, "W m-2", GridElevation, ""); err != nil {
		t.Fatal(err)
	}

	// Insertion order defines the index order.
	if ix, ok := c.Index("liseb"); !ok || ix != 1 {
		t.Errorf("Index(liseb): have %d,%v, want 1,true", ix, ok)
	}
	if c.SizeNoUnit() != 2 || c.SizeWithUnit() != 3 || c.UnitIndex() != 2 {
		t.Errorf("sizes: have %d/%d/%d, want 2/3/2",
			c.SizeNoUnit(), c.SizeWithUnit(), c.UnitIndex())
	}

	// The unit pseudo-field resolves to the index past the last named
	// field.
	if ix, ok := c.Index(UnitField); !ok || ix != c.UnitIndex() {
		t.Errorf("Index(unit): have %d,%v, want %d,true", ix, ok, c.UnitIndex())
	}

	if _, err := c.Add("lismb", 0, "kg m-2 s-1", GridElevation, ""); err == nil {
		t.Error("duplicate field name should fail")
	}
	if _, err := c.Add("", 0, "", 0, ""); err == nil {
		t.Error("empty field name should fail")
	}
	if _, err := c.Add(UnitField, 0, "", 0, ""); err == nil {
		t.Error("reserved field name should fail")
	}
	if _, ok := c.Index("nosuch"); ok {
		t.Error("Index of missing field should report absence")
	}
	if _, err := c.MustIndex("nosuch"); err == nil {
		t.Error("MustIndex of missing field should fail")
	}

	f := c.Field(0)
	if f.Name != "lismb" || f.Grid() != GridElevation {
		t.Errorf("field 0: have %v, grid %d", f, f.Grid())
	}
}

func TestCoupledFieldDimensions(t *testing.T) {
	cases := []struct {
		units string
		want  unit.Dimensions
		ok    bool
	}{
		{"m", unit.Dimensions{unit.LengthDim: 1}, true},
		{"kg m-2 s-1", unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -2, unit.TimeDim: -1}, true},
		{"W m-2", unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -3}, true},
		{"J kg-1", unit.Dimensions{unit.LengthDim: 2, unit.TimeDim: -2}, true},
		{"K", unit.Dimensions{unit.TemperatureDim: 1}, true},
		{"1", unit.Dimensions{}, true},
		{"0:1", unit.Dimensions{}, true},
		{"", unit.Dimensions{}, true},
		{"degC", nil, false},
		{"furlongs", nil, false},
	}
	for _, c := range cases {
		f := &CoupledField{Name: "x", Units: c.units}
		u, ok := f.Dimensions()
		if ok != c.ok {
			t.Errorf("%q: parseable %v, want %v", c.units, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if !unit.DimensionsMatch(u, unit.New(1, c.want)) {
			t.Errorf("%q: have %v, want %v", c.units, u.Dimensions(), c.want)
		}
	}
}

func TestCheckUnits(t *testing.T) {
	c := NewCouplingContract()
	c.Add("a", 0, "m", GridIce, "")
	c.Add("b", 0, "0:1", GridIce, "")
	if err := c.CheckUnits(); err != nil {
		t.Error(err)
	}
	c.Add("c", 0, "degC", GridIce, "")
	if err := c.CheckUnits(); err == nil {
		t.Error("unparseable units should fail CheckUnits")
	}
}

func TestNewScalarContract(t *testing.T) {
	c, err := NewScalarContract("by_dt", "unit_to_unit")
	if err != nil {
		t.Fatal(err)
	}
	if c.SizeNoUnit() != 2 {
		t.Errorf("size: have %d, want 2", c.SizeNoUnit())
	}
	if _, err := NewScalarContract("a", "a"); err == nil {
		t.Error("duplicate scalar name should fail")
	}
}
