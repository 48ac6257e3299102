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

import "fmt"

// Axes of a VarTransformer coefficient tensor.
type TransformerAxis int

const (
	AxisInputs TransformerAxis = iota
	AxisOutputs
	AxisScalars
	numAxes
)

func (a TransformerAxis) String() string {
	switch a {
	case AxisInputs:
		return "INPUTS"
	case AxisOutputs:
		return "OUTPUTS"
	case AxisScalars:
		return "SCALARS"
	}
	return fmt.Sprintf("TransformerAxis(%d)", int(a))
}

// A VarTransformer converts the values of one contract into the values
// of another through a general affine form: each output field is a
// linear combination of input fields and scalar constants,
//
//	out[o] = Σ_i Σ_s coeff[o][i][s] * in[i] * scalar[s]
//
// where the reserved "unit" input and scalar slots are implicitly 1,
// so pure biases and pure scalings are degenerate cases. All three
// axes must be bound with SetNames and the tensor allocated with
// Allocate before any coefficient is set.
type VarTransformer struct {
	contracts [numAxes]*CouplingContract

	// coeff is the dense tensor, laid out output-major:
	// coeff[(o*nIn+i)*nScalar+s]. nIn and nScalar include the unit
	// slot; outputs have no unit slot.
	coeff           []float64
	nOut, nIn, nScl int
}

// NewVarTransformer creates a transformer with no axes bound.
func NewVarTransformer() *VarTransformer { return &VarTransformer{} }

// SetNames binds a contract to one axis. Binding after Allocate is a
// usage error.
func (vt *VarTransformer) SetNames(axis TransformerAxis, contract *CouplingContract) error {
	if vt.coeff != nil {
		return fmt.Errorf("icebin: binding %v axis after transformer allocation", axis)
	}
	if axis < 0 || axis >= numAxes {
		return fmt.Errorf("icebin: unknown transformer axis %v", axis)
	}
	vt.contracts[axis] = contract
	return nil
}

// Contract returns the contract bound to axis, or nil.
func (vt *VarTransformer) Contract(axis TransformerAxis) *CouplingContract {
	return vt.contracts[axis]
}

// Allocate sizes the coefficient tensor, zero-filled, from the bound
// contracts. All three axes must be bound first.
func (vt *VarTransformer) Allocate() error {
	for axis := TransformerAxis(0); axis < numAxes; axis++ {
		if vt.contracts[axis] == nil {
			return fmt.Errorf("icebin: allocating transformer with unbound %v axis", axis)
		}
	}
	vt.nOut = vt.contracts[AxisOutputs].SizeNoUnit()
	vt.nIn = vt.contracts[AxisInputs].SizeWithUnit()
	vt.nScl = vt.contracts[AxisScalars].SizeWithUnit()
	vt.coeff = make([]float64, vt.nOut*vt.nIn*vt.nScl)
	return nil
}

func (vt *VarTransformer) index(o, i, s int) int {
	return (o*vt.nIn+i)*vt.nScl + s
}

// Set records that output gains the term coeff * input * scalar.
// It returns false, rather than failing hard, if any of the three
// names does not resolve in its bound contract or the tensor has not
// been allocated; setup routines batch many Set calls and check one
// aggregated flag at the end.
func (vt *VarTransformer) Set(output, input, scalar string, coeff float64) bool {
	if vt.coeff == nil {
		return false
	}
	o, ok := vt.contracts[AxisOutputs].Index(output)
	if !ok || o >= vt.nOut { // the unit pseudo-field is not an output
		return false
	}
	i, ok := vt.contracts[AxisInputs].Index(input)
	if !ok {
		return false
	}
	s, ok := vt.contracts[AxisScalars].Index(scalar)
	if !ok {
		return false
	}
	vt.coeff[vt.index(o, i, s)] += coeff
	return true
}

// Coeff returns the coefficient for the named (output, input, scalar)
// triple, resolving the unit pseudo-field like Set does.
func (vt *VarTransformer) Coeff(output, input, scalar string) (float64, error) {
	if vt.coeff == nil {
		return 0, fmt.Errorf("icebin: reading coefficient from unallocated transformer")
	}
	o, err := vt.contracts[AxisOutputs].MustIndex(output)
	if err != nil {
		return 0, err
	}
	if o >= vt.nOut { // the unit pseudo-field is not an output
		return 0, fmt.Errorf("icebin: %q is not an output of this transformer", output)
	}
	i, err := vt.contracts[AxisInputs].MustIndex(input)
	if err != nil {
		return 0, err
	}
	s, err := vt.contracts[AxisScalars].MustIndex(scalar)
	if err != nil {
		return 0, err
	}
	return vt.coeff[vt.index(o, i, s)], nil
}

// Apply evaluates the transformation for one set of input values and
// scalar values. inputs and scalars hold the named fields of their
// contracts in order; the unit slots are supplied implicitly.
func (vt *VarTransformer) Apply(inputs, scalars []float64) ([]float64, error) {
	if vt.coeff == nil {
		return nil, fmt.Errorf("icebin: applying unallocated transformer")
	}
	if len(inputs) != vt.nIn-1 {
		return nil, fmt.Errorf("icebin: transformer expects %d input values, got %d",
			vt.nIn-1, len(inputs))
	}
	if len(scalars) != vt.nScl-1 {
		return nil, fmt.Errorf("icebin: transformer expects %d scalar values, got %d",
			vt.nScl-1, len(scalars))
	}
	out := make([]float64, vt.nOut)
	for o := 0; o < vt.nOut; o++ {
		var sum float64
		for i := 0; i < vt.nIn; i++ {
			inVal := 1.0
			if i < vt.nIn-1 {
				inVal = inputs[i]
			}
			if inVal == 0 {
				continue
			}
			base := vt.index(o, i, 0)
			for s := 0; s < vt.nScl; s++ {
				c := vt.coeff[base+s]
				if c == 0 {
					continue
				}
				sclVal := 1.0
				if s < vt.nScl-1 {
					sclVal = scalars[s]
				}
				sum += c * inVal * sclVal
			}
		}
		out[o] = sum
	}
	return out, nil
}
