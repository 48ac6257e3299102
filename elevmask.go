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
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/requestcache"
)

// PISM surface type codes, as written to PISM state files.
const (
	pismIceFree  = 0
	pismGrounded = 2
	pismFloating = 3
	pismOcean    = 4
)

// An ElevMaskReader decodes one ice sheet's (land, ice) elevation
// masks from a file.
type ElevMaskReader func(path string) (*ElevMask, error)

// elevMaskFormats maps the format prefix of an elevation-mask spec to
// its decoding strategy.
var elevMaskFormats = map[string]ElevMaskReader{
	"pism":   ReadElevMaskPISM,
	"icebin": readElevMaskIcebin,
}

// An ElevMaskSource reads `<format>:<path>` elevation-mask specs,
// deduplicating and caching reads so a spec referenced by several ice
// sheets or coupling steps is only decoded once.
type ElevMaskSource struct {
	cache *requestcache.Cache
}

// NewElevMaskSource creates a source with an in-memory cache holding
// up to memCacheSize decoded masks.
func NewElevMaskSource(memCacheSize int) *ElevMaskSource {
	s := new(ElevMaskSource)
	s.cache = requestcache.NewCache(s.process, 1,
		requestcache.Deduplicate(), requestcache.Memory(memCacheSize))
	return s
}

func (s *ElevMaskSource) process(_ context.Context, payload interface{}) (interface{}, error) {
	spec := payload.(string)
	format, path, err := splitElevMaskSpec(spec)
	if err != nil {
		return nil, err
	}
	read, ok := elevMaskFormats[format]
	if !ok {
		return nil, fmt.Errorf("icebin: unrecognized elevmask spec type %s", format)
	}
	return read(path)
}

// Read decodes the elevation mask named by spec, which must be in the
// form `<format>:<path>`.
func (s *ElevMaskSource) Read(ctx context.Context, spec string) (*ElevMask, error) {
	result, err := s.cache.NewRequest(ctx, spec, spec).Result()
	if err != nil {
		return nil, err
	}
	return result.(*ElevMask), nil
}

// ReadAll decodes one elevation mask per spec, in order.
func (s *ElevMaskSource) ReadAll(ctx context.Context, specs []string) ([]ElevMask, error) {
	out := make([]ElevMask, len(specs))
	for i, spec := range specs {
		em, err := s.Read(ctx, spec)
		if err != nil {
			return nil, err
		}
		out[i] = *em
	}
	return out, nil
}

func splitElevMaskSpec(spec string) (format, path string, err error) {
	colon := strings.Index(spec, ":")
	if colon < 0 {
		return "", "", fmt.Errorf("icebin: elevmask spec %q must be in the format type:fname", spec)
	}
	return spec[:colon], spec[colon+1:], nil
}

// ReadElevMaskPISM reads the bed topography, ice thickness, and
// surface type mask from a PISM state file and converts them to the
// (land, ice) elevation masks on the ice grid.
func ReadElevMaskPISM(path string) (*ElevMask, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening PISM state file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("icebin: reading PISM state file %s: %v", path, err)
	}
	topg, err := readVarFloat64(f, "topg")
	if err != nil {
		return nil, fmt.Errorf("icebin: reading PISM state file %s: %v", path, err)
	}
	thk, err := readVarFloat64(f, "thk")
	if err != nil {
		return nil, fmt.Errorf("icebin: reading PISM state file %s: %v", path, err)
	}
	mask, err := readVarFloat64(f, "mask")
	if err != nil {
		return nil, fmt.Errorf("icebin: reading PISM state file %s: %v", path, err)
	}
	if len(thk) != len(topg) || len(mask) != len(topg) {
		return nil, fmt.Errorf("icebin: PISM state file %s: topg/thk/mask extents differ (%d/%d/%d)",
			path, len(topg), len(thk), len(mask))
	}

	em := &ElevMask{
		Land: make([]float64, len(topg)),
		Ice:  make([]float64, len(topg)),
	}
	for i := range topg {
		surface := topg[i] + thk[i]
		switch int(mask[i]) {
		case pismGrounded, pismFloating:
			em.Ice[i] = surface
			em.Land[i] = surface
		case pismIceFree:
			em.Ice[i] = math.NaN()
			em.Land[i] = topg[i]
		default: // ocean
			em.Ice[i] = math.NaN()
			em.Land[i] = math.NaN()
		}
	}
	return em, nil
}

// readElevMaskIcebin reads masks previously written by WriteElevMask.
func readElevMaskIcebin(path string) (*ElevMask, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("icebin: opening elevmask file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("icebin: reading elevmask file %s: %v", path, err)
	}
	land, err := readVarFloat64(f, "elevmaskI.land")
	if err != nil {
		return nil, fmt.Errorf("icebin: reading elevmask file %s: %v", path, err)
	}
	ice, err := readVarFloat64(f, "elevmaskI.ice")
	if err != nil {
		return nil, fmt.Errorf("icebin: reading elevmask file %s: %v", path, err)
	}
	if len(land) != len(ice) {
		return nil, fmt.Errorf("icebin: elevmask file %s: land/ice extents differ (%d/%d)",
			path, len(land), len(ice))
	}
	return &ElevMask{Land: land, Ice: ice}, nil
}

// WriteElevMask writes an elevation mask in the format read by the
// `icebin:` spec type.
func WriteElevMask(em *ElevMask, path string) error {
	h := cdf.NewHeader([]string{"nI"}, []int{len(em.Ice)})
	h.AddVariable("elevmaskI.land", []string{"nI"}, []float64{0})
	h.AddAttribute("elevmaskI.land", "description", "Land surface elevation; NaN where no land")
	h.AddAttribute("elevmaskI.land", "units", "m")
	h.AddVariable("elevmaskI.ice", []string{"nI"}, []float64{0})
	h.AddAttribute("elevmaskI.ice", "description", "Ice surface elevation; NaN where no ice")
	h.AddAttribute("elevmaskI.ice", "units", "m")
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("icebin: creating elevmask file: %v", err)
	}
	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("icebin: creating elevmask file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("icebin: creating elevmask file %s: %v", path, err)
	}
	for name, data := range map[string][]float64{
		"elevmaskI.land": em.Land,
		"elevmaskI.ice":  em.Ice,
	} {
		w := f.Writer(name, []int{0}, []int{len(data)})
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("icebin: writing %s to %s: %v", name, path, err)
		}
	}
	return nil
}

// readVarFloat64 reads a full variable as float64, converting from
// the narrower types NetCDF files commonly store.
func readVarFloat64(f *cdf.File, name string) ([]float64, error) {
	has := false
	for _, v := range f.Header.Variables() {
		if v == name {
			has = true
			break
		}
	}
	if !has {
		return nil, fmt.Errorf("no variable named %q", name)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %q: %v", name, err)
	}
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("variable %q has unsupported type %T", name, buf)
	}
}
