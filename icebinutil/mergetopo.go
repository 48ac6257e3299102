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

package icebinutil

import (
	"context"
	"fmt"
	"sort"

	"github.com/ctessum/geom/proj"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/icebin"
	"github.com/spf13/cast"
)

// elevMaskCacheSize is the number of elevation/mask files held in
// memory by the merge commands.
const elevMaskCacheSize = 4

// gridFromConfig builds a regular grid from the configuration section
// at prefix, which must hold Nx, Ny, X0, Y0, Dx, Dy and Proj keys.
func gridFromConfig(cfg *viper.Viper, name, prefix string) (*icebin.Grid, error) {
	nx := cfg.GetInt(prefix + ".Nx")
	ny := cfg.GetInt(prefix + ".Ny")
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("icebin: configuration section %s describes a %d x %d grid", prefix, nx, ny)
	}
	sr, err := proj.Parse(cfg.GetString(prefix + ".Proj"))
	if err != nil {
		return nil, fmt.Errorf("icebin: parsing %s.Proj: %v", prefix, err)
	}
	return icebin.NewGridRegular(name, nx, ny,
		cfg.GetFloat64(prefix+".Dx"), cfg.GetFloat64(prefix+".Dy"),
		cfg.GetFloat64(prefix+".X0"), cfg.GetFloat64(prefix+".Y0"), sr), nil
}

// hcdefsFromConfig parses the HCDefs height-point list.
func hcdefsFromConfig(cfg *viper.Viper) ([]float64, error) {
	strs := cfg.GetStringSlice("HCDefs")
	hcdefs := make([]float64, len(strs))
	for i, s := range strs {
		v, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, fmt.Errorf("icebin: parsing HCDefs element %q: %v", s, err)
		}
		hcdefs[i] = v
	}
	if !sort.Float64sAreSorted(hcdefs) {
		return nil, fmt.Errorf("icebin: HCDefs must be in ascending order")
	}
	return hcdefs, nil
}

// makerFromConfig builds the grid registry described by the
// configuration: the atmosphere grid, the elevation classes, and one
// ice sheet per name in Sheets, each with an empty elevation field to
// be filled from its elevation/mask source.
func makerFromConfig(cfg *viper.Viper) (*icebin.MatrixMaker, error) {
	gridA, err := gridFromConfig(cfg, "atm", "Grids.Atm")
	if err != nil {
		return nil, err
	}
	hcdefs, err := hcdefsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	mm := icebin.NewMatrixMaker(gridA, hcdefs)
	for _, name := range cfg.GetStringSlice("Sheets") {
		grid, err := gridFromConfig(cfg, name, "Grids."+name)
		if err != nil {
			return nil, err
		}
		sheet, err := icebin.NewIceSheet(name, grid,
			make([]float64, grid.Extent), make([]bool, grid.Extent))
		if err != nil {
			return nil, err
		}
		if _, err := mm.AddIceSheet(sheet); err != nil {
			return nil, err
		}
	}
	return mm, nil
}

// MergeTopo merges the configured dynamic ice sheets into the
// global-ice TOPO file and, when a global elevation-class matrix is
// configured, into that matrix as well. The returned strings are
// sanity-check failures in the merged product; they do not stop the
// merged files from being written.
func MergeTopo(ctx context.Context, cfg *viper.Viper) ([]string, error) {
	mm, err := makerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	specs := cfg.GetStringSlice("elevmask")
	if len(specs) != len(mm.Sheets()) {
		return nil, fmt.Errorf("icebin: %d elevmask sources configured for %d ice sheets",
			len(specs), len(mm.Sheets()))
	}
	elevmasks, err := icebin.NewElevMaskSource(elevMaskCacheSize).ReadAll(ctx, specs)
	if err != nil {
		return nil, err
	}

	topo, err := icebin.ReadTopo(cfg.GetString("topoo"))
	if err != nil {
		return nil, err
	}
	var errs []string
	if err := icebin.MergeTopo(topo, mm, elevmasks, &errs); err != nil {
		return nil, err
	}
	if err := icebin.WriteTopo(cfg.GetString("output"), topo); err != nil {
		return nil, err
	}

	if globalEC := cfg.GetString("global_ec"); globalEC != "" {
		globalEvA, hcdefsGlobal, indexingGlobal, err := icebin.ReadEOpvAOp(globalEC)
		if err != nil {
			return nil, err
		}
		merged, err := icebin.MergeEvA(globalEvA, hcdefsGlobal, indexingGlobal,
			mm, elevmasks, cfg.GetBool("squash_ec"), &errs)
		if err != nil {
			return nil, err
		}
		if err := icebin.WriteEOpvAOp(cfg.GetString("output_ec"), merged); err != nil {
			return nil, err
		}
	}
	return errs, nil
}
