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

// Package icebinutil holds the command-line interface to the IceBin
// ice sheet coupling library.
package icebinutil

import (
	"context"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/icebin"
	"github.com/spf13/pflag"

	"github.com/spf13/cobra"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to IceBin.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "topoo",
			usage: `
              topoo specifies the location of the global-ice TOPO file
              whose surface fractions and topography are to be merged with
              the dynamic ice sheets.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{mergeTopoCmd.Flags()},
		},
		{
			name: "global_ec",
			usage: `
              global_ec specifies the location of the global-ice
              elevation-class matrix file to splice the dynamic ice sheets
              into. If empty, only the TOPO fields are merged.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{mergeTopoCmd.Flags()},
		},
		{
			name: "elevmask",
			usage: `
              elevmask specifies one elevation/mask source per dynamic ice
              sheet, in the form type:filename where type is 'pism' or
              'icebin'. Sources are matched to ice sheets in registration
              order.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{mergeTopoCmd.Flags()},
		},
		{
			name: "squash_ec",
			usage: `
              squash_ec collapses each dynamic ice sheet's elevation
              classes into the first global class, the convention used when
              two-way coupling is disabled.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{mergeTopoCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output specifies the location for the merged TOPO file.`,
			shorthand:  "o",
			defaultVal: "topoo_merged.nc",
			flagsets:   []*pflag.FlagSet{mergeTopoCmd.Flags()},
		},
		{
			name: "output_ec",
			usage: `
              output_ec specifies the location for the merged
              elevation-class matrix file, used when global_ec is given.`,
			defaultVal: "gcmO_merged.nc",
			flagsets:   []*pflag.FlagSet{mergeTopoCmd.Flags()},
		},
		{
			name: "Grids.Atm.Nx",
			usage: `
              Grids.Atm.Nx specifies the number of atmosphere grid cells in
              the x direction.`,
			defaultVal: 144,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grids.Atm.Ny",
			usage: `
              Grids.Atm.Ny specifies the number of atmosphere grid cells in
              the y direction.`,
			defaultVal: 90,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grids.Atm.X0",
			usage: `
              Grids.Atm.X0 specifies the x coordinate of the lower-left
              corner of the atmosphere grid, in the units of its spatial
              projection.`,
			defaultVal: -180.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grids.Atm.Y0",
			usage: `
              Grids.Atm.Y0 specifies the y coordinate of the lower-left
              corner of the atmosphere grid.`,
			defaultVal: -90.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grids.Atm.Dx",
			usage: `
              Grids.Atm.Dx specifies the x edge length of atmosphere grid
              cells.`,
			defaultVal: 2.5,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grids.Atm.Dy",
			usage: `
              Grids.Atm.Dy specifies the y edge length of atmosphere grid
              cells.`,
			defaultVal: 2.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grids.Atm.Proj",
			usage: `
              Grids.Atm.Proj gives the Proj4 specification of the
              atmosphere grid's spatial projection.`,
			defaultVal: "+proj=longlat",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "HCDefs",
			usage: `
              HCDefs specifies the height-point elevations defining the
              elevation classes, in meters, in ascending order.`,
			defaultVal: []string{"200", "700", "1200", "1700", "2200", "2700", "3200"},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Sheets",
			usage: `
              Sheets names the dynamic ice sheets, in registration order.
              Each name must have a matching Grids.<name> section in the
              configuration file describing its ice grid.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ICEBIN")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(mergeTopoCmd)
}

func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("icebin: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "icebin",
	Short: "A coupler between ice sheet models and GCMs.",
	Long: `IceBin regrids fields between ice sheet models and general circulation
models, conserving mass and enthalpy across grids of unrelated geometry.
Use the subcommands specified below to access the functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ICEBIN_var' where 'var' is
the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of IceBin.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("IceBin v%s\n", icebin.Version)
	},
	DisableAutoGenTag: true,
}

// mergeTopoCmd merges dynamic ice sheets into global-ice TOPO fields
// and, optionally, into a global elevation-class matrix.
var mergeTopoCmd = &cobra.Command{
	Use:   "merge-topo",
	Short: "Merge dynamic ice sheets into a global TOPO file.",
	Long: `merge-topo replaces the global-ice land ice fraction and ice-top
topography with dynamic ice sheet coverage wherever the sheets have
ice, rebalances the remaining surface fractions, and writes the merged
TOPO file. If a global elevation-class matrix is given, the sheets'
elevation classes are spliced into it as well.

Conservation violations found during merging are reported on standard
error; any such report makes the command exit with a failure status.`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		errs, err := MergeTopo(context.Background(), Cfg)
		if err != nil {
			return err
		}
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		if len(errs) > 0 {
			return fmt.Errorf("icebin: merged TOPO fails %d sanity checks", len(errs))
		}
		return nil
	},
}
