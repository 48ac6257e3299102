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
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom/proj"
)

// gridConfig mirrors one Grids.<name> section of the configuration
// file.
type gridConfig struct {
	Nx, Ny         int
	X0, Y0, Dx, Dy float64
	Proj           string
}

type exampleConfig struct {
	Topoo    string `toml:"topoo"`
	GlobalEC string `toml:"global_ec"`
	Elevmask []string
	SquashEC bool `toml:"squash_ec"`
	Output   string
	OutputEC string `toml:"output_ec"`
	HCDefs   []string
	Sheets   []string
	Grids    map[string]gridConfig
}

func loadExampleConfig(file string) (*exampleConfig, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bytes, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("problem reading configuration file: %v", err)
	}
	cfg := new(exampleConfig)
	if _, err := toml.Decode(string(bytes), cfg); err != nil {
		return nil, fmt.Errorf("there has been an error parsing the configuration file: %v", err)
	}
	return cfg, nil
}

// TestConfigExample checks that the shipped example configuration
// stays complete and parseable.
func TestConfigExample(t *testing.T) {
	cfg, err := loadExampleConfig("../cmd/icebin/configExample.toml")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Sheets, []string{"greenland"}) {
		t.Errorf("Sheets: have %v, want [greenland]", cfg.Sheets)
	}
	if len(cfg.Elevmask) != len(cfg.Sheets) {
		t.Errorf("%d elevmask sources for %d ice sheets", len(cfg.Elevmask), len(cfg.Sheets))
	}
	if len(cfg.HCDefs) == 0 {
		t.Error("example config defines no elevation classes")
	}
	for _, name := range append([]string{"Atm"}, cfg.Sheets...) {
		g, ok := cfg.Grids[name]
		if !ok {
			t.Fatalf("example config is missing a Grids.%s section", name)
		}
		if g.Nx <= 0 || g.Ny <= 0 {
			t.Errorf("Grids.%s describes a %d x %d grid", name, g.Nx, g.Ny)
		}
		if _, err := proj.Parse(g.Proj); err != nil {
			t.Errorf("Grids.%s.Proj: %v", name, err)
		}
	}
}

// TestReadConfigFile checks that the example file loads through the
// --config path into the live configuration.
func TestReadConfigFile(t *testing.T) {
	Cfg.Set("config", "../cmd/icebin/configExample.toml")
	defer Cfg.Set("config", "")
	if err := setConfig(); err != nil {
		t.Fatal(err)
	}
	if nx := Cfg.GetInt("Grids.greenland.Nx"); nx != 76 {
		t.Errorf("Grids.greenland.Nx: have %d, want 76", nx)
	}
	if out := Cfg.GetString("output"); out != "topoo_merged.nc" {
		t.Errorf("output: have %q, want topoo_merged.nc", out)
	}
}
