// Package linker implements the multi-module linker (spec §4.6,
// component C7): it ingests a set of MIR modules plus, optionally, a
// library manifest describing pre-assembled routines the program is
// allowed to call without a local definition, and produces a single
// Program with a resolved global table, a validated call graph, and a
// laid-out data segment.
package linker

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest describes an external library of pre-assembled routines
// (spec §6 "library search"): the prefixes it's allowed to leave
// unresolved at link time, and the symbols it actually exports, which
// count as definitions for global-symbol dependency analysis (§4.6
// step 5) without requiring a MIR module for them.
type Manifest struct {
	Name            string   `yaml:"name"`
	AllowMissing    []string `yaml:"allow_missing"`
	ExportedSymbols []string `yaml:"exports"`
}

// LoadManifest reads a library manifest from path, in the YAML format
// documented by spec §6's library-search interface.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "linker: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "linker: parse manifest %s", path)
	}
	return &m, nil
}

// matchesAllowMissing reports whether symbol is covered by any of the
// caller-supplied or manifest-declared allow-missing prefixes.
func matchesAllowMissing(symbol string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(symbol) >= len(p) && symbol[:len(p)] == p {
			return true
		}
	}
	return false
}
