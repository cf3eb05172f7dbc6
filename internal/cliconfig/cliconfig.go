// Package cliconfig loads an optional YAML file of default values for
// apply-to-state's flags. A path given on the command line overrides the
// path the file sets, and --verbose or the file's verbose setting turns
// verbose logging on. minimumFreeGB has no command-line counterpart and
// can only be set here.
package cliconfig

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Defaults holds the values a config file may pre-fill: defaults for the
// --realm, --input, --encryption-key and --verbose flags, plus
// MinimumFreeGB, which has no flag.
type Defaults struct {
	Realm         string `yaml:"realm"`
	Input         string `yaml:"input"`
	EncryptionKey string `yaml:"encryptionKey"`
	Verbose       bool   `yaml:"verbose"`
	MinimumFreeGB int    `yaml:"minimumFreeGB"`
}

// Load reads path and unmarshals it into Defaults. A missing file is
// not an error: it returns the zero value, since the config file is
// optional.
func Load(path string) (Defaults, error) {
	var d Defaults
	if path == "" {
		return d, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return d, err
	}

	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, err
	}
	return d, nil
}
