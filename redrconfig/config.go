// Package redrconfig loads the engine's YAML configuration, with
// environment-variable overrides: v.Abc.Xyz can be overridden by
// REDR_ABC_XYZ, recursively, via reflection over the struct tree.
package redrconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Version is the config schema version; bumped on breaking field changes.
type Version string

// Configuration is the root config object loaded from YAML (and overridden
// from the environment) for every redr binary.
type Configuration struct {
	Version Version `yaml:"version"`

	Log struct {
		Level     string `yaml:"level"`
		Formatter string `yaml:"formatter"`
	} `yaml:"log"`

	Signatures struct {
		Dir    string `yaml:"dir"`
		Bundle string `yaml:"bundle"`
	} `yaml:"signatures"`

	Detection struct {
		KernelChannel     string   `yaml:"kernelchannel"`
		KernelSendTimeout Duration `yaml:"kernelsendtimeout"`
		MetricsAddr       string   `yaml:"metricsaddr"`
	} `yaml:"detection"`
}

// EnvPrefix is the prefix environment-variable overrides are matched
// against.
const EnvPrefix = "REDR"

// defaultKernelSendTimeout is used when the config omits
// Detection.KernelSendTimeout. The kernel port's native send timeout is
// expressed in opaque tick units with no portable wall-clock equivalent,
// so a conservative duration stands in for it here.
const defaultKernelSendTimeout = 2 * time.Second

// Parse decodes in as YAML into a Configuration, then applies any
// REDR_-prefixed environment variable overrides.
func Parse(in []byte) (*Configuration, error) {
	var c Configuration
	if err := yaml.Unmarshal(in, &c); err != nil {
		return nil, fmt.Errorf("redrconfig: %w", err)
	}

	if err := overwriteFromEnviron(&c, EnvPrefix); err != nil {
		return nil, err
	}

	if c.Detection.KernelSendTimeout == 0 {
		c.Detection.KernelSendTimeout = Duration(defaultKernelSendTimeout)
	}
	return &c, nil
}

// Duration wraps time.Duration so it can be read from YAML (and
// environment overrides) as a string like "5s", the same shorthand
// time.ParseDuration accepts.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("5s") or a bare integer
// of nanoseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		// yaml.v2 also decodes an integer scalar into a string, so a bare
		// integer arrives here and is read as nanoseconds.
		parsed, err := time.ParseDuration(s)
		if err != nil {
			n, convErr := strconv.ParseInt(s, 10, 64)
			if convErr != nil {
				return fmt.Errorf("redrconfig: invalid duration %q: %w", s, err)
			}
			parsed = time.Duration(n)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// ParseFile reads and parses the configuration file at path.
func ParseFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
