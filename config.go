package pipe

import (
	"strings"

	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Default plugin selection when the config file leaves the plugins section
// empty.
const (
	DefaultInput  = `fileread`
	DefaultDecode = `noop`
	DefaultOutput = `print`
)

// Config is the merged configuration: a mapping from section name to
// key/value options. Precedence, lowest to highest: plugin defaults, config
// file values, -O command line overrides.
type Config struct {
	sections map[string]plugin.Options
}

// NewConfig returns an empty Config.
func NewConfig() *Config {
	return &Config{sections: make(map[string]plugin.Options)}
}

// LoadConfig reads an INI config file. An empty path yields an empty
// Config so the pipeline can run on defaults and overrides alone.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			name = `main`
		}
		opts := cfg.section(name)
		for _, key := range section.Keys() {
			opts[key.Name()] = key.Value()
		}
	}
	return cfg, nil
}

// ApplyOverrides layers command line overrides of the form
// section.key=value onto the Config. A key without a section part lands in
// the main section. Malformed entries are reported, not fatal.
func (c *Config) ApplyOverrides(overrides []string) []error {
	var errs []error
	for _, o := range overrides {
		key, val, found := strings.Cut(o, `=`)
		if !found || key == "" {
			errs = append(errs, errors.Errorf("malformed override %q, want section.key=value", o))
			continue
		}
		section := `main`
		if idx := strings.LastIndex(key, `.`); idx >= 0 {
			if idx > 0 {
				section = key[:idx]
			}
			key = key[idx+1:]
		}
		if key == "" {
			errs = append(errs, errors.Errorf("malformed override %q, empty key", o))
			continue
		}
		c.section(section)[key] = val
	}
	return errs
}

// Section returns the options for a section, never nil.
func (c *Config) Section(name string) plugin.Options {
	if opts, there := c.sections[name]; there {
		return opts
	}
	return plugin.Options{}
}

func (c *Config) section(name string) plugin.Options {
	opts, there := c.sections[name]
	if !there {
		opts = make(plugin.Options)
		c.sections[name] = opts
	}
	return opts
}

// Specs resolves the plugins section into the configured stage specs: one
// input, an ordered decoder chain and an ordered output fan-out set. Each
// plugin's options come from its own section.
func (c *Config) Specs() (input plugin.Spec, decoders, outputs []plugin.Spec) {
	plugins := c.Section(`plugins`)
	input = c.spec(plugin.RoleInput, plugins.String(`input`, DefaultInput))
	decodeNames := plugins.Strings(`decode`)
	if len(decodeNames) == 0 {
		decodeNames = []string{DefaultDecode}
	}
	for _, name := range decodeNames {
		decoders = append(decoders, c.spec(plugin.RoleDecode, name))
	}
	outputNames := plugins.Strings(`output`)
	if len(outputNames) == 0 {
		outputNames = []string{DefaultOutput}
	}
	for _, name := range outputNames {
		outputs = append(outputs, c.spec(plugin.RoleOutput, name))
	}
	return input, decoders, outputs
}

func (c *Config) spec(role plugin.Role, name string) plugin.Spec {
	return plugin.Spec{Role: role, Name: name, Options: c.Section(name)}
}
