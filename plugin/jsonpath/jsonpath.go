// Package jsonpath provides the json decoder plugin. It extracts fields
// from JSON payloads into the decoded record using gjson path
// expressions.
package jsonpath

import (
	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v2"
)

// Register adds the json decode plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleDecode, `json`, plugin.Registration{
		Defaults: plugin.Options{`strict`: `no`},
		Factory:  New,
	})
}

// JSONPath extracts record fields from JSON payloads.
type JSONPath struct {
	// paths maps record field name to a gjson path expression.
	paths  map[string]string
	strict bool
	l      log.Logger
}

// New creates a JSONPath decoder. The paths option is a YAML inline
// mapping of field name to gjson path, e.g.
//
//	paths = {power: inverter.acPower, serial: meta.serial}
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	raw, err := opts.Require(`paths`)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string)
	if err := yaml.Unmarshal([]byte(raw), &paths); err != nil {
		return nil, errors.Wrapf(plugin.ErrInvalidOption, "paths is not a valid mapping: %v", err)
	}
	if len(paths) == 0 {
		return nil, errors.Wrap(plugin.ErrInvalidOption, "paths mapping is empty")
	}
	return &JSONPath{
		paths:  paths,
		strict: opts.Bool(`strict`, false),
		l:      l,
	}, nil
}

// Start implements plugin.Plugin.
func (d *JSONPath) Start() error { return nil }

// Stop implements plugin.Plugin.
func (d *JSONPath) Stop() error { return nil }

// Decode extracts every configured path into the unit's fields. A missing
// path is skipped, or fails the unit in strict mode. Invalid JSON fails
// the unit.
func (d *JSONPath) Decode(u *plugin.DataUnit) ([]*plugin.DataUnit, error) {
	if !gjson.ValidBytes(u.Bytes) {
		return nil, errors.New("payload is not valid json")
	}
	parsed := gjson.ParseBytes(u.Bytes)
	for field, path := range d.paths {
		r := parsed.Get(path)
		if !r.Exists() {
			if d.strict {
				return nil, errors.Errorf("json path %s not found", path)
			}
			continue
		}
		u.Fields[field] = fieldValue(r)
	}
	return []*plugin.DataUnit{u}, nil
}

// fieldValue maps a gjson result onto the record scalar types.
func fieldValue(r gjson.Result) interface{} {
	switch r.Type {
	case gjson.Number:
		f := r.Float()
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case gjson.True:
		return int64(1)
	case gjson.False:
		return int64(0)
	case gjson.String:
		return r.String()
	default:
		return r.Raw
	}
}
