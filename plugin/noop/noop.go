// Package noop provides the pass-through decoder plugin. It wraps the raw
// payload as a single data field and replies to the input with a receive
// timestamp.
package noop

import (
	"time"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
)

// Register adds the noop decode plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleDecode, `noop`, plugin.Registration{
		Factory: New,
	})
}

// Noop wraps payloads without transforming them.
type Noop struct{}

// New creates a Noop decoder.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Noop{}, nil
}

// Start implements plugin.Plugin.
func (d *Noop) Start() error { return nil }

// Stop implements plugin.Plugin.
func (d *Noop) Stop() error { return nil }

// Decode stores the payload under the data field and sets a timestamp
// response for inputs that can reply to their source.
func (d *Noop) Decode(u *plugin.DataUnit) ([]*plugin.DataUnit, error) {
	u.Fields[`data`] = string(u.Bytes)
	u.Response = []byte(time.Now().Format(`2006-01-02 15:04:05`))
	return []*plugin.DataUnit{u}, nil
}
