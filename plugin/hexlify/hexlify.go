// Package hexlify provides the hexlify and unhexlify decoder plugins:
// byte level transforms between binary payloads and their hex encoding.
package hexlify

import (
	"encoding/hex"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Register adds the hexlify and unhexlify decode plugins to the registry.
func Register(reg *plugin.Registry) error {
	if err := reg.Register(plugin.RoleDecode, `hexlify`, plugin.Registration{
		Factory: NewHexlify,
	}); err != nil {
		return err
	}
	return reg.Register(plugin.RoleDecode, `unhexlify`, plugin.Registration{
		Defaults: plugin.Options{`errors`: `halt`},
		Factory:  NewUnhexlify,
	})
}

// Hexlify encodes payload bytes as hex.
type Hexlify struct{}

// NewHexlify creates a Hexlify decoder.
func NewHexlify(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Hexlify{}, nil
}

// Start implements plugin.Plugin.
func (d *Hexlify) Start() error { return nil }

// Stop implements plugin.Plugin.
func (d *Hexlify) Stop() error { return nil }

// Decode replaces the payload with its hex encoding.
func (d *Hexlify) Decode(u *plugin.DataUnit) ([]*plugin.DataUnit, error) {
	u.Bytes = []byte(hex.EncodeToString(u.Bytes))
	return []*plugin.DataUnit{u}, nil
}

// Unhexlify decodes hex payloads back to bytes. The errors option selects
// whether malformed input halts the unit (halt) or drops it (ignore).
type Unhexlify struct {
	ignore bool
	l      log.Logger
}

// NewUnhexlify creates an Unhexlify decoder.
func NewUnhexlify(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Unhexlify{
		ignore: opts.String(`errors`, `halt`) == `ignore`,
		l:      l,
	}, nil
}

// Start implements plugin.Plugin.
func (d *Unhexlify) Start() error { return nil }

// Stop implements plugin.Plugin.
func (d *Unhexlify) Stop() error { return nil }

// Decode replaces the hex payload with the decoded bytes.
func (d *Unhexlify) Decode(u *plugin.DataUnit) ([]*plugin.DataUnit, error) {
	b, err := hex.DecodeString(string(u.Bytes))
	if err != nil {
		if d.ignore {
			d.l.Warnf("ignoring malformed hex unit: %v", err)
			return nil, plugin.ErrDrop
		}
		return nil, errors.Wrap(err, "unhexlify")
	}
	u.Bytes = b
	return []*plugin.DataUnit{u}, nil
}
