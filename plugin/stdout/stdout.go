// Package stdout provides the print output plugin, the default sink. It
// writes decoded records, and optionally the raw byte stream, to standard
// output.
package stdout

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Register adds the print output plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleOutput, `print`, plugin.Registration{
		Defaults: plugin.Options{
			`print_raw`:   `no`,
			`hexlify_raw`: `yes`,
		},
		Factory: New,
	})
}

// Stdout prints records as JSON lines.
type Stdout struct {
	printRaw   bool
	hexlifyRaw bool
	w          io.Writer
	l          log.Logger
}

// New creates a Stdout output from merged options.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Stdout{
		printRaw:   opts.Bool(`print_raw`, false),
		hexlifyRaw: opts.Bool(`hexlify_raw`, true),
		w:          os.Stdout,
		l:          l,
	}, nil
}

// Start implements plugin.Plugin.
func (o *Stdout) Start() error { return nil }

// Stop implements plugin.Plugin.
func (o *Stdout) Stop() error { return nil }

// Emit writes the record as one JSON line.
func (o *Stdout) Emit(rec plugin.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	_, err = fmt.Fprintln(o.w, string(b))
	return err
}

// HandleRaw prints the undecoded byte stream when print_raw is set.
func (o *Stdout) HandleRaw(raw []byte) {
	if !o.printRaw {
		return
	}
	if o.hexlifyRaw {
		fmt.Fprintln(o.w, hex.EncodeToString(raw))
		return
	}
	fmt.Fprintln(o.w, string(raw))
}
