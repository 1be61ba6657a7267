// Package fileread provides the file based input plugin. It reads a file
// line by line in deterministic order, optionally unhexlifying each line,
// and can keep following the file for appended lines.
package fileread

import (
	"bufio"
	"context"
	"encoding/hex"
	"os"
	"strings"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/nxadm/tail"
	"github.com/pkg/errors"
)

// Register adds the fileread input plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleInput, `fileread`, plugin.Registration{
		Defaults: plugin.Options{
			`unhexlify`:    `no`,
			`follow`:       `no`,
			`follow_delay`: `2`,
		},
		Factory: New,
	})
}

// Fileread reads lines from a single file as Input.
type Fileread struct {
	Path      string
	Unhexlify bool
	Follow    bool
	l         log.Logger
}

// New creates a Fileread from merged options.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	path, err := opts.Require(`filename`)
	if err != nil {
		return nil, err
	}
	return &Fileread{
		Path:      path,
		Unhexlify: opts.Bool(`unhexlify`, false),
		Follow:    opts.Bool(`follow`, false),
		l:         l,
	}, nil
}

// Start verifies the file is readable.
func (in *Fileread) Start() error {
	f, err := os.Open(in.Path)
	if err != nil {
		return errors.Wrap(err, "opening input file")
	}
	return f.Close()
}

// Stop implements plugin.Plugin. Run releases its own handles.
func (in *Fileread) Stop() error {
	return nil
}

// Run delivers every line of the file in order and returns at end of
// input, or keeps tailing the file when follow is enabled.
func (in *Fileread) Run(ctx context.Context, deliver plugin.DeliverFunc) error {
	in.l.Infof("running fileread plugin with file: %s", in.Path)
	if in.Follow {
		return in.runFollow(ctx, deliver)
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return errors.Wrap(err, "opening input file")
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		in.deliverLine(scanner.Text(), deliver)
	}
	return scanner.Err()
}

func (in *Fileread) runFollow(ctx context.Context, deliver plugin.DeliverFunc) error {
	t, err := tail.TailFile(in.Path, tail.Config{Follow: true, ReOpen: true, Logger: tail.DiscardingLogger})
	if err != nil {
		return errors.Wrap(err, "tailing input file")
	}
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				in.l.Warnf("tail error: %v", line.Err)
				continue
			}
			in.deliverLine(line.Text, deliver)
		}
	}
}

func (in *Fileread) deliverLine(line string, deliver plugin.DeliverFunc) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return
	}
	raw := []byte(line)
	if in.Unhexlify {
		b, err := hex.DecodeString(line)
		if err != nil {
			in.l.Warnf("skipping line that is not valid hex: %v", err)
			return
		}
		raw = b
	}
	deliver(in.Path, raw)
}
