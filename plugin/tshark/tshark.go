// Package tshark provides an input plugin that spawns a tshark process
// with a capture filter and reads the hex encoded payload of every
// matching packet from its stdout.
package tshark

import (
	"bufio"
	"context"
	"encoding/hex"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Register adds the tshark input plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleInput, `tshark`, plugin.Registration{
		Defaults: plugin.Options{
			`exe`:             `/usr/bin/tshark`,
			`interface`:       `eth0`,
			`filter`:          `tcp`,
			`write_pcap`:      `no`,
			`pcap_dir`:        `/var/lib/pipe/pcap`,
			`pcap_timeformat`: `20060102_150405`,
		},
		Factory: New,
	})
}

// Tshark reads packet payloads from a tshark subprocess as Input.
type Tshark struct {
	Exe        string
	Interface  string
	Filter     string
	WritePcap  bool
	PcapDir    string
	timeFormat string
	l          log.Logger
}

// New creates a Tshark input from merged options.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Tshark{
		Exe:        opts.String(`exe`, `/usr/bin/tshark`),
		Interface:  opts.String(`interface`, `eth0`),
		Filter:     opts.String(`filter`, `tcp`),
		WritePcap:  opts.Bool(`write_pcap`, false),
		PcapDir:    opts.String(`pcap_dir`, `/var/lib/pipe/pcap`),
		timeFormat: opts.String(`pcap_timeformat`, `20060102_150405`),
		l:          l,
	}, nil
}

// Start verifies the executable exists so a bad path fails at startup.
func (in *Tshark) Start() error {
	if _, err := exec.LookPath(in.Exe); err != nil {
		return errors.Wrapf(err, "tshark executable %s", in.Exe)
	}
	return nil
}

// Stop implements plugin.Plugin. Run kills the subprocess via ctx.
func (in *Tshark) Stop() error {
	return nil
}

// Args builds the tshark command line for the configured capture.
func (in *Tshark) Args() []string {
	args := []string{`-l`, `-i`, in.Interface, `-f`, in.Filter, `-T`, `fields`, `-e`, `data`}
	if in.WritePcap {
		pcap := filepath.Join(in.PcapDir, time.Now().Format(in.timeFormat)+`.pcap`)
		args = append(args, `-w`, pcap)
	}
	return args
}

// Run spawns tshark and delivers every unhexlified payload line. The
// subprocess terminating on its own is a fatal source error.
func (in *Tshark) Run(ctx context.Context, deliver plugin.DeliverFunc) error {
	cmd := exec.CommandContext(ctx, in.Exe, in.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "creating tshark stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "starting tshark")
	}
	in.l.Infof("tshark started on %s with filter %q", in.Interface, in.Filter)

	stream := `tshark:` + in.Interface
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// tshark prints multi-field payloads colon separated.
		raw, err := hex.DecodeString(strings.ReplaceAll(line, `:`, ``))
		if err != nil {
			in.l.Warnf("skipping line that is not valid hex: %v", err)
			continue
		}
		deliver(stream, raw)
	}
	werr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if werr != nil {
		return errors.Wrap(werr, "tshark terminated")
	}
	return errors.New("tshark terminated unexpectedly")
}
