// Package datafile provides the datafile output plugin. It archives the
// raw byte stream and the decoded records to a pair of files, one run per
// timestamped file pair.
package datafile

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Register adds the datafile output plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleOutput, `datafile`, plugin.Registration{
		Defaults: plugin.Options{
			`dir`:        `/var/lib/pipe/data`,
			`prefix`:     `pipe`,
			`timeformat`: `20060102_150405`,
			`write_raw`:  `yes`,
		},
		Factory: New,
	})
}

// Datafile archives raw bytes as hex lines and records as JSON lines.
type Datafile struct {
	dir        string
	prefix     string
	timeformat string
	writeRaw   bool

	mu      sync.Mutex
	rawFile *os.File
	recFile *os.File
	raw     *bufio.Writer
	rec     *bufio.Writer
	l       log.Logger
}

// New creates a Datafile output from merged options.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	dir, err := opts.Require(`dir`)
	if err != nil {
		return nil, err
	}
	return &Datafile{
		dir:        dir,
		prefix:     opts.String(`prefix`, `pipe`),
		timeformat: opts.String(`timeformat`, `20060102_150405`),
		writeRaw:   opts.Bool(`write_raw`, true),
		l:          l,
	}, nil
}

// Start opens the archive files. A directory that cannot be created or
// written is a startup failure.
func (o *Datafile) Start() error {
	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return errors.Wrap(err, "creating data directory")
	}
	stamp := time.Now().Format(o.timeformat)
	recPath := filepath.Join(o.dir, o.prefix+`-`+stamp+`.json`)
	recFile, err := os.OpenFile(recPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "opening record file")
	}
	o.recFile = recFile
	o.rec = bufio.NewWriter(recFile)

	if o.writeRaw {
		rawPath := filepath.Join(o.dir, o.prefix+`-`+stamp+`.raw`)
		rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			recFile.Close()
			return errors.Wrap(err, "opening raw file")
		}
		o.rawFile = rawFile
		o.raw = bufio.NewWriter(rawFile)
	}
	o.l.Infof("archiving records to %s", recPath)
	return nil
}

// Stop flushes and closes the archive files.
func (o *Datafile) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var firstErr error
	if o.rec != nil {
		if err := o.rec.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := o.recFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.raw != nil {
		if err := o.raw.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := o.rawFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Emit appends the record as one JSON line.
func (o *Datafile) Emit(rec plugin.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.rec.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "writing record")
	}
	return o.rec.Flush()
}

// HandleRaw appends the undecoded chunk as one hex line.
func (o *Datafile) HandleRaw(raw []byte) {
	if o.raw == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.raw.WriteString(hex.EncodeToString(raw) + "\n"); err != nil {
		o.l.Errorf("writing raw data: %v", err)
		return
	}
	if err := o.raw.Flush(); err != nil {
		o.l.Errorf("flushing raw data: %v", err)
	}
}
