// Package inverter provides the solaredge decoder plugin. It reassembles
// telemetry frames from the raw byte stream, validates and decrypts them,
// and emits one record per decoded device reading.
package inverter

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/Osman-OO/pipe/solaredge"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Register adds the solaredge decode plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleDecode, `solaredge`, plugin.Registration{
		Defaults: plugin.Options{
			`save503`:       `yes`,
			`last_503_file`: `/var/lib/pipe/503.data`,
		},
		Factory: New,
	})
}

// Inverter decodes the telemetry wire protocol into records.
type Inverter struct {
	crypto  *solaredge.Crypto
	policy  solaredge.ResyncPolicy
	save503 bool
	file503 string

	mu      sync.Mutex
	streams map[string]*solaredge.Reassembler
	l       log.Logger
}

// New creates an Inverter decoder from merged options. Session keys come
// from key exchange frames decrypted with the privkey option, from static
// keys in the keys option, or both.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	var privkey []byte
	if pk := opts.String(`privkey`, ``); pk != "" {
		b, err := hex.DecodeString(pk)
		if err != nil {
			return nil, errors.Wrapf(plugin.ErrInvalidOption, "privkey is not valid hex: %v", err)
		}
		privkey = b
	}
	staticKeys := make(map[string]string)
	if raw := opts.String(`keys`, ``); raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &staticKeys); err != nil {
			return nil, errors.Wrapf(plugin.ErrInvalidOption, "keys is not a valid mapping: %v", err)
		}
	}
	if privkey == nil && len(staticKeys) == 0 {
		return nil, errors.Wrap(plugin.ErrInvalidOption, "need privkey or keys to decrypt telemetry")
	}

	crypto, err := solaredge.NewCrypto(privkey)
	if err != nil {
		return nil, errors.Wrap(err, "initializing crypto")
	}
	for dev, keyHex := range staticKeys {
		device, err := strconv.ParseUint(strings.TrimSpace(dev), 0, 32)
		if err != nil {
			return nil, errors.Wrapf(plugin.ErrInvalidOption, "device id %q: %v", dev, err)
		}
		key, err := hex.DecodeString(strings.TrimSpace(keyHex))
		if err != nil {
			return nil, errors.Wrapf(plugin.ErrInvalidOption, "key for device %q is not valid hex: %v", dev, err)
		}
		if err := crypto.SetSessionKey(uint32(device), key); err != nil {
			return nil, errors.Wrapf(plugin.ErrInvalidOption, "key for device %q: %v", dev, err)
		}
	}

	return &Inverter{
		crypto: crypto,
		policy: solaredge.ResyncPolicy{
			MaxFrameSize: opts.Int(`max_frame_size`, 0),
			MaxBuffer:    opts.Int(`max_buffer`, 0),
		},
		save503: opts.Bool(`save503`, true),
		file503: opts.String(`last_503_file`, ``),
		streams: make(map[string]*solaredge.Reassembler),
		l:       l,
	}, nil
}

// Start replays the persisted key exchange frame, if any, so decryption
// works immediately after a restart.
func (d *Inverter) Start() error {
	if d.file503 == "" {
		return nil
	}
	raw, err := os.ReadFile(d.file503)
	if err != nil {
		if os.IsNotExist(err) {
			d.l.Warnf("file with previous key exchange not found: %s", d.file503)
			return nil
		}
		return errors.Wrap(err, "reading key exchange file")
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		d.l.Warnf("persisted key exchange file is empty")
		return nil
	}
	wire, err := hex.DecodeString(line)
	if err != nil {
		d.l.Warnf("persisted key exchange is not valid hex: %v", err)
		return nil
	}
	frames, _ := solaredge.NewReassembler(d.policy).Feed(wire)
	for _, f := range frames {
		if f.Function != solaredge.FuncKeyExchange {
			continue
		}
		if err := d.crypto.HandleKeyExchange(f.Device, f.Payload); err != nil {
			d.l.Warnf("replaying key exchange: %v", err)
		} else {
			d.l.Infof("restored session key for device %#08x", f.Device)
		}
	}
	return nil
}

// Stop implements plugin.Plugin.
func (d *Inverter) Stop() error { return nil }

// Decode feeds the unit's bytes into the stream's reassembler and emits a
// unit per decoded device record. Corrupt frames, checksum failures and
// unknown-key frames are dropped individually; the stream continues.
func (d *Inverter) Decode(u *plugin.DataUnit) ([]*plugin.DataUnit, error) {
	frames, errs := d.reassembler(u.Stream).Feed(u.Bytes)
	for _, err := range errs {
		d.l.Warnf("stream %s: %v", u.Stream, err)
	}

	var units []*plugin.DataUnit
	for _, f := range frames {
		switch f.Function {
		case solaredge.FuncKeyExchange:
			if err := d.crypto.HandleKeyExchange(f.Device, f.Payload); err != nil {
				d.l.Errorf("key exchange for device %#08x: %v", f.Device, err)
				continue
			}
			d.l.Infof("session key established for device %#08x", f.Device)
			d.persist503(f)
		case solaredge.FuncTelemetry:
			units = append(units, d.decodeTelemetry(u.Stream, f)...)
		default:
			units = append(units, d.frameUnit(u.Stream, f, plugin.Record{
				`data`: append([]byte(nil), f.Payload...),
			}))
		}
	}
	return units, nil
}

func (d *Inverter) decodeTelemetry(stream string, f *solaredge.Frame) []*plugin.DataUnit {
	plaintext, err := d.crypto.Decrypt(f.Device, f.Payload)
	if err != nil {
		d.l.Errorf("dropping telemetry frame: %v", err)
		return nil
	}
	var units []*plugin.DataUnit
	for _, rec := range solaredge.ParseTelemetry(plaintext) {
		fields := plugin.Record{`device_type`: rec.Type}
		for k, v := range rec.Fields {
			fields[k] = v
		}
		units = append(units, d.frameUnit(stream, f, fields))
	}
	return units
}

func (d *Inverter) frameUnit(stream string, f *solaredge.Frame, fields plugin.Record) *plugin.DataUnit {
	fields[`device`] = int64(f.Device)
	fields[`sequence`] = int64(f.Sequence)
	fields[`function`] = int64(f.Function)
	return &plugin.DataUnit{Stream: stream, Fields: fields}
}

func (d *Inverter) persist503(f *solaredge.Frame) {
	if !d.save503 || d.file503 == "" {
		return
	}
	wire := solaredge.Encode(f)
	if err := os.WriteFile(d.file503, []byte(hex.EncodeToString(wire)+"\n"), 0600); err != nil {
		d.l.Errorf("saving key exchange frame: %v", err)
		return
	}
	d.l.Debugf("saved key exchange frame to %s", d.file503)
}

func (d *Inverter) reassembler(stream string) *solaredge.Reassembler {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, there := d.streams[stream]
	if !there {
		r = solaredge.NewReassembler(d.policy)
		d.streams[stream] = r
	}
	return r
}
