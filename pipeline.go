// Package pipe assembles configurable telemetry pipelines: one input
// source feeding an ordered decoder chain whose records fan out to a set
// of output sinks.
package pipe

import (
	"context"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Pipeline owns one Input, an ordered Decoder chain and a non-empty set of
// Outputs for the duration of a run. All plugin instances are created
// through Build and shut down by the Pipeline; none escape its lifetime.
type Pipeline struct {
	Name     string
	Input    plugin.Input
	Decoders []plugin.Decoder
	Outputs  []plugin.Output
	L        log.Logger
}

// Build resolves every configured stage through the registry and wires a
// Pipeline. Plugin Start hooks run during resolution; on any failure the
// already started plugins are stopped again before returning.
func Build(cfg *Config, reg *plugin.Registry, l log.Logger) (*Pipeline, error) {
	if l == nil {
		l = log.NewNoop()
	}
	p := &Pipeline{Name: `pipe`, L: l}

	inSpec, decSpecs, outSpecs := cfg.Specs()

	l.Debugf("configured input plugin: %s", inSpec.Name)
	in, err := reg.ResolveInput(inSpec, l)
	if err != nil {
		return nil, err
	}
	p.Input = in

	for _, spec := range decSpecs {
		l.Debugf("configured decode plugin: %s", spec.Name)
		dec, err := reg.ResolveDecoder(spec, l)
		if err != nil {
			p.stopAll()
			return nil, err
		}
		p.Decoders = append(p.Decoders, dec)
	}

	for _, spec := range outSpecs {
		l.Debugf("configured output plugin: %s", spec.Name)
		out, err := reg.ResolveOutput(spec, l)
		if err != nil {
			p.stopAll()
			return nil, err
		}
		p.Outputs = append(p.Outputs, out)
	}
	if len(p.Outputs) == 0 {
		p.stopAll()
		return nil, errors.New("pipeline needs at least one output")
	}
	return p, nil
}

// Run drives the Input's blocking run loop, delivering every produced unit
// through the decoder chain. It returns when input is exhausted, the
// context is canceled, or the input fails fatally. Plugins are stopped
// before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.L == nil {
		p.L = log.NewNoop()
	}
	p.L.Infof("pipeline starting: %d decoder(s), %d output(s)", len(p.Decoders), len(p.Outputs))
	err := p.Input.Run(ctx, p.Deliver)
	p.L.Infof("pipeline input finished")
	p.stopAll()
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "input source failed")
	}
	return nil
}

// Deliver pushes one unit of raw data through the pipeline. It is invoked
// synchronously by the Input once per produced unit and is safe to call
// from multiple goroutines when the input serves concurrent streams;
// ordering is guaranteed per stream, decoders partition their own state.
func (p *Pipeline) Deliver(stream string, raw []byte) {
	for _, out := range p.Outputs {
		if rh, ok := out.(plugin.RawHandler); ok {
			rh.HandleRaw(raw)
		}
	}

	units := []*plugin.DataUnit{plugin.NewDataUnit(stream, raw)}
	for _, dec := range p.Decoders {
		var next []*plugin.DataUnit
		for _, u := range units {
			got, err := dec.Decode(u)
			switch {
			case errors.Is(err, plugin.ErrDrop):
				p.L.Debugf("unit dropped by decoder")
			case err != nil:
				p.L.Errorf("decode error: %v", err)
			default:
				next = append(next, got...)
			}
		}
		units = next
		if len(units) == 0 {
			return
		}
	}

	responder, _ := p.Input.(plugin.Responder)
	for _, u := range units {
		if responder != nil && len(u.Response) > 0 {
			if err := responder.Respond(u.Stream, u.Response); err != nil {
				p.L.Warnf("response to input failed: %v", err)
			}
		}
		rec := u.Fields
		if len(rec) == 0 {
			// Chains of pure byte transforms never populate fields; the
			// terminal payload becomes the record.
			rec = plugin.Record{`data`: u.Bytes}
		}
		p.emit(rec)
	}
}

// emit fans one Record out to every output in configured order. A failing
// sink is logged and isolated; later sinks still receive the Record.
func (p *Pipeline) emit(rec plugin.Record) {
	for _, out := range p.Outputs {
		if err := out.Emit(rec); err != nil {
			p.L.Errorf("output error: %v", err)
		}
	}
}

func (p *Pipeline) stopAll() {
	for i := len(p.Outputs) - 1; i >= 0; i-- {
		if err := p.Outputs[i].Stop(); err != nil {
			p.L.Warnf("stopping output: %v", err)
		}
	}
	p.Outputs = nil
	for i := len(p.Decoders) - 1; i >= 0; i-- {
		if err := p.Decoders[i].Stop(); err != nil {
			p.L.Warnf("stopping decoder: %v", err)
		}
	}
	p.Decoders = nil
	if p.Input != nil {
		if err := p.Input.Stop(); err != nil {
			p.L.Warnf("stopping input: %v", err)
		}
		p.Input = nil
	}
}
