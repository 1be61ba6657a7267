// Package loki provides the loki output plugin. It ships decoded records
// to a Loki instance as JSON log lines through the promtail client.
package loki

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/cortexproject/cortex/pkg/util"
	"github.com/cortexproject/cortex/pkg/util/flagext"
	gklog "github.com/go-kit/kit/log"
	lclient "github.com/grafana/loki/pkg/promtail/client"
	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v2"
)

// Register adds the loki output plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleOutput, `loki`, plugin.Registration{
		Defaults: plugin.Options{
			`labels`:      `{job: pipe}`,
			`max_backoff`: `60`,
			`min_backoff`: `5`,
			`max_retries`: `3`,
			`batch_size`:  `204800`,
			`batch_wait`:  `5`,
			`timeout`:     `5`,
		},
		Factory: New,
	})
}

// Loki pushes records to a Loki push endpoint.
type Loki struct {
	cfg    lclient.Config
	labels model.LabelSet

	loki lclient.Client
	l    log.Logger
}

// New creates a Loki output from merged options. The labels option is a
// YAML inline mapping of static stream labels; timestamp and device_type
// fields on a record become per-entry labels.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	rawURL, err := opts.Require(`url`)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(plugin.ErrInvalidOption, "invalid loki url: %v", err)
	}
	tags := make(map[string]string)
	if raw := opts.String(`labels`, ``); raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &tags); err != nil {
			return nil, errors.Wrapf(plugin.ErrInvalidOption, "labels is not a valid mapping: %v", err)
		}
	}
	return &Loki{
		cfg: lclient.Config{
			URL: flagext.URLValue{URL: u},
			BackoffConfig: util.BackoffConfig{
				MaxBackoff: opts.Duration(`max_backoff`, time.Minute),
				MinBackoff: opts.Duration(`min_backoff`, 5*time.Second),
				MaxRetries: opts.Int(`max_retries`, 3),
			},
			BatchSize: opts.Int(`batch_size`, 100*2048),
			BatchWait: opts.Duration(`batch_wait`, 5*time.Second),
			Timeout:   opts.Duration(`timeout`, 5*time.Second),
		},
		labels: createLabelSet(tags),
		l:      l,
	}, nil
}

// Start creates the promtail client.
func (o *Loki) Start() error {
	c, err := lclient.New(o.cfg, gklog.NewNopLogger())
	if err != nil {
		return errors.Wrap(err, "could not create loki client")
	}
	o.loki = c
	return nil
}

// Stop flushes pending batches and stops the client.
func (o *Loki) Stop() error {
	if o.loki != nil {
		o.loki.Stop()
	}
	return nil
}

// Emit ships the record as one JSON log line. The entry timestamp comes
// from the record's timestamp field when present, and a device_type field
// is promoted to a stream label.
func (o *Loki) Emit(rec plugin.Record) error {
	ls := o.labels.Clone()
	ts := time.Now()
	if t, ok := rec[`timestamp`].(time.Time); ok {
		ts = t
	}
	if dt, ok := rec[`device_type`].(string); ok {
		ls[model.LabelName(`device_type`)] = model.LabelValue(dt)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	if err := o.loki.Handle(ls, ts, string(b)); err != nil {
		return errors.Wrap(err, "sending to loki")
	}
	return nil
}

func createLabelSet(tags map[string]string) model.LabelSet {
	labelSet := make(model.LabelSet, len(tags))
	for k, v := range tags {
		labelSet[model.LabelName(k)] = model.LabelValue(v)
	}
	return labelSet
}
