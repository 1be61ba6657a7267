package plugin

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Options holds the merged key/value configuration for one plugin instance.
type Options map[string]string

// Merge layers overrides on top of the receiver and returns the result.
// Override values win on key collision. Neither input is modified.
func (o Options) Merge(overrides Options) Options {
	merged := make(Options, len(o)+len(overrides))
	for k, v := range o {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// String returns the value for key, or def when unset.
func (o Options) String(key, def string) string {
	if v, there := o[key]; there {
		return v
	}
	return def
}

// Require returns the value for key or an ErrInvalidOption when missing or
// empty.
func (o Options) Require(key string) (string, error) {
	v, there := o[key]
	if !there || v == "" {
		return "", errors.Wrapf(ErrInvalidOption, "missing required option %q", key)
	}
	return v, nil
}

// Int returns the integer value for key, or def when unset or malformed.
func (o Options) Int(key string, def int) int {
	v, there := o[key]
	if !there {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool interprets yes/true/1 as true, matching the option style of the
// original configuration surface.
func (o Options) Bool(key string, def bool) bool {
	v, there := o[key]
	if !there {
		return def
	}
	switch strings.ToLower(v) {
	case `yes`, `true`, `1`, `on`:
		return true
	case `no`, `false`, `0`, `off`:
		return false
	}
	return def
}

// Duration returns the duration value for key, or def when unset or
// malformed. Plain integers are treated as seconds.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	v, there := o[key]
	if !there {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Strings splits a comma separated value into its trimmed parts.
func (o Options) Strings(key string) []string {
	v, there := o[key]
	if !there || v == "" {
		return nil
	}
	parts := strings.Split(v, `,`)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
