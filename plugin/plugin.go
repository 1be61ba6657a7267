package plugin

import (
	"context"

	"github.com/pkg/errors"
)

// Role identifies the capability a plugin registers under.
type Role string

// Available plugin Roles:
const (
	RoleInput  Role = `input`
	RoleDecode Role = `decode`
	RoleOutput Role = `output`
)

// Sentinel errors used on the plugin contract.
var (
	// ErrDrop is returned by a Decoder to discard the current unit without
	// treating it as a failure. Remaining decoders and outputs are skipped.
	ErrDrop = errors.New("unit dropped")
	// ErrUnknownPlugin is returned when no implementation is registered for
	// a (role, name) pair.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrInvalidOption is returned when a required option is missing or
	// malformed after merging defaults and overrides.
	ErrInvalidOption = errors.New("invalid option")
)

// Record is the decoded, named-field form handed to Output plugins.
// Values are one of int64, float64, string, time.Time or []byte.
type Record map[string]interface{}

// Clone returns a shallow copy of the Record.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// DataUnit travels through the decoder chain before becoming a Record.
type DataUnit struct {
	// Stream identifies the logical source stream the unit belongs to,
	// e.g. a remote address for socket inputs. Units from the same stream
	// are decoded in order; different streams may interleave.
	Stream string
	// Bytes is the opaque in-flight payload.
	Bytes []byte
	// Fields accumulates decoded fields across the chain. After the last
	// decoder it is delivered to the outputs as the Record.
	Fields Record
	// Response optionally carries reply bytes for the originating input.
	Response []byte
}

// NewDataUnit wraps raw bytes from the given stream as the initial unit
// with an empty decoded context.
func NewDataUnit(stream string, raw []byte) *DataUnit {
	return &DataUnit{
		Stream: stream,
		Bytes:  raw,
		Fields: make(Record),
	}
}

// DeliverFunc is invoked by an Input once per unit of raw data it produces.
type DeliverFunc func(stream string, raw []byte)

// Plugin is the common lifecycle shared by all roles. Start is the one-time
// initialization hook run after options are bound; Stop releases any
// resources the plugin allocated.
type Plugin interface {
	Start() error
	Stop() error
}

// Input works with sources of data. Run blocks, invoking deliver once per
// produced unit, and returns when input is exhausted or ctx is canceled.
// A non-nil error from Run is fatal for the pipeline.
type Input interface {
	Plugin
	Run(ctx context.Context, deliver DeliverFunc) error
}

// Responder is optionally implemented by Inputs that can send decoder
// responses back to their source, e.g. a connected TCP client.
type Responder interface {
	Respond(stream string, resp []byte) error
}

// Decoder transforms units. It consumes one unit and returns zero or more
// resulting units; a frame-oriented decoder may buffer partial input and
// emit several completed units at once. Returning ErrDrop discards the unit
// silently; any other error aborts the unit but not the pipeline.
type Decoder interface {
	Plugin
	Decode(u *DataUnit) ([]*DataUnit, error)
}

// Output stores or forwards decoded Records.
type Output interface {
	Plugin
	Emit(rec Record) error
}

// RawHandler is optionally implemented by Outputs that also want the raw
// bytes of every unit before decoding, e.g. for archiving.
type RawHandler interface {
	HandleRaw(raw []byte)
}
