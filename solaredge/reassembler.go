package solaredge

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

var magicBytes = []byte{0x12, 0x34, 0x56, 0x79}

// ResyncPolicy bounds how the reassembler recovers from malformed framing.
// The recovery heuristic scans forward for the next plausible frame start
// instead of aborting the stream.
type ResyncPolicy struct {
	// MaxFrameSize caps the payload length considered plausible. Larger
	// lengths are treated as corruption.
	MaxFrameSize int
	// MaxBuffer caps how many bytes may accumulate without a complete
	// frame before the buffer is flushed.
	MaxBuffer int
}

// DefaultResyncPolicy matches typical inverter telemetry sizes.
var DefaultResyncPolicy = ResyncPolicy{
	MaxFrameSize: 4096,
	MaxBuffer:    64 * 1024,
}

// Reassembler reconstructs Frames from an arbitrarily chunked byte stream.
// One Reassembler serves one stream and is not safe for concurrent use.
type Reassembler struct {
	buf    bytes.Buffer
	policy ResyncPolicy
}

// NewReassembler returns a Reassembler using the given policy. Zero policy
// fields fall back to DefaultResyncPolicy values.
func NewReassembler(policy ResyncPolicy) *Reassembler {
	if policy.MaxFrameSize <= 0 {
		policy.MaxFrameSize = DefaultResyncPolicy.MaxFrameSize
	}
	if policy.MaxBuffer <= 0 {
		policy.MaxBuffer = DefaultResyncPolicy.MaxBuffer
	}
	return &Reassembler{policy: policy}
}

// Pending returns the number of buffered bytes awaiting a complete frame.
func (r *Reassembler) Pending() int {
	return r.buf.Len()
}

// Feed appends chunk to the stream buffer and extracts every complete
// frame now available. Frames failing checksum validation and resync
// events are reported in errs; extraction continues past them so a single
// corrupt frame never poisons the frames that follow.
func (r *Reassembler) Feed(chunk []byte) (frames []*Frame, errs []error) {
	r.buf.Write(chunk)
	for {
		f, err, more := r.next()
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
		if !more {
			break
		}
	}
	if r.buf.Len() > r.policy.MaxBuffer {
		errs = append(errs, errors.Wrapf(ErrFraming, "flushing %d buffered bytes without a frame", r.buf.Len()))
		r.buf.Reset()
	}
	return frames, errs
}

// next attempts one extraction step. more reports whether another step
// could make progress.
func (r *Reassembler) next() (f *Frame, err error, more bool) {
	if skipped := r.seekMagic(); skipped > 0 {
		err = errors.Wrapf(ErrFraming, "skipped %d bytes resynchronizing", skipped)
	}
	buf := r.buf.Bytes()
	if len(buf) < headerSize {
		return nil, err, false
	}
	length := int(binary.BigEndian.Uint16(buf[4:]))
	lengthInv := binary.BigEndian.Uint16(buf[6:])
	if uint16(length) != ^lengthInv || length > r.policy.MaxFrameSize {
		// Implausible header. Drop one byte and hunt for the next magic.
		r.buf.Next(1)
		if err == nil {
			err = errors.Wrapf(ErrFraming, "implausible length %d", length)
		}
		return nil, err, true
	}
	total := headerSize + length + trailerSize
	if len(buf) < total {
		return nil, err, false
	}
	f, derr := decode(buf, length)
	r.buf.Next(total)
	if derr != nil {
		return nil, derr, true
	}
	return f, err, true
}

// seekMagic discards bytes preceding the next magic marker, keeping a
// partial marker suffix for the next Feed. Returns the count discarded.
func (r *Reassembler) seekMagic() int {
	buf := r.buf.Bytes()
	if len(buf) == 0 {
		return 0
	}
	if idx := bytes.Index(buf, magicBytes); idx >= 0 {
		r.buf.Next(idx)
		return idx
	}
	// No full marker. Keep the longest buffer suffix that could be the
	// start of one.
	keep := 0
	for n := len(magicBytes) - 1; n > 0; n-- {
		if len(buf) >= n && bytes.HasSuffix(buf, magicBytes[:n]) {
			keep = n
			break
		}
	}
	skipped := len(buf) - keep
	r.buf.Next(skipped)
	return skipped
}
