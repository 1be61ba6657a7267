// Package solaredge implements the inverter telemetry wire protocol:
// frame reassembly, checksum validation, payload decryption and field
// extraction into decoded records.
package solaredge

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire format, big-endian:
//
//	magic u32 | length u16 | ^length u16 | sequence u16 |
//	device u32 | function u16 | payload ... | crc16 u16
//
// The crc covers sequence through payload.
const (
	Magic       = 0x12345679
	headerSize  = 16
	trailerSize = 2
	crcOffset   = 8
)

// Known function codes.
const (
	// FuncTelemetry frames carry an encrypted telemetry payload.
	FuncTelemetry = 0x0500
	// FuncKeyExchange frames establish the session key for a device.
	FuncKeyExchange = 0x0503
)

// Per-frame errors. Frames failing with any of these are dropped; the
// stream continues.
var (
	ErrFraming      = errors.New("malformed framing")
	ErrChecksum     = errors.New("checksum mismatch")
	ErrNoSessionKey = errors.New("no session key for device")
)

// Frame is one validated unit of the wire protocol.
type Frame struct {
	Sequence uint16
	Device   uint32
	Function uint16
	Payload  []byte
}

// Encode serializes the Frame, computing the inverted length and crc.
func Encode(f *Frame) []byte {
	buf := make([]byte, headerSize+len(f.Payload)+trailerSize)
	binary.BigEndian.PutUint32(buf[0:], Magic)
	binary.BigEndian.PutUint16(buf[4:], uint16(len(f.Payload)))
	binary.BigEndian.PutUint16(buf[6:], ^uint16(len(f.Payload)))
	binary.BigEndian.PutUint16(buf[8:], f.Sequence)
	binary.BigEndian.PutUint32(buf[10:], f.Device)
	binary.BigEndian.PutUint16(buf[14:], f.Function)
	copy(buf[headerSize:], f.Payload)
	crc := Checksum(buf[crcOffset : headerSize+len(f.Payload)])
	binary.BigEndian.PutUint16(buf[headerSize+len(f.Payload):], crc)
	return buf
}

// decode parses one complete frame from the start of buf. The caller has
// already verified magic, plausible length and that buf holds the whole
// frame. A checksum mismatch returns ErrChecksum.
func decode(buf []byte, length int) (*Frame, error) {
	want := binary.BigEndian.Uint16(buf[headerSize+length:])
	got := Checksum(buf[crcOffset : headerSize+length])
	if got != want {
		return nil, errors.Wrapf(ErrChecksum, "got %#04x want %#04x", got, want)
	}
	payload := make([]byte, length)
	copy(payload, buf[headerSize:headerSize+length])
	return &Frame{
		Sequence: binary.BigEndian.Uint16(buf[8:]),
		Device:   binary.BigEndian.Uint32(buf[10:]),
		Function: binary.BigEndian.Uint16(buf[14:]),
		Payload:  payload,
	}, nil
}
