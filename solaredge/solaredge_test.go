package solaredge

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumVector(t *testing.T) {
	// CRC-16/X-25 check value for "123456789".
	assert.Equal(t, uint16(0x906E), Checksum([]byte(`123456789`)))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{Sequence: 7, Device: 0xDEADBEEF, Function: FuncTelemetry, Payload: []byte(`hello frame`)}
	wire := Encode(f)

	r := NewReassembler(ResyncPolicy{})
	frames, errs := r.Feed(wire)
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, f.Sequence, frames[0].Sequence)
	assert.Equal(t, f.Device, frames[0].Device)
	assert.Equal(t, f.Function, frames[0].Function)
	assert.Equal(t, f.Payload, frames[0].Payload)
	assert.Zero(t, r.Pending())
}

func TestReassemblerChunkedDelivery(t *testing.T) {
	var wire []byte
	for i := 0; i < 5; i++ {
		wire = append(wire, Encode(&Frame{Sequence: uint16(i), Device: 1, Function: FuncTelemetry, Payload: []byte{byte(i)}})...)
	}

	// Feed one byte at a time; every frame must still come out, in order.
	r := NewReassembler(ResyncPolicy{})
	var frames []*Frame
	for _, b := range wire {
		got, errs := r.Feed([]byte{b})
		require.Empty(t, errs)
		frames = append(frames, got...)
	}
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, uint16(i), f.Sequence)
	}
}

func TestChecksumFailureDropsOnlyThatFrame(t *testing.T) {
	valid := func(seq uint16) []byte {
		return Encode(&Frame{Sequence: seq, Device: 1, Function: FuncTelemetry, Payload: []byte(`payload`)})
	}
	corrupt := valid(99)
	corrupt[headerSize] ^= 0xFF // flip a payload byte, checksum now invalid

	var wire []byte
	wire = append(wire, valid(0)...)
	wire = append(wire, valid(1)...)
	wire = append(wire, corrupt...)
	wire = append(wire, valid(2)...)

	r := NewReassembler(ResyncPolicy{})
	frames, errs := r.Feed(wire)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrChecksum)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint16(i), f.Sequence)
	}
}

func TestResyncSkipsGarbage(t *testing.T) {
	f := Encode(&Frame{Sequence: 3, Device: 2, Function: FuncTelemetry, Payload: []byte(`x`)})
	wire := append([]byte{0x00, 0x01, 0x02, 0xFF, 0xFE}, f...)

	r := NewReassembler(ResyncPolicy{})
	frames, errs := r.Feed(wire)
	require.Len(t, frames, 1)
	assert.Equal(t, uint16(3), frames[0].Sequence)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrFraming)
}

func TestResyncImplausibleLength(t *testing.T) {
	f := Encode(&Frame{Sequence: 1, Device: 2, Function: FuncTelemetry, Payload: []byte(`ok`)})
	// A magic marker followed by a header whose length check fails.
	bogus := make([]byte, headerSize)
	binary.BigEndian.PutUint32(bogus[0:], Magic)
	binary.BigEndian.PutUint16(bogus[4:], 0x7FFF)
	binary.BigEndian.PutUint16(bogus[6:], 0x1234) // not ^length

	r := NewReassembler(ResyncPolicy{})
	frames, errs := r.Feed(append(bogus, f...))
	require.Len(t, frames, 1)
	assert.Equal(t, uint16(1), frames[0].Sequence)
	assert.NotEmpty(t, errs)
}

func TestReassemblerFlushesOversizedBuffer(t *testing.T) {
	r := NewReassembler(ResyncPolicy{MaxFrameSize: 16, MaxBuffer: 32})
	// A plausible header announcing more payload than will ever arrive
	// keeps the buffer growing until the policy flushes it.
	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[0:], Magic)
	binary.BigEndian.PutUint16(hdr[4:], 16)
	binary.BigEndian.PutUint16(hdr[6:], ^uint16(16))
	_, errs := r.Feed(hdr)
	assert.Empty(t, errs)
	_, errs = r.Feed(bytes.Repeat([]byte{0xAA}, 40))
	require.NotEmpty(t, errs)
	assert.Zero(t, r.Pending())
}

func TestCryptoRoundTrip(t *testing.T) {
	priv := bytes.Repeat([]byte{0x42}, KeySize)
	c, err := NewCrypto(priv)
	require.NoError(t, err)

	exchange := []byte(`0123456789abcdef`)
	require.NoError(t, c.HandleKeyExchange(1, exchange))
	require.True(t, c.HasSessionKey(1))

	plaintext := []byte(`telemetry record contents`)
	ct, err := c.Encrypt(1, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ct[16:])

	pt, err := c.Decrypt(1, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestCryptoUnknownDevice(t *testing.T) {
	c, err := NewCrypto(bytes.Repeat([]byte{0x01}, KeySize))
	require.NoError(t, err)
	_, err = c.Decrypt(42, make([]byte, 32))
	assert.ErrorIs(t, err, ErrNoSessionKey)
}

func TestCryptoKeyExchangeDeterministic(t *testing.T) {
	priv := bytes.Repeat([]byte{0x05}, KeySize)
	exchange := []byte(`fedcba9876543210`)

	a, err := NewCrypto(priv)
	require.NoError(t, err)
	require.NoError(t, a.HandleKeyExchange(9, exchange))
	b, err := NewCrypto(priv)
	require.NoError(t, err)
	require.NoError(t, b.HandleKeyExchange(9, exchange))

	ct, err := a.Encrypt(9, []byte(`same key both sides`))
	require.NoError(t, err)
	pt, err := b.Decrypt(9, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte(`same key both sides`), pt)
}

func TestCryptoWrongPrivkeyYieldsGarbage(t *testing.T) {
	exchange := []byte(`0123456789abcdef`)
	sender, err := NewCrypto(bytes.Repeat([]byte{0x11}, KeySize))
	require.NoError(t, err)
	require.NoError(t, sender.HandleKeyExchange(1, exchange))
	receiver, err := NewCrypto(bytes.Repeat([]byte{0x22}, KeySize))
	require.NoError(t, err)
	require.NoError(t, receiver.HandleKeyExchange(1, exchange))

	plaintext := []byte(`only readable with the right key`)
	ct, err := sender.Encrypt(1, plaintext)
	require.NoError(t, err)
	pt, err := receiver.Decrypt(1, ct)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, pt)
}

func inverterBody(ts time.Time, acPower uint16) []byte {
	body := make([]byte, 22)
	binary.BigEndian.PutUint32(body[0:], uint32(ts.Unix()))
	binary.BigEndian.PutUint16(body[4:], 315) // 31.5 C
	binary.BigEndian.PutUint16(body[6:], acPower)
	binary.BigEndian.PutUint16(body[8:], 2301)  // 230.1 V
	binary.BigEndian.PutUint16(body[10:], 5002) // 50.02 Hz
	binary.BigEndian.PutUint16(body[12:], 3800) // 380.0 V
	binary.BigEndian.PutUint32(body[14:], 12345)
	binary.BigEndian.PutUint32(body[18:], 9876543)
	return body
}

func TestParseTelemetry(t *testing.T) {
	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	var payload []byte
	payload = AppendRecord(payload, RecordInverter, inverterBody(ts, 1500))
	payload = AppendRecord(payload, 0x7777, []byte{1, 2, 3}) // unknown, skipped
	payload = AppendRecord(payload, RecordOptimizer, func() []byte {
		body := make([]byte, 10)
		binary.BigEndian.PutUint32(body[0:], uint32(ts.Unix()))
		binary.BigEndian.PutUint16(body[4:], 425)  // 42.5 V
		binary.BigEndian.PutUint16(body[6:], 987)  // 9.87 A
		binary.BigEndian.PutUint16(body[8:], 0x10000-52) // -5.2 C
		return body
	}())

	records := ParseTelemetry(payload)
	require.Len(t, records, 2)

	inv := records[0]
	assert.Equal(t, `inverter`, inv.Type)
	assert.Equal(t, ts, inv.Fields[`timestamp`])
	assert.Equal(t, 31.5, inv.Fields[`temperature`])
	assert.Equal(t, int64(1500), inv.Fields[`ac_power`])
	assert.Equal(t, 230.1, inv.Fields[`ac_voltage`])
	assert.Equal(t, 50.02, inv.Fields[`ac_frequency`])
	assert.Equal(t, int64(12345), inv.Fields[`energy_day`])

	opt := records[1]
	assert.Equal(t, `optimizer`, opt.Type)
	assert.Equal(t, 42.5, opt.Fields[`dc_voltage`])
	assert.Equal(t, 9.87, opt.Fields[`dc_current`])
	assert.Equal(t, -5.2, opt.Fields[`temperature`])
}

func TestParseTelemetryTruncated(t *testing.T) {
	var payload []byte
	payload = AppendRecord(payload, RecordInverter, inverterBody(time.Now(), 100))
	records := ParseTelemetry(payload[:len(payload)-5])
	assert.Empty(t, records)
}
