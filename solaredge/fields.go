package solaredge

import (
	"encoding/binary"
	"time"
)

// A decrypted telemetry payload is a sequence of device records:
//
//	type u16 | length u16 | body ...
//
// Known record types are projected onto named fields by the fixed offset
// tables below. Unknown or reserved types are skipped using their length
// so minor protocol-version drift does not fail the whole payload.

// Device record types.
const (
	RecordInverter  = 0x0010
	RecordOptimizer = 0x0011
)

type fieldType int

const (
	ftUint16 fieldType = iota
	ftInt16
	ftUint32
	ftTimestamp
)

type fieldDef struct {
	name   string
	offset int
	typ    fieldType
	// scale divides the raw integer into a float field; zero keeps the
	// integer value.
	scale float64
}

type recordDef struct {
	name   string
	size   int
	fields []fieldDef
}

var recordDefs = map[uint16]recordDef{
	RecordInverter: {
		name: `inverter`,
		size: 22,
		fields: []fieldDef{
			{name: `timestamp`, offset: 0, typ: ftTimestamp},
			{name: `temperature`, offset: 4, typ: ftInt16, scale: 10},
			{name: `ac_power`, offset: 6, typ: ftUint16},
			{name: `ac_voltage`, offset: 8, typ: ftUint16, scale: 10},
			{name: `ac_frequency`, offset: 10, typ: ftUint16, scale: 100},
			{name: `dc_voltage`, offset: 12, typ: ftUint16, scale: 10},
			{name: `energy_day`, offset: 14, typ: ftUint32},
			{name: `energy_total`, offset: 18, typ: ftUint32},
		},
	},
	RecordOptimizer: {
		name: `optimizer`,
		size: 10,
		fields: []fieldDef{
			{name: `timestamp`, offset: 0, typ: ftTimestamp},
			{name: `dc_voltage`, offset: 4, typ: ftUint16, scale: 10},
			{name: `dc_current`, offset: 6, typ: ftUint16, scale: 100},
			{name: `temperature`, offset: 8, typ: ftInt16, scale: 10},
		},
	},
}

// TelemetryRecord is one decoded device record.
type TelemetryRecord struct {
	// Type names the record layout, e.g. "inverter".
	Type string
	// Fields maps field name to int64, float64 or time.Time values.
	Fields map[string]interface{}
}

// ParseTelemetry walks a decrypted telemetry payload and extracts every
// known device record. Truncated trailing bytes are ignored.
func ParseTelemetry(payload []byte) []TelemetryRecord {
	var records []TelemetryRecord
	for len(payload) >= 4 {
		rtype := binary.BigEndian.Uint16(payload[0:])
		length := int(binary.BigEndian.Uint16(payload[2:]))
		if len(payload) < 4+length {
			break
		}
		body := payload[4 : 4+length]
		payload = payload[4+length:]
		def, known := recordDefs[rtype]
		if !known || length < def.size {
			continue
		}
		records = append(records, TelemetryRecord{
			Type:   def.name,
			Fields: extractFields(def, body),
		})
	}
	return records
}

func extractFields(def recordDef, body []byte) map[string]interface{} {
	fields := make(map[string]interface{}, len(def.fields))
	for _, fd := range def.fields {
		var raw int64
		switch fd.typ {
		case ftUint16:
			raw = int64(binary.BigEndian.Uint16(body[fd.offset:]))
		case ftInt16:
			raw = int64(int16(binary.BigEndian.Uint16(body[fd.offset:])))
		case ftUint32:
			raw = int64(binary.BigEndian.Uint32(body[fd.offset:]))
		case ftTimestamp:
			fields[fd.name] = time.Unix(int64(binary.BigEndian.Uint32(body[fd.offset:])), 0).UTC()
			continue
		}
		if fd.scale != 0 {
			fields[fd.name] = float64(raw) / fd.scale
		} else {
			fields[fd.name] = raw
		}
	}
	return fields
}

// AppendRecord serializes one device record onto buf in wire layout. Used
// by the encode path and tests.
func AppendRecord(buf []byte, rtype uint16, body []byte) []byte {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint16(hdr[0:], rtype)
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(body)))
	return append(append(buf, hdr...), body...)
}
