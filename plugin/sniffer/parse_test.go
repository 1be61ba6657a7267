package sniffer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipv4Frame(proto byte, srcPort, dstPort uint16, payload []byte) []byte {
	var l4 []byte
	switch proto {
	case protoTCP:
		l4 = make([]byte, 20)
		binary.BigEndian.PutUint16(l4[0:], srcPort)
		binary.BigEndian.PutUint16(l4[2:], dstPort)
		l4[12] = 5 << 4 // data offset, 20 bytes
	case protoUDP:
		l4 = make([]byte, 8)
		binary.BigEndian.PutUint16(l4[0:], srcPort)
		binary.BigEndian.PutUint16(l4[2:], dstPort)
		binary.BigEndian.PutUint16(l4[4:], uint16(8+len(payload)))
	}
	l4 = append(l4, payload...)

	ip := make([]byte, 20)
	ip[0] = 4<<4 | 5 // IPv4, IHL 5
	binary.BigEndian.PutUint16(ip[2:], uint16(20+len(l4)))
	ip[9] = proto
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})

	eth := make([]byte, ethHeaderLen)
	binary.BigEndian.PutUint16(eth[12:], etherTypeIPv4)
	return append(append(eth, ip...), l4...)
}

func TestUDPPortFilterScenario(t *testing.T) {
	// A capture filtered to UDP port 53 must pass exactly the matching
	// UDP packet and reject the TCP one.
	filter := Filter{Protocols: []string{`udp`}, Ports: []string{`53`}}

	_, ok := Parse(ipv4Frame(protoTCP, 4444, 53, []byte(`tcp data`)), filter)
	assert.False(t, ok)

	pkt, ok := Parse(ipv4Frame(protoUDP, 5353, 53, []byte(`dns query`)), filter)
	require.True(t, ok)
	assert.Equal(t, `udp`, pkt.Protocol)
	assert.Equal(t, uint16(53), pkt.DstPort)
	assert.Equal(t, []byte(`dns query`), pkt.Payload)
	assert.Equal(t, `10.0.0.1`, pkt.SrcIP.String())
}

func TestPortFilterMatchesEitherDirection(t *testing.T) {
	filter := Filter{Protocols: []string{`tcp`}, Ports: []string{`22222`}}
	_, ok := Parse(ipv4Frame(protoTCP, 22222, 9999, []byte(`x`)), filter)
	assert.True(t, ok)
	_, ok = Parse(ipv4Frame(protoTCP, 9999, 22222, []byte(`x`)), filter)
	assert.True(t, ok)
	_, ok = Parse(ipv4Frame(protoTCP, 9999, 9999, []byte(`x`)), filter)
	assert.False(t, ok)
}

func TestEmptyFilterMatchesAll(t *testing.T) {
	pkt, ok := Parse(ipv4Frame(protoUDP, 1, 2, []byte(`y`)), Filter{})
	require.True(t, ok)
	assert.Equal(t, `udp`, pkt.Protocol)
}

func TestRejectsEmptyPayloadAndNonIPv4(t *testing.T) {
	_, ok := Parse(ipv4Frame(protoTCP, 1, 2, nil), Filter{})
	assert.False(t, ok)

	arp := make([]byte, 64)
	binary.BigEndian.PutUint16(arp[12:], 0x0806)
	_, ok = Parse(arp, Filter{})
	assert.False(t, ok)

	_, ok = Parse([]byte{1, 2, 3}, Filter{})
	assert.False(t, ok)
}
