package sniffer

import (
	"encoding/binary"
	"net"
	"strconv"
)

// Protocol numbers and header sizes for the IPv4 parsing below.
const (
	etherTypeIPv4 = 0x0800
	ethHeaderLen  = 14
	protoTCP      = 6
	protoUDP      = 17
)

// Filter is the capture predicate: which L4 protocols and which ports
// (source or destination) pass. Empty lists match everything.
type Filter struct {
	Protocols []string
	Ports     []string
}

func (f Filter) matchProtocol(name string) bool {
	if len(f.Protocols) == 0 {
		return true
	}
	for _, p := range f.Protocols {
		if p == name {
			return true
		}
	}
	return false
}

func (f Filter) matchPort(src, dst uint16) bool {
	if len(f.Ports) == 0 {
		return true
	}
	for _, p := range f.Ports {
		if p == strconv.Itoa(int(src)) || p == strconv.Itoa(int(dst)) {
			return true
		}
	}
	return false
}

// Packet is one parsed, filter-matching captured frame.
type Packet struct {
	Protocol string
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Payload  []byte
}

// Parse dissects an Ethernet/IPv4 frame and applies the filter. It
// returns false for non-IPv4 traffic, unsupported protocols, packets the
// filter rejects, and packets without payload.
func Parse(frame []byte, filter Filter) (Packet, bool) {
	if len(frame) < ethHeaderLen {
		return Packet{}, false
	}
	if binary.BigEndian.Uint16(frame[12:]) != etherTypeIPv4 {
		return Packet{}, false
	}
	ip := frame[ethHeaderLen:]
	if len(ip) < 20 || ip[0]>>4 != 4 {
		return Packet{}, false
	}
	ihl := int(ip[0]&0x0F) * 4
	if ihl < 20 || len(ip) < ihl {
		return Packet{}, false
	}
	pkt := Packet{
		SrcIP: net.IP(ip[12:16]),
		DstIP: net.IP(ip[16:20]),
	}
	l4 := ip[ihl:]
	switch ip[9] {
	case protoTCP:
		if !filter.matchProtocol(`tcp`) || len(l4) < 20 {
			return Packet{}, false
		}
		pkt.Protocol = `tcp`
		pkt.SrcPort = binary.BigEndian.Uint16(l4[0:])
		pkt.DstPort = binary.BigEndian.Uint16(l4[2:])
		dataOff := int(l4[12]>>4) * 4
		if dataOff < 20 || len(l4) < dataOff {
			return Packet{}, false
		}
		pkt.Payload = l4[dataOff:]
	case protoUDP:
		if !filter.matchProtocol(`udp`) || len(l4) < 8 {
			return Packet{}, false
		}
		pkt.Protocol = `udp`
		pkt.SrcPort = binary.BigEndian.Uint16(l4[0:])
		pkt.DstPort = binary.BigEndian.Uint16(l4[2:])
		pkt.Payload = l4[8:]
	default:
		return Packet{}, false
	}
	if !filter.matchPort(pkt.SrcPort, pkt.DstPort) {
		return Packet{}, false
	}
	if len(pkt.Payload) == 0 {
		return Packet{}, false
	}
	return pkt, true
}
