// Package sniffer provides the packet capture input plugin. It opens an
// AF_PACKET raw socket on the configured interface, filters IPv4 traffic
// by protocol and port, and delivers matching L4 payloads. Opening the
// socket requires elevated privilege; failing to acquire it is a fatal
// startup error.
package sniffer

import (
	"context"
	"fmt"
	"net"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Register adds the sniffer input plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleInput, `sniffer`, plugin.Registration{
		Defaults: plugin.Options{
			`interface`: `eth0`,
			`protocols`: `tcp`,
		},
		Factory: New,
	})
}

// Sniffer captures link layer traffic as Input.
type Sniffer struct {
	Interface string
	filter    Filter
	fd        int
	l         log.Logger
}

// New creates a Sniffer from merged options.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Sniffer{
		Interface: opts.String(`interface`, `eth0`),
		filter: Filter{
			Protocols: opts.Strings(`protocols`),
			Ports:     opts.Strings(`ports`),
		},
		fd: -1,
		l:  l,
	}, nil
}

const ethAll = 0x0003 // ETH_P_ALL

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// Start opens and binds the capture socket.
func (in *Sniffer) Start() error {
	iface, err := net.InterfaceByName(in.Interface)
	if err != nil {
		return errors.Wrapf(err, "resolving capture interface %s", in.Interface)
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(ethAll)))
	if err != nil {
		return errors.Wrap(err, "opening capture socket (requires elevated privilege)")
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(ethAll),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return errors.Wrapf(err, "binding capture socket to %s", in.Interface)
	}
	// Bounded read timeout keeps the run loop responsive to cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "setting capture socket timeout")
	}
	in.fd = fd
	in.l.Infof("capturing on %s, protocols: %v, ports: %v", in.Interface, in.filter.Protocols, in.filter.Ports)
	return nil
}

// Stop closes the capture socket.
func (in *Sniffer) Stop() error {
	if in.fd < 0 {
		return nil
	}
	err := unix.Close(in.fd)
	in.fd = -1
	return err
}

// Run receives packets until ctx is canceled, delivering every payload the
// filter matches. The stream identifier is the source address and port.
func (in *Sniffer) Run(ctx context.Context, deliver plugin.DeliverFunc) error {
	buf := make([]byte, 65536)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, _, err := unix.Recvfrom(in.fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "receiving from capture socket")
		}
		pkt, ok := Parse(buf[:n], in.filter)
		if !ok {
			continue
		}
		payload := make([]byte, len(pkt.Payload))
		copy(payload, pkt.Payload)
		deliver(fmt.Sprintf("%s:%d", pkt.SrcIP, pkt.SrcPort), payload)
	}
}
