// Package listen provides the TCP listener input plugin. Every accepted
// connection is a separate stream; received segments are delivered as
// units in per-connection order. Decoder responses are written back to the
// originating client.
package listen

import (
	"context"
	"net"
	"sync"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Register adds the listen input plugin to the registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.RoleInput, `listen`, plugin.Registration{
		Defaults: plugin.Options{
			`host`:   `0.0.0.0`,
			`port`:   `22222`,
			`buffer`: `1024`,
		},
		Factory: New,
	})
}

// Listen accepts TCP connections as Input.
type Listen struct {
	Addr    string
	BufSize int

	ln    net.Listener
	mu    sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
	l     log.Logger
}

// New creates a Listen input from merged options.
func New(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	return &Listen{
		Addr:    net.JoinHostPort(opts.String(`host`, `0.0.0.0`), opts.String(`port`, `22222`)),
		BufSize: opts.Int(`buffer`, 1024),
		conns:   make(map[string]net.Conn),
		l:       l,
	}, nil
}

// Start binds the listening socket. A bind failure is fatal for startup.
func (in *Listen) Start() error {
	ln, err := net.Listen(`tcp`, in.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", in.Addr)
	}
	in.ln = ln
	in.l.Infof("listening on %s", in.Addr)
	return nil
}

// Stop closes the listener and every open connection.
func (in *Listen) Stop() error {
	var err error
	if in.ln != nil {
		err = in.ln.Close()
	}
	in.mu.Lock()
	for _, c := range in.conns {
		c.Close()
	}
	in.mu.Unlock()
	in.wg.Wait()
	return err
}

// Run accepts connections until ctx is canceled. It never terminates on
// its own; a single connection error is reported but must not kill
// sibling connections.
func (in *Listen) Run(ctx context.Context, deliver plugin.DeliverFunc) error {
	stop := context.AfterFunc(ctx, func() {
		in.ln.Close()
	})
	defer stop()
	for {
		conn, err := in.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "accepting connection")
		}
		in.track(conn)
		in.wg.Add(1)
		go in.serve(conn, deliver)
	}
}

// Respond writes decoder response bytes back to the stream's client.
func (in *Listen) Respond(stream string, resp []byte) error {
	in.mu.Lock()
	conn, there := in.conns[stream]
	in.mu.Unlock()
	if !there {
		return errors.Errorf("no open connection for stream %s", stream)
	}
	if _, err := conn.Write(append(resp, '\r', '\n')); err != nil {
		return errors.Wrap(err, "writing response")
	}
	return nil
}

func (in *Listen) serve(conn net.Conn, deliver plugin.DeliverFunc) {
	defer in.wg.Done()
	stream := conn.RemoteAddr().String()
	in.l.Debugf("connection from %s", stream)
	defer in.untrack(stream)
	buf := make([]byte, in.BufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			deliver(stream, chunk)
		}
		if err != nil {
			in.l.Debugf("connection %s closed: %v", stream, err)
			return
		}
	}
}

func (in *Listen) track(conn net.Conn) {
	in.mu.Lock()
	in.conns[conn.RemoteAddr().String()] = conn
	in.mu.Unlock()
}

func (in *Listen) untrack(stream string) {
	in.mu.Lock()
	if conn, there := in.conns[stream]; there {
		conn.Close()
		delete(in.conns, stream)
	}
	in.mu.Unlock()
}
