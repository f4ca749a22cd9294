// Package udp is the live-deployment binding for pkg/netw: a thin wrapper
// over net.UDPConn with no extra framing beyond the codec's own
// length-independent JSON envelope, mirroring the equally thin raw-socket
// wrapper this was modeled on.
package udp

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/murmesh/pkg/hlog"
)

const maxDatagram = 64 * 1024

// Conn wraps a bound UDP socket exchanging raw datagrams with net.Addr
// peers; encoding and decoding are left to the caller.
type Conn struct {
	sock *net.UDPConn
}

// Listen binds a UDP socket on addr (host:port).
func Listen(addr string) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	sock, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", addr, err)
	}
	return &Conn{sock: sock}, nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error { return c.sock.Close() }

// SendBuf writes buf as a single UDP datagram to dest.
func (c *Conn) SendBuf(dest string, buf []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	_, err = c.sock.WriteToUDP(buf, udpAddr)
	return err
}

// RecvSession reads datagrams until ctx is canceled, invoking onBuf with
// each payload and its sender. onBuf runs on the same goroutine as
// RecvSession; callers wanting concurrency forward into their own
// evt.Session from inside onBuf.
func (c *Conn) RecvSession(ctx context.Context, onBuf func(from string, buf []byte)) error {
	buf := make([]byte, maxDatagram)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = c.sock.Close()
		close(done)
	}()
	for {
		n, from, err := c.sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				return fmt.Errorf("udp: read: %w", err)
			}
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		hlog.Logger.Debug().Str("from", from.String()).Int("bytes", n).Msg("udp datagram received")
		onBuf(from.String(), payload)
	}
}
