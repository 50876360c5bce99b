// Package transport is the socket layer under the codecs: one-shot UDP sends
// and single request/response TCP exchanges, each bounded by a deadline.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/multierr"

	"netgrowl/internal/failure"
	logx "netgrowl/pkg/logx"
)

const defaultMaxResponse = 1024

var ErrShortWrite = errors.New("short write")

// Net implements DatagramSender and Exchanger over the host network stack.
type Net struct {
	// Timeout bounds each whole operation (resolve, connect, write, read).
	Timeout time.Duration
	Log     logx.Logger
}

func New(timeout time.Duration, log logx.Logger) *Net {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Net{Timeout: timeout, Log: log}
}

func (n *Net) timeout() time.Duration {
	if n == nil || n.Timeout <= 0 {
		return DefaultTimeout
	}
	return n.Timeout
}

func (n *Net) log() logx.Logger {
	if n == nil || n.Log.IsZero() {
		return logx.Nop()
	}
	return n.Log
}

func (n *Net) dial(ctx context.Context, network string, to Endpoint) (net.Conn, error) {
	deadline := time.Now().Add(n.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, to.String())
	if err != nil {
		return nil, failure.Transport("dial", to.String(), err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, failure.Transport("deadline", to.String(), err)
	}
	return conn, nil
}

// SendDatagram resolves to, writes payload as one UDP datagram and closes the
// socket. No reply is expected.
func (n *Net) SendDatagram(ctx context.Context, to Endpoint, payload []byte) error {
	target, err := n.datagramTarget(ctx, to)
	if err != nil {
		return err
	}
	conn, err := n.dial(ctx, "udp", target)
	if err != nil {
		return err
	}
	w, err := conn.Write(payload)
	if err == nil && w != len(payload) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, w, len(payload))
	}
	err = multierr.Append(err, conn.Close())
	if err != nil {
		return failure.Transport("send", to.String(), err)
	}
	n.log().Debug("datagram sent", logx.String("addr", target.String()), logx.Int("bytes", w))
	return nil
}

// datagramTarget resolves to.Host and picks an IPv4 address when there is
// one. A datagram sent to ::1 while the daemon listens on 127.0.0.1 is lost
// without any error.
func (n *Net) datagramTarget(ctx context.Context, to Endpoint) (Endpoint, error) {
	if net.ParseIP(to.Host) != nil {
		return to, nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout())
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, to.Host)
	if err != nil {
		return to, failure.Transport("resolve", to.String(), err)
	}
	ip := preferIPv4(addrs)
	if ip == nil {
		return to, failure.Transport("resolve", to.String(), fmt.Errorf("no address for %q", to.Host))
	}
	return Endpoint{Host: ip.String(), Port: to.Port}, nil
}

func preferIPv4(addrs []net.IPAddr) net.IP {
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP
	}
	return nil
}

// Exchange connects over TCP, writes payload, reads until opt.Complete
// reports a full reply, EOF, or opt.MaxResponse bytes, then closes.
func (n *Net) Exchange(ctx context.Context, to Endpoint, payload []byte, opt ExchangeOptions) ([]byte, error) {
	conn, err := n.dial(ctx, "tcp", to)
	if err != nil {
		return nil, err
	}
	reply, err := exchange(conn, payload, opt)
	err = multierr.Append(err, conn.Close())
	if err != nil {
		return reply, failure.Transport("exchange", to.String(), err)
	}
	n.log().Debug("exchange done",
		logx.String("addr", to.String()),
		logx.Int("sent", len(payload)),
		logx.Int("received", len(reply)),
	)
	return reply, nil
}

func exchange(conn net.Conn, payload []byte, opt ExchangeOptions) ([]byte, error) {
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	limit := opt.MaxResponse
	if limit <= 0 {
		limit = defaultMaxResponse
	}
	buf := make([]byte, 0, limit)
	chunk := make([]byte, 512)
	for len(buf) < limit {
		want := min(len(chunk), limit-len(buf))
		r, err := conn.Read(chunk[:want])
		buf = append(buf, chunk[:r]...)
		if opt.Complete != nil && opt.Complete(buf) {
			return buf, nil
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return buf, fmt.Errorf("read: %w", err)
		}
	}
	return buf, nil
}
