package transport

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout bounds every socket step when none is configured.
const DefaultTimeout = 5 * time.Second

type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) }

// ExchangeOptions controls a request/response round trip.
type ExchangeOptions struct {
	// MaxResponse caps the bytes read from the peer. 0 means 1024.
	MaxResponse int
	// Complete reports whether the bytes read so far form a full reply. When
	// nil, reading stops at EOF or MaxResponse.
	Complete func(buf []byte) bool
}

// DatagramSender sends a single fire-and-forget datagram.
type DatagramSender interface {
	SendDatagram(ctx context.Context, to Endpoint, payload []byte) error
}

// Exchanger opens a stream connection, writes payload, reads one reply and
// closes the connection.
type Exchanger interface {
	Exchange(ctx context.Context, to Endpoint, payload []byte, opt ExchangeOptions) ([]byte, error)
}
