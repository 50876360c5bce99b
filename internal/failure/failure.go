// Package failure defines the error taxonomy shared by the codecs, the
// transport and the dispatcher.
//
// Every delivery failure is an *Error carrying its Kind, the protocol step that
// failed, the remote address (when one was involved) and the raw response (when
// the peer answered). Callers match kinds with errors.Is against the sentinels:
//
//	if errors.Is(err, failure.ErrAuth) { ... }
package failure

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindEncoding Kind = iota + 1
	KindTransport
	KindProtocol
	KindAuth
	KindRelay
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindRelay:
		return "relay"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

var (
	ErrEncoding  = errors.New("encoding error")
	ErrTransport = errors.New("transport error")
	ErrProtocol  = errors.New("protocol error")
	ErrAuth      = errors.New("credential rejected")
	ErrRelay     = errors.New("relay error")
	ErrConfig    = errors.New("config error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindEncoding:
		return ErrEncoding
	case KindTransport:
		return ErrTransport
	case KindProtocol:
		return ErrProtocol
	case KindAuth:
		return ErrAuth
	case KindRelay:
		return ErrRelay
	case KindConfig:
		return ErrConfig
	default:
		return nil
	}
}

// Error is a typed delivery failure.
type Error struct {
	Kind Kind
	// Step names the protocol step, e.g. "gntp.register" or "dial".
	Step string
	// Addr is host:port (or URL) of the peer, if any.
	Addr string
	// Response holds the raw reply when the peer answered.
	Response string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Step != "" {
		b.WriteString(" [")
		b.WriteString(e.Step)
		b.WriteString("]")
	}
	if e.Addr != "" {
		b.WriteString(" ")
		b.WriteString(e.Addr)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Response != "" {
		fmt.Fprintf(&b, " (response %q)", truncate(e.Response, 256))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(k Kind, step, addr, resp string, err error) *Error {
	if err == nil {
		err = k.sentinel()
	}
	return &Error{Kind: k, Step: step, Addr: addr, Response: resp, Err: err}
}

func Encoding(step string, err error) error { return newError(KindEncoding, step, "", "", err) }

func Transport(step, addr string, err error) error {
	return newError(KindTransport, step, addr, "", err)
}

func Protocol(step, addr, response string, err error) error {
	return newError(KindProtocol, step, addr, response, err)
}

func Auth(step, addr, response string, err error) error {
	return newError(KindAuth, step, addr, response, err)
}

func Relay(step, addr, response string, err error) error {
	return newError(KindRelay, step, addr, response, err)
}

func Config(step string, err error) error { return newError(KindConfig, step, "", "", err) }

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func truncate(s string, maxN int) string {
	if len(s) <= maxN {
		return s
	}
	return s[:maxN-3] + "..."
}
