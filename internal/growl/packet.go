// Package growl encodes and decodes the legacy Growl UDP protocol.
//
// Every datagram starts with a protocol version and a packet type, carries
// big-endian length-prefixed UTF-8 fields and ends with an MD5 digest of the
// preceding bytes followed by the shared password. A daemon ignores
// notifications for applications that have not been registered first.
package growl

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"netgrowl/internal/failure"
)

// DefaultPort is the registered Growl UDP port.
const DefaultPort = 9887

const (
	ProtocolVersion = 1

	TypeRegistration = 0
	TypeNotification = 1
)

const (
	checksumLen = md5.Size

	// MinPriority and MaxPriority bound the values a daemon accepts.
	MinPriority = -2
	MaxPriority = 2

	flagSticky       = 0x0100
	flagNegativePrio = 0x0008
)

var (
	ErrFieldTooLong  = errors.New("field exceeds 65535 bytes")
	ErrTooMany       = errors.New("too many notifications")
	ErrShortPacket   = errors.New("packet too short")
	ErrBadVersion    = errors.New("unsupported protocol version")
	ErrBadType       = errors.New("unexpected packet type")
	ErrBadChecksum   = errors.New("checksum mismatch")
	ErrTrailingBytes = errors.New("trailing bytes")
)

// Registration declares an application and the notification names it may send.
type Registration struct {
	Application   string
	Password      string
	Notifications []string
	// Defaults lists indices into Notifications that are enabled by default.
	// Nil means all declared notifications are enabled.
	Defaults []int
}

// Notification is a single notification for a registered application.
type Notification struct {
	Application string
	Name        string
	Title       string
	Description string
	Priority    int
	Sticky      bool
	Password    string
}

// EncodeRegistration builds a registration packet declaring a single
// notification name, enabled by default.
func EncodeRegistration(app, password, name string) ([]byte, error) {
	r := Registration{Application: app, Password: password, Notifications: []string{name}}
	return r.Encode()
}

// EncodeNotification builds a notification packet.
func EncodeNotification(app, name, title, description string, priority int, sticky bool, password string) ([]byte, error) {
	n := Notification{
		Application: app,
		Name:        name,
		Title:       title,
		Description: description,
		Priority:    priority,
		Sticky:      sticky,
		Password:    password,
	}
	return n.Encode()
}

func (r Registration) defaults() []int {
	if r.Defaults != nil {
		return r.Defaults
	}
	d := make([]int, len(r.Notifications))
	for i := range d {
		d[i] = i
	}
	return d
}

func (r Registration) Encode() ([]byte, error) {
	const step = "growl.registration"
	defs := r.defaults()
	if len(r.Notifications) > math.MaxUint8 || len(defs) > math.MaxUint8 {
		return nil, failure.Encoding(step, ErrTooMany)
	}
	if err := checkLen("application", r.Application); err != nil {
		return nil, failure.Encoding(step, err)
	}

	size := 6 + len(r.Application) + len(defs) + checksumLen
	for _, n := range r.Notifications {
		if err := checkLen("notification", n); err != nil {
			return nil, failure.Encoding(step, err)
		}
		size += 2 + len(n)
	}

	b := make([]byte, 0, size)
	b = append(b, ProtocolVersion, TypeRegistration)
	b = binary.BigEndian.AppendUint16(b, uint16(len(r.Application)))
	b = append(b, byte(len(r.Notifications)), byte(len(defs)))
	b = append(b, r.Application...)
	for _, n := range r.Notifications {
		b = binary.BigEndian.AppendUint16(b, uint16(len(n)))
		b = append(b, n...)
	}
	for _, i := range defs {
		if i < 0 || i >= len(r.Notifications) {
			return nil, failure.Encoding(step, fmt.Errorf("default index %d out of range", i))
		}
		b = append(b, byte(i))
	}
	return appendChecksum(b, r.Password), nil
}

func (n Notification) Encode() ([]byte, error) {
	const step = "growl.notification"
	fields := [...]struct{ name, v string }{
		{"notification", n.Name},
		{"title", n.Title},
		{"description", n.Description},
		{"application", n.Application},
	}
	size := 12 + checksumLen
	for _, f := range fields {
		if err := checkLen(f.name, f.v); err != nil {
			return nil, failure.Encoding(step, err)
		}
		size += len(f.v)
	}

	b := make([]byte, 0, size)
	b = append(b, ProtocolVersion, TypeNotification)
	b = binary.BigEndian.AppendUint16(b, packFlags(n.Priority, n.Sticky))
	for _, f := range fields {
		b = binary.BigEndian.AppendUint16(b, uint16(len(f.v)))
	}
	for _, f := range fields {
		b = append(b, f.v...)
	}
	return appendChecksum(b, n.Password), nil
}

// ClampPriority limits p to the range the daemon understands.
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// packFlags stores the priority as a 3-bit value shifted left by one, with
// bit 3 set for negative priorities, and sticky in bit 8.
func packFlags(priority int, sticky bool) uint16 {
	p := ClampPriority(priority)
	flags := uint16(p&0x07) << 1
	if p < 0 {
		flags |= flagNegativePrio
	}
	if sticky {
		flags |= flagSticky
	}
	return flags
}

func unpackFlags(flags uint16) (priority int, sticky bool) {
	priority = int((flags >> 1) & 0x07)
	if flags&flagNegativePrio != 0 {
		priority -= 8
	}
	return priority, flags&flagSticky != 0
}

func checkLen(name, v string) error {
	if len(v) > math.MaxUint16 {
		return fmt.Errorf("%s: %w (%d bytes)", name, ErrFieldTooLong, len(v))
	}
	return nil
}

func checksum(body []byte, password string) [checksumLen]byte {
	h := md5.New()
	h.Write(body)
	h.Write([]byte(password))
	var sum [checksumLen]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func appendChecksum(b []byte, password string) []byte {
	sum := checksum(b, password)
	return append(b, sum[:]...)
}

// verify splits off and checks the trailing digest.
func verify(b []byte, password string, typ byte) ([]byte, error) {
	if len(b) < 2+checksumLen {
		return nil, ErrShortPacket
	}
	if b[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, b[0])
	}
	if b[1] != typ {
		return nil, fmt.Errorf("%w: %d", ErrBadType, b[1])
	}
	body := b[:len(b)-checksumLen]
	want := checksum(body, password)
	if subtle.ConstantTimeCompare(want[:], b[len(body):]) != 1 {
		return nil, ErrBadChecksum
	}
	return body, nil
}
