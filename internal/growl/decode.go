package growl

import (
	"encoding/binary"

	"netgrowl/internal/failure"
)

// reader walks a packet body; the first short read sticks.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = ErrShortPacket
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) u8() int {
	v := r.take(1)
	if v == nil {
		return 0
	}
	return int(v[0])
}

func (r *reader) u16() int {
	v := r.take(2)
	if v == nil {
		return 0
	}
	return int(binary.BigEndian.Uint16(v))
}

func (r *reader) str(n int) string { return string(r.take(n)) }

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return ErrTrailingBytes
	}
	return nil
}

// DecodeRegistration parses and verifies a registration packet.
func DecodeRegistration(b []byte, password string) (Registration, error) {
	const step = "growl.decode.registration"
	body, err := verify(b, password, TypeRegistration)
	if err != nil {
		return Registration{}, failure.Encoding(step, err)
	}
	r := &reader{b: body, off: 2}
	appLen := r.u16()
	nall := r.u8()
	ndef := r.u8()
	reg := Registration{Password: password}
	reg.Application = r.str(appLen)
	reg.Notifications = make([]string, 0, nall)
	for i := 0; i < nall; i++ {
		reg.Notifications = append(reg.Notifications, r.str(r.u16()))
	}
	reg.Defaults = make([]int, 0, ndef)
	for i := 0; i < ndef; i++ {
		reg.Defaults = append(reg.Defaults, r.u8())
	}
	if err := r.done(); err != nil {
		return Registration{}, failure.Encoding(step, err)
	}
	return reg, nil
}

// DecodeNotification parses and verifies a notification packet.
func DecodeNotification(b []byte, password string) (Notification, error) {
	const step = "growl.decode.notification"
	body, err := verify(b, password, TypeNotification)
	if err != nil {
		return Notification{}, failure.Encoding(step, err)
	}
	r := &reader{b: body, off: 2}
	flags := r.u16()
	nameLen, titleLen, descLen, appLen := r.u16(), r.u16(), r.u16(), r.u16()

	n := Notification{Password: password}
	n.Priority, n.Sticky = unpackFlags(uint16(flags))
	n.Name = r.str(nameLen)
	n.Title = r.str(titleLen)
	n.Description = r.str(descLen)
	n.Application = r.str(appLen)
	if err := r.done(); err != nil {
		return Notification{}, failure.Encoding(step, err)
	}
	return n, nil
}
