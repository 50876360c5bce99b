// Package gntp builds Growl Notification Transport Protocol 1.0 requests and
// parses the daemon's replies.
//
// A message is an information line, CRLF-terminated "Key: Value" headers and a
// blank line. REGISTER requests append one header block per declared
// notification, each followed by its own blank line. When a password is set,
// the information line carries a salted key hash so the daemon can
// authenticate the sender. Encryption is not supported (always NONE).
package gntp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"netgrowl/internal/failure"

	"github.com/google/uuid"
)

// DefaultPort is the registered GNTP TCP port.
const DefaultPort = 23053

const (
	ProtocolID = "GNTP"
	Version    = "1.0"

	encryptionNone = "NONE"
	crlf           = "\r\n"
)

type MessageType string

const (
	TypeRegister MessageType = "REGISTER"
	TypeNotify   MessageType = "NOTIFY"
)

// Header names used by this client.
const (
	HeaderApplicationName       = "Application-Name"
	HeaderNotificationsCount    = "Notifications-Count"
	HeaderNotificationName      = "Notification-Name"
	HeaderNotificationDisplay   = "Notification-Display-Name"
	HeaderNotificationEnabled   = "Notification-Enabled"
	HeaderNotificationID        = "Notification-ID"
	HeaderNotificationTitle     = "Notification-Title"
	HeaderNotificationText      = "Notification-Text"
	HeaderNotificationSticky    = "Notification-Sticky"
	HeaderNotificationPriority  = "Notification-Priority"
	HeaderNotificationCoalesce  = "Notification-Coalescing-ID"
	HeaderOriginSoftwareName    = "Origin-Software-Name"
	HeaderOriginSoftwareVersion = "Origin-Software-Version"
	HeaderResponseAction        = "Response-Action"
	HeaderErrorCode             = "Error-Code"
	HeaderErrorDescription      = "Error-Description"
)

var (
	ErrInvalidHeader = errors.New("header not representable")
	ErrEmptyKey      = errors.New("empty header key")
)

type Header struct {
	Key   string
	Value string
}

// Message is a request ready to be serialized. Headers and Sections keep
// insertion order.
type Message struct {
	Type     MessageType
	Headers  []Header
	Sections [][]Header

	Password string
	Hash     HashAlgorithm
	// Salt overrides the random per-message salt. Tests only.
	Salt []byte
}

func (m *Message) Add(key, value string) {
	m.Headers = append(m.Headers, Header{Key: key, Value: value})
}

// BuildMessage serializes a single-block message of the given type.
func BuildMessage(typ MessageType, headers []Header, password string, alg HashAlgorithm) ([]byte, error) {
	m := Message{Type: typ, Headers: headers, Password: password, Hash: alg}
	return m.Encode()
}

func (m Message) Encode() ([]byte, error) {
	step := "gntp." + strings.ToLower(string(m.Type))
	if m.Type != TypeRegister && m.Type != TypeNotify {
		return nil, failure.Encoding(step, fmt.Errorf("unknown message type %q", m.Type))
	}

	var b bytes.Buffer
	b.WriteString(ProtocolID + "/" + Version + " " + string(m.Type) + " " + encryptionNone)
	if m.Password != "" {
		kh, err := NewKeyHash(m.Hash, m.Password, m.Salt)
		if err != nil {
			return nil, failure.Encoding(step, err)
		}
		b.WriteByte(' ')
		b.WriteString(kh.String())
	}
	b.WriteString(crlf)

	if err := writeBlock(&b, m.Headers); err != nil {
		return nil, failure.Encoding(step, err)
	}
	for _, sec := range m.Sections {
		if err := writeBlock(&b, sec); err != nil {
			return nil, failure.Encoding(step, err)
		}
	}
	return b.Bytes(), nil
}

func writeBlock(b *bytes.Buffer, hs []Header) error {
	for _, h := range hs {
		if err := checkHeader(h); err != nil {
			return err
		}
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
	return nil
}

func checkHeader(h Header) error {
	if h.Key == "" {
		return ErrEmptyKey
	}
	if strings.ContainsAny(h.Key, ":\r\n") || strings.TrimSpace(h.Key) != h.Key {
		return fmt.Errorf("%w: key %q", ErrInvalidHeader, h.Key)
	}
	if strings.ContainsAny(h.Value, "\r\n") {
		return fmt.Errorf("%w: %s contains a line break", ErrInvalidHeader, h.Key)
	}
	if !utf8.ValidString(h.Key) || !utf8.ValidString(h.Value) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidHeader, h.Key)
	}
	return nil
}

// EscapeText folds line breaks into the two characters `\n` so multi-line
// text fits on one header line.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", `\n`)
}

// Origin identifies the sending software.
type Origin struct {
	Name    string
	Version string
}

func (o Origin) headers() []Header {
	var hs []Header
	if o.Name != "" {
		hs = append(hs, Header{HeaderOriginSoftwareName, o.Name})
	}
	if o.Version != "" {
		hs = append(hs, Header{HeaderOriginSoftwareVersion, o.Version})
	}
	return hs
}

// Registration declares an application and its notification names.
type Registration struct {
	Application   string
	Notifications []string
	Origin        Origin
}

// RegisterMessage builds the REGISTER request. Every declared notification is
// enabled.
func RegisterMessage(r Registration) Message {
	m := Message{Type: TypeRegister}
	m.Add(HeaderApplicationName, r.Application)
	m.Add(HeaderNotificationsCount, strconv.Itoa(len(r.Notifications)))
	m.Headers = append(m.Headers, r.Origin.headers()...)
	for _, n := range r.Notifications {
		m.Sections = append(m.Sections, []Header{
			{HeaderNotificationName, n},
			{HeaderNotificationDisplay, n},
			{HeaderNotificationEnabled, "True"},
		})
	}
	return m
}

// Notification is the content of a NOTIFY request.
type Notification struct {
	Application string
	Name        string
	Title       string
	Text        string
	Priority    int
	Sticky      bool
	// CoalescingID lets the daemon replace an earlier notification with the
	// same ID instead of stacking a new one.
	CoalescingID string
	// ID defaults to a random UUID.
	ID     string
	Origin Origin
}

// NotifyMessage builds the NOTIFY request.
func NotifyMessage(n Notification) Message {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	m := Message{Type: TypeNotify}
	m.Add(HeaderApplicationName, n.Application)
	m.Add(HeaderNotificationName, n.Name)
	m.Add(HeaderNotificationID, id)
	m.Add(HeaderNotificationTitle, n.Title)
	m.Headers = append(m.Headers, n.Origin.headers()...)
	if n.Sticky {
		m.Add(HeaderNotificationSticky, "True")
	}
	if p := clampPriority(n.Priority); p != 0 {
		m.Add(HeaderNotificationPriority, strconv.Itoa(p))
	}
	if n.Text != "" {
		m.Add(HeaderNotificationText, EscapeText(n.Text))
	}
	if n.CoalescingID != "" {
		m.Add(HeaderNotificationCoalesce, n.CoalescingID)
	}
	return m
}

func clampPriority(p int) int {
	if p < -2 {
		return -2
	}
	if p > 2 {
		return 2
	}
	return p
}
