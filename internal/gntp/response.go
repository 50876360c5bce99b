package gntp

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"netgrowl/internal/failure"
)

// MaxResponseBytes bounds how much of a reply is read and parsed.
const MaxResponseBytes = 1024

type Status string

const (
	StatusOK    Status = "-OK"
	StatusError Status = "-ERROR"
)

var (
	ErrInvalidResponse = errors.New("invalid response")
	ErrNotOK           = errors.New("daemon rejected request")
)

// Response is a parsed daemon reply.
type Response struct {
	Status  Status
	Headers []Header
	Raw     string
}

// Get returns the first header value for key (case-insensitive).
func (r Response) Get(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Err is nil for -OK replies and a protocol error otherwise.
func (r Response) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	detail := ErrNotOK
	if code, desc := r.Get(HeaderErrorCode), r.Get(HeaderErrorDescription); code != "" || desc != "" {
		detail = fmt.Errorf("%w: %s %s", ErrNotOK, code, desc)
	}
	step := "gntp.response"
	if a := r.Get(HeaderResponseAction); a != "" {
		step = "gntp." + strings.ToLower(a)
	}
	return failure.Protocol(step, "", r.Raw, detail)
}

// ResponseComplete reports whether buf holds a full reply (information line
// and headers up to the blank line).
func ResponseComplete(buf []byte) bool {
	_, ok := terminator(buf)
	return ok
}

func terminator(buf []byte) (int, bool) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i, true
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i, true
	}
	return 0, false
}

// ParseResponse parses a reply. Only the first MaxResponseBytes are
// considered.
func ParseResponse(b []byte) (Response, error) {
	if len(b) > MaxResponseBytes {
		b = b[:MaxResponseBytes]
	}
	raw := string(b)
	invalid := func(format string, args ...any) (Response, error) {
		err := fmt.Errorf("%w: "+format, append([]any{ErrInvalidResponse}, args...)...)
		return Response{}, failure.Protocol("gntp.response", "", raw, err)
	}

	end, ok := terminator(b)
	if !ok {
		return invalid("no blank line within %d bytes", MaxResponseBytes)
	}
	lines := strings.Split(string(b[:end]), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	info := strings.Fields(lines[0])
	if len(info) < 2 || !strings.HasPrefix(info[0], ProtocolID+"/") {
		return invalid("missing status line")
	}
	resp := Response{Status: Status(strings.ToUpper(info[1])), Raw: raw}
	if resp.Status != StatusOK && resp.Status != StatusError {
		return invalid("unknown status %q", info[1])
	}

	for _, ln := range lines[1:] {
		k, v, ok := strings.Cut(ln, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return invalid("malformed header line %q", ln)
		}
		resp.Headers = append(resp.Headers, Header{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)})
	}
	return resp, nil
}

// EncodeResponse serializes a reply the way a daemon would.
func EncodeResponse(r Response) []byte {
	var b bytes.Buffer
	b.WriteString(ProtocolID + "/" + Version + " " + string(r.Status) + " " + encryptionNone + crlf)
	for _, h := range r.Headers {
		b.WriteString(h.Key + ": " + h.Value + crlf)
	}
	b.WriteString(crlf)
	return b.Bytes()
}
