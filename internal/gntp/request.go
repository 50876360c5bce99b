package gntp

import (
	"fmt"
	"strings"
)

// Request is a parsed client request, as seen by a daemon.
type Request struct {
	Type     MessageType
	KeyHash  *KeyHash
	Headers  []Header
	Sections [][]Header
}

// Get returns the first main-block header value for key (case-insensitive).
func (r Request) Get(key string) string {
	return Response{Headers: r.Headers}.Get(key)
}

// RequestComplete reports whether buf holds a whole request: the main block
// plus, for REGISTER, as many notification blocks as Notifications-Count
// announces.
func RequestComplete(buf []byte) bool {
	req, err := ParseRequest(buf)
	if err != nil {
		return false
	}
	if req.Type != TypeRegister {
		return true
	}
	var want int
	if _, err := fmt.Sscanf(req.Get(HeaderNotificationsCount), "%d", &want); err != nil {
		return true
	}
	return len(req.Sections) >= want
}

// ParseRequest parses a serialized Message. Blocks without a trailing blank
// line are ignored, so a partially received request parses as its complete
// prefix.
func ParseRequest(b []byte) (Request, error) {
	text := strings.ReplaceAll(string(b), "\r\n", "\n")
	blocks := strings.Split(text, "\n\n")
	if len(blocks) < 2 {
		return Request{}, fmt.Errorf("%w: incomplete request", ErrInvalidResponse)
	}
	// The element after the last separator is unterminated.
	blocks = blocks[:len(blocks)-1]

	lines := strings.Split(blocks[0], "\n")
	info := strings.Fields(lines[0])
	if len(info) < 3 || info[0] != ProtocolID+"/"+Version {
		return Request{}, fmt.Errorf("%w: bad information line %q", ErrInvalidResponse, lines[0])
	}
	req := Request{Type: MessageType(info[1])}
	if len(info) >= 4 {
		kh, err := ParseKeyHash(info[3])
		if err != nil {
			return Request{}, err
		}
		req.KeyHash = &kh
	}

	hs, err := parseHeaderLines(lines[1:])
	if err != nil {
		return Request{}, err
	}
	req.Headers = hs
	for _, blk := range blocks[1:] {
		if blk == "" {
			continue
		}
		hs, err := parseHeaderLines(strings.Split(blk, "\n"))
		if err != nil {
			return Request{}, err
		}
		req.Sections = append(req.Sections, hs)
	}
	return req, nil
}

func parseHeaderLines(lines []string) ([]Header, error) {
	var hs []Header
	for _, ln := range lines {
		if ln == "" {
			continue
		}
		k, v, ok := strings.Cut(ln, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrInvalidResponse, ln)
		}
		hs = append(hs, Header{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)})
	}
	return hs, nil
}
