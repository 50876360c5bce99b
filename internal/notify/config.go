package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"netgrowl/internal/failure"
	"netgrowl/internal/gntp"
	"netgrowl/internal/growl"
)

type Protocol string

const (
	ProtocolUDP   Protocol = "udp"
	ProtocolGNTP  Protocol = "gntp"
	ProtocolProwl Protocol = "prowl"
)

// ParseProtocol accepts the selector names plus a few aliases.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "udp", "legacy", "legacy-udp", "growl":
		return ProtocolUDP, nil
	case "gntp", "tcp", "text-tcp":
		return ProtocolGNTP, nil
	case "prowl", "relay", "http-relay":
		return ProtocolProwl, nil
	default:
		return "", failure.Config("protocol", fmt.Errorf("unknown protocol %q (want udp, gntp or prowl)", s))
	}
}

// DefaultPort returns the registered port for p, or 0 when p has none.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolUDP:
		return growl.DefaultPort
	case ProtocolGNTP:
		return gntp.DefaultPort
	default:
		return 0
	}
}

// Config is everything one delivery needs. It is built once by the caller
// and never modified by the dispatcher.
type Config struct {
	Application string `validate:"required"`
	Identifier  string `validate:"required"`
	Title       string `validate:"required"`
	Message     string
	Priority    int
	Sticky      bool

	Host     string `validate:"required_unless=Protocol prowl"`
	Port     int    `validate:"gte=0,lte=65535"`
	Password string
	Protocol Protocol `validate:"oneof=udp gntp prowl"`

	RelayKey string

	// HashAlgorithm selects the GNTP key hash; empty means MD5.
	HashAlgorithm gntp.HashAlgorithm
	// Coalesce asks GNTP daemons to replace earlier notifications that share
	// the identifier.
	Coalesce bool
	// Timeout bounds each socket step; 0 uses the transport default.
	Timeout time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// Validate checks the invariants the codecs rely on.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return failure.Config("validate", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return failure.Config("validate", errors.New(strings.Join(msgs, "; ")))
}

// Endpoint port: explicit or the protocol default.
func (c Config) port() int {
	if c.Port > 0 {
		return c.Port
	}
	return c.Protocol.DefaultPort()
}
