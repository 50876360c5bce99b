package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"netgrowl/internal/config"
	"netgrowl/internal/failure"
	"netgrowl/internal/gntp"
	"netgrowl/internal/notify"
	"netgrowl/internal/prowl"
)

// maxStdinMessage bounds the message read from standard input.
const maxStdinMessage = 64 << 10

// readMessage reads the message body from r unless r is an interactive
// terminal or a device such as /dev/null.
func readMessage(r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}
	if f, ok := r.(*os.File); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return "", nil
		}
		fi, err := f.Stat()
		if err != nil {
			return "", nil
		}
		if fi.Mode()&os.ModeNamedPipe == 0 && !fi.Mode().IsRegular() {
			return "", nil
		}
	}
	b, err := io.ReadAll(io.LimitReader(r, maxStdinMessage))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// resolved is one fully built delivery plus what is needed to explain it.
type resolved struct {
	cfg       notify.Config
	keySource config.RelayKeySource
}

// builder turns flags and file config into a notify.Config. It is pure
// apart from the relay key file lookup.
type builder struct {
	prog    string
	opts    *Options
	message string
	home    string
}

func (b builder) protocol(file config.DefaultsConfig) (notify.Protocol, error) {
	o := b.opts
	raw := file.Protocol
	if o.IsSet("protocol") {
		raw = o.Protocol
	}
	if o.Prowl {
		if o.IsSet("protocol") && !strings.EqualFold(strings.TrimSpace(o.Protocol), string(notify.ProtocolProwl)) {
			return "", fmt.Errorf("%w: -prowl conflicts with -protocol %s", errUsage, o.Protocol)
		}
		return notify.ProtocolProwl, nil
	}
	if strings.TrimSpace(raw) == "" {
		return notify.ProtocolUDP, nil
	}
	p, err := notify.ParseProtocol(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	return p, nil
}

func (b builder) build(file *config.Config) (resolved, error) {
	if file == nil {
		file = &config.Config{}
	}
	o, def := b.opts, file.Defaults

	pick := func(flagVal, fileVal string, names ...string) string {
		if o.IsSet(names...) || fileVal == "" {
			return flagVal
		}
		return fileVal
	}

	proto, err := b.protocol(def)
	if err != nil {
		return resolved{}, err
	}

	nameExplicit := o.IsSet("n", "name") || def.Name != ""
	name := pick(o.Name, def.Name, "n", "name")
	if strings.TrimSpace(name) == "" {
		name = b.prog
	}
	identExplicit := pick(o.Identifier, def.Identifier, "d", "identifier")
	ident := identExplicit
	if ident == "" {
		ident = name
	}

	title := joinTitle(o.Title, o.Args)
	if title == "" {
		title = name
	}

	priority := def.Priority
	if o.IsSet("p", "priority") {
		if priority, err = ParsePriority(o.Priority); err != nil {
			return resolved{}, err
		}
	}

	sticky := def.Sticky
	if o.IsSet("s", "sticky") {
		sticky = o.Sticky
	}
	coalesce := def.Coalesce
	if o.IsSet("coalesce") {
		coalesce = o.Coalesce
	}

	port := def.Port
	if o.IsSet("port") {
		port = o.Port
	}

	hash, err := gntp.ParseHashAlgorithm(pick(o.Hash, def.Hash, "hash"))
	if err != nil {
		return resolved{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	timeout, err := def.TimeoutDuration()
	if err != nil {
		return resolved{}, failure.Config("timeout", err)
	}
	if o.IsSet("timeout") {
		timeout = o.Timeout
	}

	cfg := notify.Config{
		Application:   name,
		Identifier:    ident,
		Title:         title,
		Message:       b.message,
		Priority:      priority,
		Sticky:        sticky,
		Host:          pick(o.Host, def.Host, "H", "host"),
		Port:          port,
		Password:      pick(o.Password, def.Password, "P", "password"),
		Protocol:      proto,
		HashAlgorithm: hash,
		Coalesce:      coalesce,
		Timeout:       timeout,
	}

	out := resolved{cfg: cfg}
	if proto == notify.ProtocolProwl {
		key, src := config.ResolveRelayKey(config.RelayKeyLookup{
			Key:      pick(o.ProwlKey, file.Prowl.Key, "prowl-key"),
			Password: cfg.Password,
			KeyFile:  pick(o.ProwlKeyFile, file.Prowl.KeyFile, "prowl-keyfile"),
			Home:     b.home,
		})
		if key == "" {
			return resolved{}, failure.Config("prowl.key",
				fmt.Errorf("%w: provide one with -prowl-key or -prowl-keyfile", prowl.ErrMissingKey))
		}
		out.cfg.RelayKey = key
		out.keySource = src
		out.cfg.Application = relayApplication(name, nameExplicit, identExplicit)
	}
	return out, nil
}

// check reports whether file still yields a deliverable config. Repeat mode
// runs it on every reload so a bad edit keeps the previous config in place.
func (b builder) check(_ context.Context, file *config.Config) error {
	r, err := b.build(file)
	if err != nil {
		return err
	}
	return r.cfg.Validate()
}

// relayApplication names the sender on the relay: "name: identifier" when
// both were chosen by the user, otherwise whichever one was.
func relayApplication(name string, nameExplicit bool, identifier string) string {
	var app string
	if nameExplicit {
		app = name
		if identifier != "" {
			app += ": "
		}
	}
	app += identifier
	if app == "" {
		app = name
	}
	return app
}
