// Package notify delivers one notification over the configured protocol.
//
// The Dispatcher owns the per-protocol sequence:
//
//	udp:   registration datagram, then notification datagram
//	gntp:  REGISTER exchange (must be -OK), then NOTIFY exchange (must be -OK)
//	prowl: a single relay POST
//
// Every step is a single attempt; the first failure ends the delivery.
package notify

import (
	"context"
	"errors"
	"fmt"

	"netgrowl/internal/failure"
	"netgrowl/internal/gntp"
	"netgrowl/internal/growl"
	"netgrowl/internal/prowl"
	"netgrowl/internal/transport"
	logx "netgrowl/pkg/logx"
)

// Relay posts a notification to an HTTP relay.
type Relay interface {
	Post(ctx context.Context, r prowl.Request) error
}

type Dispatcher struct {
	datagrams transport.DatagramSender
	streams   transport.Exchanger
	relay     Relay
	log       logx.Logger
	origin    gntp.Origin
}

type Option func(*Dispatcher)

func WithDatagramSender(s transport.DatagramSender) Option {
	return func(d *Dispatcher) { d.datagrams = s }
}

func WithExchanger(e transport.Exchanger) Option {
	return func(d *Dispatcher) { d.streams = e }
}

func WithRelay(r Relay) Option {
	return func(d *Dispatcher) { d.relay = r }
}

func WithLogger(l logx.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithOrigin sets the Origin-Software-* headers sent over GNTP.
func WithOrigin(name, version string) Option {
	return func(d *Dispatcher) { d.origin = gntp.Origin{Name: name, Version: version} }
}

// New returns a Dispatcher. Transports not supplied through options are
// created per delivery from Config.Timeout.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range opts {
		o(d)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	return d
}

// Deliver sends cfg's notification. It returns a *failure.Error on every
// failure path.
func (d *Dispatcher) Deliver(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := d.log.With(logx.String("protocol", string(cfg.Protocol)))

	var err error
	switch cfg.Protocol {
	case ProtocolUDP:
		err = d.deliverUDP(ctx, cfg, log)
	case ProtocolGNTP:
		err = d.deliverGNTP(ctx, cfg, log)
	case ProtocolProwl:
		err = d.deliverProwl(ctx, cfg, log)
	default:
		err = failure.Config("protocol", fmt.Errorf("unsupported protocol %q", cfg.Protocol))
	}
	if err != nil {
		log.Debug("delivery failed", logx.Err(err))
		return err
	}
	log.Debug("delivered", logx.String("identifier", cfg.Identifier))
	return nil
}

func (d *Dispatcher) netFor(cfg Config) *transport.Net {
	return transport.New(cfg.Timeout, d.log.With(logx.String("comp", "transport")))
}

func (d *Dispatcher) deliverUDP(ctx context.Context, cfg Config, log logx.Logger) error {
	sender := d.datagrams
	if sender == nil {
		sender = d.netFor(cfg)
	}
	to := transport.Endpoint{Host: cfg.Host, Port: cfg.port()}

	// Encode both packets first so an oversized field fails before any send.
	reg, err := growl.EncodeRegistration(cfg.Application, cfg.Password, cfg.Identifier)
	if err != nil {
		return err
	}
	note, err := growl.EncodeNotification(
		cfg.Application, cfg.Identifier, cfg.Title, cfg.Message,
		cfg.Priority, cfg.Sticky, cfg.Password,
	)
	if err != nil {
		return err
	}

	if err := sender.SendDatagram(ctx, to, reg); err != nil {
		return withStep(err, "udp.register", to.String())
	}
	log.Debug("registration sent", logx.String("addr", to.String()), logx.Int("bytes", len(reg)))

	if err := sender.SendDatagram(ctx, to, note); err != nil {
		return withStep(err, "udp.notify", to.String())
	}
	log.Debug("notification sent", logx.String("addr", to.String()), logx.Int("bytes", len(note)))
	return nil
}

func (d *Dispatcher) deliverGNTP(ctx context.Context, cfg Config, log logx.Logger) error {
	streams := d.streams
	if streams == nil {
		streams = d.netFor(cfg)
	}
	to := transport.Endpoint{Host: cfg.Host, Port: cfg.port()}

	reg := gntp.RegisterMessage(gntp.Registration{
		Application:   cfg.Application,
		Notifications: []string{cfg.Identifier},
		Origin:        d.origin,
	})
	if err := d.exchangeGNTP(ctx, streams, to, reg, cfg, "gntp.register"); err != nil {
		return err
	}
	log.Debug("registered", logx.String("addr", to.String()), logx.String("application", cfg.Application))

	n := gntp.Notification{
		Application: cfg.Application,
		Name:        cfg.Identifier,
		Title:       cfg.Title,
		Text:        cfg.Message,
		Priority:    cfg.Priority,
		Sticky:      cfg.Sticky,
		Origin:      d.origin,
	}
	if cfg.Coalesce {
		n.CoalescingID = cfg.Identifier
	}
	if err := d.exchangeGNTP(ctx, streams, to, gntp.NotifyMessage(n), cfg, "gntp.notify"); err != nil {
		return err
	}
	log.Debug("notified", logx.String("addr", to.String()))
	return nil
}

func (d *Dispatcher) exchangeGNTP(ctx context.Context, streams transport.Exchanger, to transport.Endpoint, m gntp.Message, cfg Config, step string) error {
	m.Password = cfg.Password
	m.Hash = cfg.HashAlgorithm
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	raw, err := streams.Exchange(ctx, to, payload, transport.ExchangeOptions{
		MaxResponse: gntp.MaxResponseBytes,
		Complete:    gntp.ResponseComplete,
	})
	if err != nil {
		return withStep(err, step, to.String())
	}
	resp, err := gntp.ParseResponse(raw)
	if err != nil {
		return withStep(err, step, to.String())
	}
	if err := resp.Err(); err != nil {
		return withStep(err, step, to.String())
	}
	return nil
}

func (d *Dispatcher) deliverProwl(ctx context.Context, cfg Config, log logx.Logger) error {
	if cfg.RelayKey == "" {
		return failure.Config("prowl.key", prowl.ErrMissingKey)
	}
	relay := d.relay
	if relay == nil {
		relay = prowl.New("", cfg.Timeout)
	}
	err := relay.Post(ctx, prowl.Request{
		APIKey:      cfg.RelayKey,
		Application: cfg.Application,
		Event:       cfg.Title,
		Description: cfg.Message,
		Priority:    growl.ClampPriority(cfg.Priority),
	})
	if err != nil {
		return err
	}
	log.Debug("relayed", logx.String("application", cfg.Application))
	return nil
}

// withStep fills in the step and address on a *failure.Error that was
// raised below the dispatcher without them.
func withStep(err error, step, addr string) error {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return failure.Transport(step, addr, err)
	}
	cp := *fe
	cp.Step = step
	if cp.Addr == "" {
		cp.Addr = addr
	}
	return &cp
}
