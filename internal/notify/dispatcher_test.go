package notify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"netgrowl/internal/failure"
	"netgrowl/internal/gntp"
	"netgrowl/internal/growl"
	"netgrowl/internal/prowl"
	"netgrowl/internal/transport"
)

func baseConfig(p Protocol, host string, port int) Config {
	return Config{
		Application: "Network Growler",
		Identifier:  "Network Growler",
		Title:       "Network Growler",
		Message:     "hi",
		Host:        host,
		Port:        port,
		Protocol:    p,
		Timeout:     time.Second,
	}
}

func splitPort(t *testing.T, addr net.Addr) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

func TestDeliverUDPSendsRegistrationThenNotification(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()
	host, port := splitPort(t, pc.LocalAddr())

	cfg := baseConfig(ProtocolUDP, host, port)
	if err := New().Deliver(context.Background(), cfg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	var got [][]byte
	buf := make([]byte, 64<<10)
	for len(got) < 2 {
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("ReadFrom after %d datagrams: %v", len(got), err)
		}
		got = append(got, append([]byte(nil), buf[:n]...))
	}

	reg, err := growl.DecodeRegistration(got[0], "")
	if err != nil {
		t.Fatalf("first datagram is not a registration: %v", err)
	}
	if reg.Application != cfg.Application || len(reg.Notifications) != 1 || reg.Notifications[0] != cfg.Identifier {
		t.Fatalf("registration = %+v", reg)
	}

	note, err := growl.DecodeNotification(got[1], "")
	if err != nil {
		t.Fatalf("second datagram is not a notification: %v", err)
	}
	if note.Title != "Network Growler" || note.Description != "hi" || note.Priority != 0 || note.Sticky {
		t.Fatalf("notification = %+v", note)
	}
}

type recordingSender struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (s *recordingSender) SendDatagram(_ context.Context, _ transport.Endpoint, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.err
}

func TestDeliverUDPOversizedFieldSendsNothing(t *testing.T) {
	s := &recordingSender{}
	cfg := baseConfig(ProtocolUDP, "127.0.0.1", 9887)
	cfg.Message = strings.Repeat("x", 70000)

	err := New(WithDatagramSender(s)).Deliver(context.Background(), cfg)
	if !errors.Is(err, failure.ErrEncoding) {
		t.Fatalf("expected encoding error, got %v", err)
	}
	if len(s.payloads) != 0 {
		t.Fatalf("%d datagrams sent, want 0", len(s.payloads))
	}
}

func TestDeliverUDPSendFailureNamesStep(t *testing.T) {
	s := &recordingSender{err: failure.Transport("send", "", errors.New("boom"))}
	err := New(WithDatagramSender(s)).Deliver(context.Background(), baseConfig(ProtocolUDP, "127.0.0.1", 0))

	var fe *failure.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *failure.Error, got %v", err)
	}
	if fe.Kind != failure.KindTransport || fe.Step != "udp.register" || fe.Addr != "127.0.0.1:9887" {
		t.Fatalf("error = %+v", fe)
	}
	if len(s.payloads) != 1 {
		t.Fatalf("%d datagrams attempted, want 1", len(s.payloads))
	}
}

// gntpDaemon accepts connections on loopback and answers each request with
// reply(req). Requests are recorded in arrival order.
type gntpDaemon struct {
	ln    net.Listener
	reply func(gntp.Request) gntp.Response

	mu   sync.Mutex
	reqs []gntp.Request
}

func startDaemon(t *testing.T, reply func(gntp.Request) gntp.Response) *gntpDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &gntpDaemon{ln: ln, reply: reply}
	t.Cleanup(func() { _ = ln.Close() })
	go d.serve()
	return d
}

func (d *gntpDaemon) serve() {
	for {
		c, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(c)
	}
}

func (d *gntpDaemon) handle(c net.Conn) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	var buf []byte
	chunk := make([]byte, 1024)
	for !gntp.RequestComplete(buf) {
		n, err := c.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			return
		}
	}
	req, err := gntp.ParseRequest(buf)
	if err != nil {
		return
	}
	d.mu.Lock()
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()
	_, _ = c.Write(gntp.EncodeResponse(d.reply(req)))
}

func (d *gntpDaemon) requests() []gntp.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gntp.Request(nil), d.reqs...)
}

func okReply(req gntp.Request) gntp.Response {
	return gntp.Response{
		Status:  gntp.StatusOK,
		Headers: []gntp.Header{{Key: gntp.HeaderResponseAction, Value: string(req.Type)}},
	}
}

func TestDeliverGNTPRegistersThenNotifies(t *testing.T) {
	d := startDaemon(t, okReply)
	host, port := splitPort(t, d.ln.Addr())

	cfg := baseConfig(ProtocolGNTP, host, port)
	cfg.Password = "secret"
	cfg.Priority = 2
	cfg.Sticky = true
	cfg.Coalesce = true
	err := New(WithOrigin("netgrowl", "test")).Deliver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	reqs := d.requests()
	if len(reqs) != 2 {
		t.Fatalf("daemon saw %d requests, want 2", len(reqs))
	}
	if reqs[0].Type != gntp.TypeRegister || reqs[1].Type != gntp.TypeNotify {
		t.Fatalf("request order = %s, %s", reqs[0].Type, reqs[1].Type)
	}
	for _, r := range reqs {
		if r.KeyHash == nil || !r.KeyHash.Verify("secret") {
			t.Fatalf("%s: key hash missing or wrong", r.Type)
		}
	}
	if got := reqs[0].Get(gntp.HeaderOriginSoftwareName); got != "netgrowl" {
		t.Fatalf("origin = %q", got)
	}
	n := reqs[1]
	checks := map[string]string{
		gntp.HeaderApplicationName:      cfg.Application,
		gntp.HeaderNotificationName:     cfg.Identifier,
		gntp.HeaderNotificationTitle:    cfg.Title,
		gntp.HeaderNotificationText:     "hi",
		gntp.HeaderNotificationSticky:   "True",
		gntp.HeaderNotificationPriority: "2",
		gntp.HeaderNotificationCoalesce: cfg.Identifier,
	}
	for k, want := range checks {
		if got := n.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestDeliverGNTPStopsAfterRejectedRegister(t *testing.T) {
	d := startDaemon(t, func(req gntp.Request) gntp.Response {
		return gntp.Response{
			Status: gntp.StatusError,
			Headers: []gntp.Header{
				{Key: gntp.HeaderResponseAction, Value: string(req.Type)},
				{Key: gntp.HeaderErrorCode, Value: "400"},
				{Key: gntp.HeaderErrorDescription, Value: "Not authorized"},
			},
		}
	})
	host, port := splitPort(t, d.ln.Addr())

	err := New().Deliver(context.Background(), baseConfig(ProtocolGNTP, host, port))
	if !errors.Is(err, failure.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Step != "gntp.register" || !strings.Contains(fe.Response, "-ERROR") {
		t.Fatalf("error = %+v", fe)
	}
	if fe.Addr == "" {
		t.Fatal("error carries no address")
	}

	// Give a stray NOTIFY time to arrive.
	time.Sleep(100 * time.Millisecond)
	for _, r := range d.requests() {
		if r.Type == gntp.TypeNotify {
			t.Fatal("NOTIFY sent after a rejected REGISTER")
		}
	}
}

func TestDeliverGNTPRejectedNotify(t *testing.T) {
	d := startDaemon(t, func(req gntp.Request) gntp.Response {
		if req.Type == gntp.TypeRegister {
			return okReply(req)
		}
		return gntp.Response{
			Status: gntp.StatusError,
			Headers: []gntp.Header{
				{Key: gntp.HeaderResponseAction, Value: string(req.Type)},
				{Key: gntp.HeaderErrorCode, Value: "402"},
				{Key: gntp.HeaderErrorDescription, Value: "Notification disabled"},
			},
		}
	})
	host, port := splitPort(t, d.ln.Addr())

	err := New().Deliver(context.Background(), baseConfig(ProtocolGNTP, host, port))
	if !errors.Is(err, failure.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Step != "gntp.notify" || !strings.Contains(fe.Response, "Notification disabled") {
		t.Fatalf("error = %+v", fe)
	}

	reqs := d.requests()
	if len(reqs) != 2 {
		t.Fatalf("daemon saw %d requests, want 2", len(reqs))
	}
	if reqs[0].Type != gntp.TypeRegister || reqs[1].Type != gntp.TypeNotify {
		t.Fatalf("request order = %s, %s", reqs[0].Type, reqs[1].Type)
	}
}

func TestDeliverGNTPMalformedReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = c.Read(make([]byte, 4096))
		_, _ = c.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	}()
	host, port := splitPort(t, ln.Addr())

	err = New().Deliver(context.Background(), baseConfig(ProtocolGNTP, host, port))
	if !errors.Is(err, failure.ErrProtocol) || !errors.Is(err, gntp.ErrInvalidResponse) {
		t.Fatalf("expected invalid-response protocol error, got %v", err)
	}
}

type countingRelay struct {
	calls int
	last  prowl.Request
	err   error
}

func (r *countingRelay) Post(_ context.Context, req prowl.Request) error {
	r.calls++
	r.last = req
	return r.err
}

func TestDeliverProwlPostsOnce(t *testing.T) {
	relay := &countingRelay{}
	cfg := baseConfig(ProtocolProwl, "", 0)
	cfg.RelayKey = "k"
	cfg.Application = "netgrowl: build"
	cfg.Priority = 7

	if err := New(WithRelay(relay)).Deliver(context.Background(), cfg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if relay.calls != 1 {
		t.Fatalf("calls = %d", relay.calls)
	}
	want := prowl.Request{APIKey: "k", Application: "netgrowl: build", Event: cfg.Title, Description: "hi", Priority: 2}
	if relay.last != want {
		t.Fatalf("request = %+v, want %+v", relay.last, want)
	}
}

func TestDeliverProwlOverHTTP(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><prowl><error code="401">Invalid API key</error></prowl>`))
	}))
	defer srv.Close()

	cfg := baseConfig(ProtocolProwl, "", 0)
	cfg.RelayKey = "bad"
	err := New(WithRelay(prowl.New(srv.URL, time.Second))).Deliver(context.Background(), cfg)
	if !errors.Is(err, failure.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("relay contacted %d times", calls)
	}
}

func TestDeliverProwlMissingKey(t *testing.T) {
	relay := &countingRelay{}
	err := New(WithRelay(relay)).Deliver(context.Background(), baseConfig(ProtocolProwl, "", 0))
	if !errors.Is(err, failure.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if relay.calls != 0 {
		t.Fatal("relay contacted without a key")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid udp", func(*Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"prowl needs no host", func(c *Config) { c.Host = ""; c.Protocol = ProtocolProwl }, false},
		{"bad protocol", func(c *Config) { c.Protocol = "smtp" }, true},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"empty title", func(c *Config) { c.Title = "" }, true},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(ProtocolUDP, "localhost", 0)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, failure.ErrConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestParseProtocol(t *testing.T) {
	for in, want := range map[string]Protocol{"udp": ProtocolUDP, "GNTP": ProtocolGNTP, " prowl ": ProtocolProwl, "tcp": ProtocolGNTP} {
		got, err := ParseProtocol(in)
		if err != nil || got != want {
			t.Fatalf("ParseProtocol(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseProtocol("smtp"); !errors.Is(err, failure.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
