package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"netgrowl/internal/failure"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", `
defaults:
  host: growl.lan
  protocol: GNTP
  password: s3cret
  priority: 1
  timeout: 3s
prowl:
  key_file: /tmp/key
logging:
  level: debug
repeat:
  rate_per_minute: 10
`)
	cfg, err := NewManager(p, false).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.Host != "growl.lan" || cfg.Defaults.Protocol != "gntp" || cfg.Defaults.Priority != 1 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
	if d, _ := cfg.Defaults.TimeoutDuration(); d != 3*time.Second {
		t.Fatalf("timeout = %v", d)
	}
	if cfg.Prowl.KeyFile != "/tmp/key" || cfg.Repeat.EffectiveRate() != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
	lc := cfg.Logging.Logx("")
	if lc.Level != "debug" || !lc.Console || lc.File.Enabled {
		t.Fatalf("logging = %+v", lc)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", `{"defaults":{"host":"10.0.0.2","port":9999}}`)
	cfg, err := NewManager(p, false).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.Host != "10.0.0.2" || cfg.Defaults.Port != 9999 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, file, body string
	}{
		{"unknown yaml key", "a.yaml", "defaults:\n  hots: x\n"},
		{"unknown section", "b.json", `{"smtp":{}}`},
		{"trailing json", "c.json", `{"defaults":{}} {"defaults":{}}`},
		{"bad yaml", "d.yaml", "defaults: [\n"},
		{"port range", "e.yaml", "defaults:\n  port: 70000\n"},
		{"protocol", "f.yaml", "defaults:\n  protocol: smtp\n"},
		{"priority", "g.yaml", "defaults:\n  priority: 5\n"},
		{"timeout", "h.yaml", "defaults:\n  timeout: soon\n"},
		{"level", "i.yaml", "logging:\n  level: loud\n"},
		{"endpoint", "j.yaml", "prowl:\n  endpoint: not a url\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, tt.file, tt.body)
			_, err := NewManager(p, false).Load()
			if !errors.Is(err, failure.ErrConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := NewManager(p, true).Load()
	if err != nil || cfg == nil {
		t.Fatalf("optional missing file: cfg=%v err=%v", cfg, err)
	}
	if _, err := NewManager(p, false).Load(); !errors.Is(err, failure.ErrConfig) {
		t.Fatalf("required missing file: expected config error, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "defaults:\n  host: from-file\n  port: 1\n")
	t.Setenv("NETGROWL_HOST", "from-env")
	t.Setenv("NETGROWL_PROWL_KEY", "abc")
	t.Setenv("NETGROWL_LOG_FILE_PATH", "/tmp/netgrowl.log")

	cfg, err := NewManager(p, false).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.Host != "from-env" {
		t.Fatalf("host = %q, want env value", cfg.Defaults.Host)
	}
	if cfg.Defaults.Port != 1 {
		t.Fatalf("port = %d, file value lost", cfg.Defaults.Port)
	}
	if cfg.Prowl.Key != "abc" {
		t.Fatalf("prowl key = %q", cfg.Prowl.Key)
	}
	if lc := cfg.Logging.Logx(""); !lc.File.Enabled || lc.File.Path != "/tmp/netgrowl.log" {
		t.Fatalf("logging = %+v", lc)
	}
}

func TestApplyEnvBadValue(t *testing.T) {
	cfg := &Config{}
	err := applyEnv(cfg, map[string]string{"NETGROWL_PORT": "ninety"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveRelayKey(t *testing.T) {
	home := t.TempDir()
	keyfile := writeFile(t, home, "mykey", "filekey\nsecond line\n")

	tests := []struct {
		name    string
		in      RelayKeyLookup
		want    string
		wantSrc RelayKeySource
	}{
		{"flag wins", RelayKeyLookup{Key: "k", Password: "p", KeyFile: keyfile, Home: home}, "k", KeyFromFlag},
		{"password fallback", RelayKeyLookup{Password: "p", KeyFile: keyfile, Home: home}, "p", KeyFromPassword},
		{"key file first line", RelayKeyLookup{KeyFile: keyfile, Home: home}, "filekey", KeyFromFile},
		{"tilde path", RelayKeyLookup{KeyFile: "~/mykey", Home: home}, "filekey", KeyFromFile},
		{"unreadable file is absent", RelayKeyLookup{KeyFile: filepath.Join(home, "missing"), Home: home}, "", KeyNone},
		{"no default file", RelayKeyLookup{Home: home}, "", KeyNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := ResolveRelayKey(tt.in)
			if got != tt.want || src != tt.wantSrc {
				t.Fatalf("got (%q, %q), want (%q, %q)", got, src, tt.want, tt.wantSrc)
			}
		})
	}

	writeFile(t, home, DefaultKeyFile, "homekey  \n")
	if got, src := ResolveRelayKey(RelayKeyLookup{Home: home}); got != "homekey" || src != KeyFromFile {
		t.Fatalf("default key file: got (%q, %q)", got, src)
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg := &Config{Defaults: DefaultsConfig{Host: "a", Password: "x"}}
	newCfg := &Config{Defaults: DefaultsConfig{Host: "b", Password: "y"}, Repeat: RepeatConfig{RatePerMinute: 5}}

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "defaults,repeat" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if changed, _ := SummarizeChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "defaults:\n  host: one\n")
	m := NewManager(p, false)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// let the watcher register the directory
	time.Sleep(200 * time.Millisecond)

	// invalid content is not published
	writeFile(t, dir, "config.yaml", "defaults:\n  port: -1\n")
	time.Sleep(2 * reloadDebounce)
	writeFile(t, dir, "config.yaml", "defaults:\n  host: two\n")

	select {
	case cfg := <-ch:
		if cfg.Defaults.Host != "two" {
			t.Fatalf("published host = %q", cfg.Defaults.Host)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if got := m.Get().Defaults.Host; got != "two" {
		t.Fatalf("committed host = %q", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchKeepsConfigWhenValidatorRejects(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "defaults:\n  host: one\n")
	m := NewManager(p, false)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Defaults.Host == "rejected" {
			return errors.New("host not reachable")
		}
		return nil
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(200 * time.Millisecond)

	writeFile(t, dir, "config.yaml", "defaults:\n  host: rejected\n")
	time.Sleep(2 * reloadDebounce)
	if got := m.Get().Defaults.Host; got != "one" {
		t.Fatalf("rejected reload committed host %q", got)
	}
	writeFile(t, dir, "config.yaml", "defaults:\n  host: three\n")

	select {
	case cfg := <-ch:
		if cfg.Defaults.Host != "three" {
			t.Fatalf("published host = %q", cfg.Defaults.Host)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}
