package config

import (
	"strings"

	logx "netgrowl/pkg/logx"
)

// Config is the optional file configuration. Every section may be omitted;
// command-line flags override whatever is set here.
//
// Example (YAML):
//
//	defaults:
//	  host: growl.lan
//	  protocol: gntp
//	  password: s3cret
//	  timeout: 3s
//	prowl:
//	  key_file: ~/.prowlkey
//	logging:
//	  level: info
//	repeat:
//	  rate_per_minute: 30
type Config struct {
	Defaults DefaultsConfig `json:"defaults"`
	Prowl    ProwlConfig    `json:"prowl" envPrefix:"PROWL_"`
	Logging  LoggingConfig  `json:"logging" envPrefix:"LOG_"`
	Repeat   RepeatConfig   `json:"repeat" envPrefix:"REPEAT_"`
}

// DefaultsConfig holds per-delivery defaults.
type DefaultsConfig struct {
	Host       string `json:"host,omitempty" env:"HOST"`
	Port       int    `json:"port,omitempty" env:"PORT" validate:"gte=0,lte=65535"`
	Protocol   string `json:"protocol,omitempty" env:"PROTOCOL" validate:"omitempty,oneof=udp gntp prowl"`
	Password   string `json:"password,omitempty" env:"PASSWORD"`
	Name       string `json:"name,omitempty" env:"NAME"`
	Identifier string `json:"identifier,omitempty" env:"IDENTIFIER"`
	Priority   int    `json:"priority,omitempty" env:"PRIORITY" validate:"gte=-2,lte=2"`
	Sticky     bool   `json:"sticky,omitempty" env:"STICKY"`
	Hash       string `json:"hash,omitempty" env:"HASH" validate:"omitempty,oneof=md5 sha1 sha256 sha512"`
	Coalesce   bool   `json:"coalesce,omitempty" env:"COALESCE"`

	// Timeout is a Go duration string (e.g. "3s"). Empty means 5s.
	Timeout string `json:"timeout,omitempty" env:"TIMEOUT"`
}

type ProwlConfig struct {
	Key      string `json:"key,omitempty" env:"KEY"`
	KeyFile  string `json:"key_file,omitempty" env:"KEYFILE"`
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT" validate:"omitempty,url"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty" env:"LEVEL"`
	// Console defaults to true when omitted.
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file" envPrefix:"FILE_"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty" env:"ENABLED"`
	Path    string `json:"path,omitempty" env:"PATH"`
}

// RepeatConfig controls the -repeat loop.
type RepeatConfig struct {
	// RatePerMinute caps deliveries; 0 means 60.
	RatePerMinute int `json:"rate_per_minute,omitempty" env:"RATE_PER_MINUTE" validate:"gte=0"`
}

const DefaultRatePerMinute = 60

// EffectiveRate returns the delivery cap per minute.
func (r RepeatConfig) EffectiveRate() int {
	if r.RatePerMinute <= 0 {
		return DefaultRatePerMinute
	}
	return r.RatePerMinute
}

// Logx converts the logging section. level overrides Level when non-empty.
func (l LoggingConfig) Logx(level string) logx.Config {
	if strings.TrimSpace(level) == "" {
		level = l.Level
	}
	console := true
	if l.Console != nil {
		console = *l.Console
	}
	return logx.Config{
		Level:   level,
		Console: console,
		File:    logx.FileConfig{Enabled: l.File.Enabled || l.File.Path != "", Path: l.File.Path},
	}
}

// normalize lowercases selector values so validation and lookups are case
// insensitive.
func (c *Config) normalize() {
	c.Defaults.Protocol = strings.ToLower(strings.TrimSpace(c.Defaults.Protocol))
	c.Defaults.Hash = strings.ToLower(strings.TrimSpace(c.Defaults.Hash))
	c.Defaults.Host = strings.TrimSpace(c.Defaults.Host)
	c.Prowl.Key = strings.TrimSpace(c.Prowl.Key)
	c.Prowl.KeyFile = strings.TrimSpace(c.Prowl.KeyFile)
}
