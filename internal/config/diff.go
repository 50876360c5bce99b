package config

import (
	"sort"

	logx "netgrowl/pkg/logx"
)

// SummarizeChange lists the sections that differ between oldCfg and newCfg
// and returns log attributes describing the new values. Secrets (passwords,
// relay keys) are reported only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	o, n := oldCfg.Defaults, newCfg.Defaults
	if o != n {
		changed = append(changed, "defaults")
		attrs = append(attrs,
			logx.String("defaults.host", n.Host),
			logx.Int("defaults.port", n.Port),
			logx.String("defaults.protocol", n.Protocol),
			logx.Bool("defaults.password_set", n.Password != ""),
			logx.Int("defaults.priority", n.Priority),
			logx.String("defaults.timeout", n.Timeout),
		)
	}

	if oldCfg.Prowl != newCfg.Prowl {
		changed = append(changed, "prowl")
		attrs = append(attrs,
			logx.Bool("prowl.key_set", newCfg.Prowl.Key != ""),
			logx.String("prowl.key_file", newCfg.Prowl.KeyFile),
			logx.String("prowl.endpoint", newCfg.Prowl.Endpoint),
		)
	}

	ol, nl := oldCfg.Logging.Logx(""), newCfg.Logging.Logx("")
	if ol != nl {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file", nl.File.Enabled),
		)
	}

	if oldCfg.Repeat != newCfg.Repeat {
		changed = append(changed, "repeat")
		attrs = append(attrs,
			logx.Int("repeat.rate_per_minute", newCfg.Repeat.EffectiveRate()),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
