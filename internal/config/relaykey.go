package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultKeyFile is looked up in the home directory when no key is given.
const DefaultKeyFile = ".prowlkey"

// RelayKeySource names where a relay key came from, for diagnostics.
type RelayKeySource string

const (
	KeyFromFlag     RelayKeySource = "flag"
	KeyFromPassword RelayKeySource = "password"
	KeyFromFile     RelayKeySource = "file"
	KeyNone         RelayKeySource = ""
)

// RelayKeyLookup is the input of ResolveRelayKey. Empty fields are skipped.
type RelayKeyLookup struct {
	Key      string
	Password string
	KeyFile  string
	// Home overrides os.UserHomeDir for the default key file.
	Home string
}

// ResolveRelayKey walks the chain key, password, key file, ~/.prowlkey and
// returns the first non-empty value. An unreadable file counts as absent.
func ResolveRelayKey(in RelayKeyLookup) (string, RelayKeySource) {
	if k := strings.TrimSpace(in.Key); k != "" {
		return k, KeyFromFlag
	}
	if in.Password != "" {
		return in.Password, KeyFromPassword
	}

	path := expandHome(strings.TrimSpace(in.KeyFile), in.Home)
	if path == "" {
		home := in.Home
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		if home != "" {
			path = filepath.Join(home, DefaultKeyFile)
		}
	}
	if path == "" {
		return "", KeyNone
	}
	if k := firstLine(path); k != "" {
		return k, KeyFromFile
	}
	return "", KeyNone
}

func firstLine(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return ""
	}
	return strings.TrimRight(sc.Text(), " \t\r")
}

func expandHome(p, home string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		home = h
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
