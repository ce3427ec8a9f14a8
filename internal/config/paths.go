package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".careai"

// Paths holds resolved filesystem paths for careai data.
type Paths struct {
	Base   string // ~/.careai
	Config string // ~/.careai/config.yaml
	Data   string // ~/.careai/data
	Logs   string // ~/.careai/logs
}

// ResolvePaths locates the careai home: $CAREAI_HOME, else ~/.careai.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CAREAI_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates the base, data and log directories.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DBPath returns the SQLite database location, honoring storage.path.
func (p Paths) DBPath(cfg StorageConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "careai.db")
}

// ParseConfigPath splits a dotted key such as "agents.intent.mode". Each
// segment must be a YAML identifier: a letter followed by letters, digits,
// '_' or '-'.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if !validKey(p) {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid config path segment %q in %q", p, raw)}
		}
	}
	return parts, nil
}

func validKey(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_' || r == '-'):
		default:
			return false
		}
	}
	return true
}

// parent walks to the map holding the last segment of path. With create
// set, missing or scalar intermediates are replaced by empty maps.
func parent(root map[string]any, path []string, create bool) (map[string]any, bool) {
	cur := root
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return cur, true
}

// GetValueAtPath returns the value stored at path in a decoded YAML tree.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return root, true
	}
	m, ok := parent(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := m[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value at path, creating intermediate sections.
func SetValueAtPath(root map[string]any, path []string, value any) {
	m, _ := parent(root, path, true)
	m[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the key at path and reports whether it existed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	m, ok := parent(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
