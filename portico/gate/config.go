package gate

import (
	"fmt"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/storage"
)

// Config controls how a database handle is opened. The zero value opens
// a read-write store, creating it if missing, with no host adapter.
type Config struct {
	ReadOnly        bool
	CreateIfMissing bool
	CacheSize       int64    // backend cache budget in bytes, 0 for the backend default
	Host            HostLock // foreign-call adapter, nil for NoHostLock
	OnEvent         Handler  // optional annotation handler
}

func defaultConfig() *Config {
	return &Config{CreateIfMissing: true}
}

// ParseConfig builds a Config from a loosely-typed option map, the shape
// embedding hosts hand across the boundary. Unknown keys are rejected
// rather than ignored so a typo cannot silently change behavior.
func ParseConfig(opts map[string]any) (*Config, error) {
	cfg := defaultConfig()
	for key, raw := range opts {
		switch key {
		case "read_only":
			b, ok := raw.(bool)
			if !ok {
				return nil, configTypeError(key, "bool", raw)
			}
			cfg.ReadOnly = b
		case "create_if_missing":
			b, ok := raw.(bool)
			if !ok {
				return nil, configTypeError(key, "bool", raw)
			}
			cfg.CreateIfMissing = b
		case "cache_size":
			n, err := toInt64(raw)
			if err != nil {
				return nil, configTypeError(key, "integer", raw)
			}
			if n < 0 {
				return nil, portico.NewDiagnostic(portico.CategoryStorageInit, "config::invalid_value",
					"config key %q must be non-negative, got %d", key, n)
			}
			cfg.CacheSize = n
		default:
			return nil, portico.NewDiagnostic(portico.CategoryStorageInit, "config::unknown_key",
				"unknown config key %q", key)
		}
	}
	return cfg, nil
}

func configTypeError(key, want string, got any) error {
	return portico.NewDiagnostic(portico.CategoryStorageInit, "config::invalid_value",
		"config key %q expects a %s, got %T", key, want, got)
}

func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", raw)
	}
}

func (c *Config) storageOptions() storage.Options {
	return storage.Options{
		ReadOnly:        c.ReadOnly,
		CreateIfMissing: c.CreateIfMissing,
		CacheSize:       int(c.CacheSize),
	}
}
