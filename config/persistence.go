package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/crmado/realtime-item-monitor/apperr"
)

// appName namespaces this module's config file under the user's XDG config
// home, e.g. ~/.config/realtime-item-monitor/<name>.
const appName = "realtime-item-monitor"

// DefaultPath resolves the standard config file location for name (e.g.
// "config.json"), creating the containing directory if needed.
func DefaultPath(name string) (string, error) {
	p, err := xdg.ConfigFile(filepath.Join(appName, name))
	if err != nil {
		return "", apperr.Wrap(apperr.ConfigInvalid, err)
	}
	return p, nil
}

// Load reads and validates a Config from path. If path does not exist,
// Load returns DefaultConfig() and writes it to path so subsequent runs
// have a file to edit. A config file that exists but fails validation
// returns a ConfigInvalid error naming the first violated invariant (§6);
// the error is not itself fatal to the process — callers that start the
// pipeline (main.go) log it and fall back to DefaultConfig() rather than
// aborting, matching the original implementation's load_config behavior.
// Callers that use Load to validate a hot-reloaded or user-edited file
// (domain/partlib.Store) instead keep the last-good in-memory state on
// error, which is its own correct non-fatal handling of the same error.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if werr := Save(path, cfg); werr != nil {
			return nil, werr
		}
		return cfg, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigInvalid, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, apperr.Field(path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating parent directories
// as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.ConfigInvalid, err)
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.ConfigInvalid, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return apperr.Wrap(apperr.ConfigInvalid, err)
	}
	return nil
}
