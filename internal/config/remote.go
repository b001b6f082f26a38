package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docportal/internal/integrations/paramstore"
)

// RemoteBaseURLKey is the parameter holding the backend base URL.
const RemoteBaseURLKey = "api_base_url"

// ResolveRemote overrides the base URL from the parameter store. An absent
// parameter keeps the current value.
func ResolveRemote(ctx context.Context, c *Config, params paramstore.Getter) error {
	if params == nil {
		return fmt.Errorf("config: params must not be nil")
	}
	v, ok, err := params.Lookup(ctx, RemoteBaseURLKey)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", RemoteBaseURLKey, err)
	}
	if !ok || strings.TrimSpace(v) == "" {
		slog.Debug("remote base url not set", "key", RemoteBaseURLKey)
		return nil
	}
	c.APIBaseURL = v
	c.applyDefaults()
	return c.validate()
}

// Sources names where Resolve reads from. Empty fields are skipped.
type Sources struct {
	File string
	// Host is the portal hostname. It picks the brand when no file is given;
	// the environment still wins over it.
	Host    string
	Environ map[string]string
	// Params opens the store below the prefix the environment names. It is
	// not called without one.
	Params func(ctx context.Context, prefix string) (paramstore.Getter, error)
}

// Resolve builds the configuration from defaults, the optional YAML file or
// the hostname's brand, the environment and finally the parameter store.
func Resolve(ctx context.Context, src Sources) (*Config, error) {
	cfg := Default()
	if src.File != "" {
		loaded, err := Load(src.File)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if src.Host != "" {
		if err := (Overrides{Brand: BrandForHost(src.Host)}).Apply(cfg); err != nil {
			return nil, err
		}
	}

	over, err := ParseEnv(src.Environ)
	if err != nil {
		return nil, err
	}
	if err := over.Apply(cfg); err != nil {
		return nil, err
	}

	if over.ParamPrefix == "" || src.Params == nil {
		return cfg, nil
	}
	params, err := src.Params(ctx, over.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("config: parameter store: %w", err)
	}
	if err := ResolveRemote(ctx, cfg, params); err != nil {
		return nil, err
	}
	return cfg, nil
}
