// Package config resolves the portal configuration once at startup: the
// backend base URL and the brand profile the core consumes read-only.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultAPIBaseURL = "https://ysu7eo2haj.execute-api.eu-north-1.amazonaws.com/prod"

// Config is the top-level portal configuration, optionally loaded from YAML.
type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	Brand      Brand  `yaml:"brand"`
}

// Brand is the per-market presentation and timing profile.
type Brand struct {
	Key              string        `yaml:"key"`
	Name             string        `yaml:"name"`
	Market           string        `yaml:"market"`
	CountryISO       string        `yaml:"country_iso"`
	Lang             string        `yaml:"lang"`
	ShowFAQ          *bool         `yaml:"show_faq"`
	ShowIntro        *bool         `yaml:"show_intro"`
	ChatPollInterval time.Duration `yaml:"chat_poll_interval"`
	RefreshLead      time.Duration `yaml:"refresh_lead"`
	ValidityBuffer   time.Duration `yaml:"validity_buffer"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// FAQVisible reports whether the FAQ panel is shown.
func (b Brand) FAQVisible() bool { return b.ShowFAQ != nil && *b.ShowFAQ }

// IntroVisible reports whether the intro tour is offered.
func (b Brand) IntroVisible() bool { return b.ShowIntro != nil && *b.ShowIntro }

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields from the selected brand profile and the
// built-in timings.
func (c *Config) applyDefaults() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}

	c.Brand.Key = strings.ToLower(strings.TrimSpace(c.Brand.Key))
	if c.Brand.Key == "" {
		c.Brand.Key = DefaultBrand
	}
	if p, ok := profiles[c.Brand.Key]; ok {
		if c.Brand.Name == "" {
			c.Brand.Name = p.Name
		}
		if c.Brand.Market == "" {
			c.Brand.Market = p.Market
		}
		if c.Brand.CountryISO == "" {
			c.Brand.CountryISO = p.CountryISO
		}
		if c.Brand.Lang == "" {
			c.Brand.Lang = p.Lang
		}
		if c.Brand.ShowFAQ == nil {
			c.Brand.ShowFAQ = boolPtr(p.ShowFAQ)
		}
		if c.Brand.ShowIntro == nil {
			c.Brand.ShowIntro = boolPtr(p.ShowIntro)
		}
	}
	c.Brand.CountryISO = strings.ToUpper(c.Brand.CountryISO)

	if c.Brand.ChatPollInterval == 0 {
		c.Brand.ChatPollInterval = 5 * time.Second
	}
	if c.Brand.RefreshLead == 0 {
		c.Brand.RefreshLead = 120 * time.Second
	}
	if c.Brand.ValidityBuffer == 0 {
		c.Brand.ValidityBuffer = 300 * time.Second
	}
	if c.Brand.RequestTimeout == 0 {
		c.Brand.RequestTimeout = 15 * time.Second
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api_base_url %q must be an absolute http(s) URL", c.APIBaseURL)
	}
	if c.Brand.Market == "" {
		return fmt.Errorf("config: brand %q has no market", c.Brand.Key)
	}
	if len(c.Brand.CountryISO) != 2 {
		return fmt.Errorf("config: brand.country_iso %q must be an ISO-2 code", c.Brand.CountryISO)
	}
	if c.Brand.ChatPollInterval < time.Second {
		return fmt.Errorf("config: brand.chat_poll_interval %s is below 1s", c.Brand.ChatPollInterval)
	}
	for name, d := range map[string]time.Duration{
		"refresh_lead":    c.Brand.RefreshLead,
		"validity_buffer": c.Brand.ValidityBuffer,
		"request_timeout": c.Brand.RequestTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("config: brand.%s must not be negative", name)
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
