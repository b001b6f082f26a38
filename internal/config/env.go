package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "DOCPORTAL_"

// Overrides holds the environment-provided values. Unset fields leave the
// file/default value in place.
type Overrides struct {
	APIBaseURL       string        `env:"API_BASE_URL"`
	Brand            string        `env:"BRAND"`
	Market           string        `env:"MARKET"`
	CountryISO       string        `env:"COUNTRY_ISO"`
	Lang             string        `env:"LANG"`
	ShowFAQ          *bool         `env:"SHOW_FAQ"`
	ShowIntro        *bool         `env:"SHOW_INTRO"`
	ChatPollInterval time.Duration `env:"CHAT_POLL_INTERVAL"`
	RefreshLead      time.Duration `env:"REFRESH_LEAD"`
	ValidityBuffer   time.Duration `env:"VALIDITY_BUFFER"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT"`
	// ParamPrefix enables the SSM Parameter Store lookup when set.
	ParamPrefix string `env:"PARAM_PREFIX"`
}

// ParseEnv reads overrides from environ. A nil map means the process
// environment.
func ParseEnv(environ map[string]string) (Overrides, error) {
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	var o Overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Overrides{}, fmt.Errorf("config: parse env: %w", err)
	}
	return o, nil
}

// Apply layers the overrides on top of c and re-validates. Switching brand
// re-derives the profile fields the overrides do not set themselves.
func (o Overrides) Apply(c *Config) error {
	if o.APIBaseURL != "" {
		c.APIBaseURL = o.APIBaseURL
	}
	if o.Brand != "" && !strings.EqualFold(o.Brand, c.Brand.Key) {
		c.Brand = Brand{
			Key:              o.Brand,
			ChatPollInterval: c.Brand.ChatPollInterval,
			RefreshLead:      c.Brand.RefreshLead,
			ValidityBuffer:   c.Brand.ValidityBuffer,
			RequestTimeout:   c.Brand.RequestTimeout,
		}
	}
	if o.Market != "" {
		c.Brand.Market = o.Market
	}
	if o.CountryISO != "" {
		c.Brand.CountryISO = o.CountryISO
	}
	if o.Lang != "" {
		c.Brand.Lang = o.Lang
	}
	if o.ShowFAQ != nil {
		c.Brand.ShowFAQ = o.ShowFAQ
	}
	if o.ShowIntro != nil {
		c.Brand.ShowIntro = o.ShowIntro
	}
	if o.ChatPollInterval != 0 {
		c.Brand.ChatPollInterval = o.ChatPollInterval
	}
	if o.RefreshLead != 0 {
		c.Brand.RefreshLead = o.RefreshLead
	}
	if o.ValidityBuffer != 0 {
		c.Brand.ValidityBuffer = o.ValidityBuffer
	}
	if o.RequestTimeout != 0 {
		c.Brand.RequestTimeout = o.RequestTimeout
	}
	c.applyDefaults()
	return c.validate()
}
