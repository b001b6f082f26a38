package handler

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// Fixtures is the seed data of a sandbox backend.
type Fixtures struct {
	// OTP is the code every challenge accepts.
	OTP        string        `yaml:"otp"`
	Secret     string        `yaml:"secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	// LegacyList drops the journals array from identifier/list responses, the
	// way older backends answered.
	LegacyList     bool                   `yaml:"legacy_list"`
	AI             AIFixture              `yaml:"ai"`
	Journals       []JournalFixture       `yaml:"journals"`
	Identities     []IdentityFixture      `yaml:"identities"`
	Impersonations []ImpersonationFixture `yaml:"impersonations"`
}

type AIFixture struct {
	Fail   bool   `yaml:"fail"`
	Model  string `yaml:"model"`
	Answer string `yaml:"answer"`
}

type JournalFixture struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	ExternalID     string            `yaml:"external_id"`
	AccessToken    string            `yaml:"access_token"`
	FirstDraftSent string            `yaml:"first_draft_sent"`
	Documents      []DocumentFixture `yaml:"documents"`
	Messages       []MessageFixture  `yaml:"messages"`
}

type DocumentFixture struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	DocumentType string   `yaml:"document_type"`
	Status       string   `yaml:"status"`
	MarketUnit   string   `yaml:"market_unit"`
	SortOrder    *float64 `yaml:"sort_order"`
	Superseded   bool     `yaml:"superseded"`
	Blocked      bool     `yaml:"approval_blocked"`
	SentDate     string   `yaml:"sent_date"`
}

type MessageFixture struct {
	ID      string `yaml:"id"`
	Body    string `yaml:"body"`
	Inbound bool   `yaml:"inbound"`
	At      string `yaml:"at"`
	Type    string `yaml:"type"`
}

// IdentityFixture grants a phone number or email address access to journals.
type IdentityFixture struct {
	Phone    string   `yaml:"phone"`
	Email    string   `yaml:"email"`
	Journals []string `yaml:"journals"`
}

type ImpersonationFixture struct {
	Token        string `yaml:"token"`
	Journal      string `yaml:"journal"`
	AllowApprove bool   `yaml:"allow_approve"`
	Revoked      bool   `yaml:"revoked"`
	Expired      bool   `yaml:"expired"`
}

// DefaultFixtures returns the built-in seed data.
func DefaultFixtures() (Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

// LoadFixtures reads a YAML fixture file.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("handler: read fixtures %s: %w", path, err)
	}
	return ParseFixtures(data)
}

// ParseFixtures unmarshals and validates YAML fixtures.
func ParseFixtures(data []byte) (Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("handler: parse fixtures: %w", err)
	}
	fx.applyDefaults()
	if err := fx.validate(); err != nil {
		return Fixtures{}, err
	}
	return fx, nil
}

func (fx *Fixtures) applyDefaults() {
	if fx.OTP == "" {
		fx.OTP = "123456"
	}
	if fx.Secret == "" {
		fx.Secret = "sandbox-secret"
	}
	if fx.SessionTTL == 0 {
		fx.SessionTTL = time.Hour
	}
	if fx.AI.Model == "" {
		fx.AI.Model = "sandbox-1"
	}
	for i := range fx.Journals {
		for j := range fx.Journals[i].Documents {
			if fx.Journals[i].Documents[j].Status == "" {
				fx.Journals[i].Documents[j].Status = "Sent"
			}
		}
	}
}

func (fx *Fixtures) validate() error {
	if len(fx.OTP) != 6 || strings.Trim(fx.OTP, "0123456789") != "" {
		return fmt.Errorf("handler: fixtures otp %q must be six digits", fx.OTP)
	}
	if fx.SessionTTL < time.Minute {
		return fmt.Errorf("handler: fixtures session_ttl %s is below 1m", fx.SessionTTL)
	}
	journals := make(map[string]bool, len(fx.Journals))
	docs := make(map[string]bool)
	for _, j := range fx.Journals {
		if j.ID == "" {
			return fmt.Errorf("handler: fixtures journal without id")
		}
		if journals[j.ID] {
			return fmt.Errorf("handler: fixtures journal %q is duplicated", j.ID)
		}
		journals[j.ID] = true
		for _, d := range j.Documents {
			if d.ID == "" || docs[d.ID] {
				return fmt.Errorf("handler: fixtures journal %q has a missing or duplicated document id %q", j.ID, d.ID)
			}
			docs[d.ID] = true
		}
	}
	for _, id := range fx.Identities {
		if (id.Phone == "") == (id.Email == "") {
			return fmt.Errorf("handler: fixtures identity needs exactly one of phone or email")
		}
		for _, jid := range id.Journals {
			if !journals[jid] {
				return fmt.Errorf("handler: fixtures identity references unknown journal %q", jid)
			}
		}
	}
	for _, imp := range fx.Impersonations {
		if imp.Token == "" || !journals[imp.Journal] {
			return fmt.Errorf("handler: fixtures impersonation %q needs a token and a known journal", imp.Token)
		}
	}
	return nil
}
