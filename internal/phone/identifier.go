package phone

import (
	"errors"
	"net/mail"
	"strings"
)

// Country is one entry of the dial-code picker.
type Country struct {
	ISO      string
	DialCode string
	Name     string
}

// Countries lists the selectable dial codes in picker order.
var Countries = []Country{
	{ISO: "DK", DialCode: "45", Name: "Denmark"},
	{ISO: "SE", DialCode: "46", Name: "Sweden"},
	{ISO: "NO", DialCode: "47", Name: "Norway"},
	{ISO: "DE", DialCode: "49", Name: "Germany"},
	{ISO: "IE", DialCode: "353", Name: "Ireland"},
	{ISO: "NL", DialCode: "31", Name: "Netherlands"},
	{ISO: "FI", DialCode: "358", Name: "Finland"},
	{ISO: "UK", DialCode: "44", Name: "United Kingdom"},
}

// LookupCountry finds a catalogue entry by ISO-2 code. GB is accepted as an
// alias for UK.
func LookupCountry(iso string) (Country, bool) {
	iso = strings.ToUpper(strings.TrimSpace(iso))
	if iso == "GB" {
		iso = "UK"
	}
	for _, c := range Countries {
		if c.ISO == iso {
			return c, true
		}
	}
	return Country{}, false
}

// PrepareLocal prefixes a locally typed number with the country's dial code
// unless it already carries "+", "00" or the dial code itself. The result is
// meant to be passed to Normalize.
func PrepareLocal(raw, countryISO string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "00") {
		return trimmed
	}
	c, ok := LookupCountry(countryISO)
	if !ok {
		return trimmed
	}
	digits := onlyDigits(trimmed)
	if digits == "" || strings.HasPrefix(digits, c.DialCode) {
		return trimmed
	}
	// National trunk zeros are dropped once the dial code is attached.
	if rule, ok := rules[c.ISO]; ok && rule.trunkZero {
		digits = strings.TrimPrefix(digits, "0")
	}
	return "+" + c.DialCode + digits
}

// ErrInvalidEmail is returned by NormalizeEmail for values that do not parse as
// a bare address.
var ErrInvalidEmail = errors.New("phone: invalid email address")

// NormalizeEmail lowercases and trims an email identifier.
func NormalizeEmail(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || !strings.Contains(v[strings.LastIndex(v, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return v, nil
}
