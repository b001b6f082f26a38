// Package phone canonicalizes user-entered phone numbers and email identifiers
// before they are sent to the OTP endpoints.
package phone

import (
	"strings"
)

// Result is the outcome of normalizing a phone number. It is always returned,
// even for unusable input; callers inspect OK and Warning.
type Result struct {
	Digits  string
	OK      bool
	Warning string
	E164    string
}

// rule describes one country's canonical prefix handling.
type rule struct {
	code string
	// doubledMin is the minimum length at which a doubled country code is
	// considered accidental and collapsed. A number that is already valid
	// with the repeated digits is never collapsed.
	doubledMin int
	// keepPrefixed stops prefixing once the digits start with the country
	// code. Without it only a bare national number gets the code.
	keepPrefixed bool
	// trunkZero replaces a leading national 0 with the country code.
	trunkZero bool
	// bareMin and bareMax bound the length of a national number that arrives
	// with no prefix at all.
	bareMin, bareMax int
	// totalMin and totalMax bound the valid length including the country code.
	totalMin, totalMax int
	warning            string
}

var rules = map[string]rule{
	"DK": {
		code: "45", doubledMin: 12,
		bareMin: 8, bareMax: 8,
		totalMin: 10, totalMax: 10,
		warning: "DK sanity check failed (expect 45 + 8 digits)",
	},
	"SE": {
		code: "46", doubledMin: 12, keepPrefixed: true, trunkZero: true,
		bareMin: 8, bareMax: 10,
		totalMin: 10, totalMax: 12,
		warning: "SE sanity check failed (expect starts with 46 and reasonable length)",
	},
	"IE": {
		code: "353", doubledMin: 16, keepPrefixed: true, trunkZero: true,
		bareMin: 9, bareMax: 10,
		totalMin: 12, totalMax: 13,
		warning: "IE sanity check failed (expect starts with 353 and reasonable length)",
	},
}

// Normalize canonicalizes raw for the given ISO-2 country. Unknown countries
// accept any non-empty digit string. Input written with "+" or "00" already
// carries its country code, so no national prefix is added to it.
func Normalize(raw, countryISO string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Warning: "Blank input"}
	}
	digits := onlyDigits(raw)
	if digits == "" {
		return Result{Warning: "No digits found"}
	}

	r, ok := rules[strings.ToUpper(strings.TrimSpace(countryISO))]
	if !ok {
		return Result{Digits: digits, OK: true, E164: "+" + digits}
	}

	international := strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "00")
	digits = r.canonical(digits, international)
	res := Result{Digits: digits, E164: "+" + digits}
	if strings.HasPrefix(digits, r.code) && len(digits) >= r.totalMin && len(digits) <= r.totalMax {
		res.OK = true
	} else {
		res.Warning = r.warning
	}
	return res
}

func (r rule) canonical(digits string, international bool) string {
	intl := "00" + r.code
	bare := func(d string) bool { return !international && len(d) >= r.bareMin && len(d) <= r.bareMax }

	switch {
	case strings.HasPrefix(digits, intl):
		digits = r.code + digits[len(intl):]
	case !r.keepPrefixed:
		if bare(digits) {
			digits = r.code + digits
		}
	case strings.HasPrefix(digits, r.code):
	case r.trunkZero && !international && strings.HasPrefix(digits, "0") && len(digits) >= 2:
		digits = r.code + digits[1:]
	case bare(digits):
		digits = r.code + digits
	}
	for r.doubled(digits) {
		digits = digits[len(r.code):]
	}
	return digits
}

// doubled reports a repeated country code on a number too long to be valid.
func (r rule) doubled(digits string) bool {
	return strings.HasPrefix(digits, r.code+r.code) && len(digits) >= r.doubledMin && len(digits) > r.totalMax
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
