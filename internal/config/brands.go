package config

import (
	"slices"
	"strings"
)

// DefaultBrand is used when no brand is configured.
const DefaultBrand = "dk"

type profile struct {
	Name       string
	Market     string
	CountryISO string
	Lang       string
	ShowFAQ    bool
	ShowIntro  bool
}

var profiles = map[string]profile{
	"dk": {Name: "Din Familiejurist", Market: "DFJ_DK", CountryISO: "DK", Lang: "da", ShowFAQ: true, ShowIntro: true},
	"se": {Name: "Din Familjejurist", Market: "FA_SE", CountryISO: "SE", Lang: "sv", ShowFAQ: false, ShowIntro: true},
	"ie": {Name: "Heres Law", Market: "Ireland", CountryISO: "IE", Lang: "en", ShowFAQ: true, ShowIntro: false},
}

var brandByHost = map[string]string{
	"dok.dinfamiliejurist.dk": "dk",
	"dinfamiliejurist.dk":     "dk",
	"dok.dinfamiljejurist.se": "se",
	"dinfamiljejurist.se":     "se",
	"docs.hereslaw.ie":        "ie",
	"hereslaw.ie":             "ie",
}

// BrandForHost maps a portal hostname to its brand key, falling back to
// DefaultBrand.
func BrandForHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	if key, ok := brandByHost[host]; ok {
		return key
	}
	return DefaultBrand
}

// Brands lists the built-in brand keys.
func Brands() []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// KnownBrand reports whether key names a built-in profile.
func KnownBrand(key string) bool {
	_, ok := profiles[strings.ToLower(strings.TrimSpace(key))]
	return ok
}
