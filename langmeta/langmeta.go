// Package langmeta resolves language codes used by Lokalise to the English
// names given to translation providers, and short codes to the locale codes
// Lokalise expects.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes one supported language.
type Meta struct {
	Name         string `yaml:"name"`
	LokaliseCode string `yaml:"lokalise_code"`
}

// Registry contains the languages the project translates into. Codes not
// listed here are still resolved through CLDR display names.
var Registry = map[string]Meta{
	"en":    {Name: "English", LokaliseCode: "en"},
	"de":    {Name: "German", LokaliseCode: "de"},
	"fr":    {Name: "French", LokaliseCode: "fr"},
	"it":    {Name: "Italian", LokaliseCode: "it"},
	"pl":    {Name: "Polish", LokaliseCode: "pl"},
	"sv":    {Name: "Swedish", LokaliseCode: "sv"},
	"nb":    {Name: "Norwegian Bokmål", LokaliseCode: "nb"},
	"da":    {Name: "Danish", LokaliseCode: "da"},
	"fi":    {Name: "Finnish", LokaliseCode: "fi"},
	"lt_LT": {Name: "Lithuanian", LokaliseCode: "lt_LT"},
	"lv_LV": {Name: "Latvian", LokaliseCode: "lv_LV"},
	"et_EE": {Name: "Estonian", LokaliseCode: "et_EE"},
	"tr_TR": {Name: "Turkish", LokaliseCode: "tr_TR"},
	"ar":    {Name: "Arabic", LokaliseCode: "ar"},
	"el":    {Name: "Greek", LokaliseCode: "el"},
}

// Merge adds or replaces entries, e.g. from the project configuration.
func Merge(extra map[string]Meta) {
	for code, m := range extra {
		if m.LokaliseCode == "" {
			m.LokaliseCode = code
		}
		Registry[code] = m
	}
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "-", "_")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "_")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "_")
}

func lookup(lang string) (Meta, bool) {
	if m, ok := Registry[lang]; ok {
		return m, true
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m, true
	}
	base := strings.SplitN(normalized, "_", 2)[0]
	if m, ok := Registry[base]; ok {
		return m, true
	}
	// "lt" -> "lt_LT"
	for code, m := range Registry {
		if strings.SplitN(code, "_", 2)[0] == base {
			return m, true
		}
	}
	return Meta{}, false
}

// Resolve returns best-effort metadata. Unknown codes fall back to the
// CLDR English display name, then to the code itself.
func Resolve(lang string) Meta {
	if m, ok := lookup(lang); ok {
		return m
	}
	code := canonicalize(lang)
	name := lang
	if tag, err := language.Parse(strings.ReplaceAll(code, "_", "-")); err == nil {
		if n := display.English.Languages().Name(tag); n != "" {
			name = n
		}
	}
	return Meta{Name: name, LokaliseCode: code}
}

// Name returns the English language name for lang.
func Name(lang string) string {
	return Resolve(lang).Name
}

// LokaliseCode maps a short or differently cased code to the Lokalise one.
func LokaliseCode(lang string) string {
	return Resolve(lang).LokaliseCode
}
