package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// MaxIDLength bounds entity ids accepted from requests.
const MaxIDLength = 64

// ValidID reports whether id is a non-empty ASCII token of letters, digits,
// hyphens and underscores no longer than MaxIDLength.
func ValidID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for _, r := range id {
		if r == '-' || r == '_' {
			continue
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// CanonicalLang parses a BCP 47 tag and returns its canonical form, so "EN-us"
// becomes "en-US".
func CanonicalLang(tag string) (string, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// NormalizeLang returns the canonical form of tag, or the trimmed input when
// it does not parse. Validation reports the parse failure later.
func NormalizeLang(tag string) string {
	if canonical, err := CanonicalLang(tag); err == nil {
		return canonical
	}
	return strings.TrimSpace(tag)
}
