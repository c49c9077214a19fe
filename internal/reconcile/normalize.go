// Package reconcile compares provider-reported citations against a location's
// authoritative NAP record and classifies each listing's health.
package reconcile

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizePhone reduces a phone number to its digits. An 11-digit number
// with a leading "1" loses the US country code. Any other length is returned
// as-is; no validation or padding is applied.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// NormalizeText lowercases text, drops everything except ASCII word characters
// and whitespace, collapses whitespace runs to one space and trims the ends.
// Whitespace is the ECMAScript set: ASCII space, tab, line breaks, NBSP, the
// Unicode Zs separators, U+2028, U+2029 and U+FEFF.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	// cases.Caser is stateful, so one per call.
	lowered := cases.Lower(language.Und).String(text)
	stripped := strings.Map(func(r rune) rune {
		switch {
		case isWordRune(r):
			return r
		case isSpaceRune(r):
			return ' '
		}
		return -1
	}, lowered)
	return strings.Join(strings.Fields(stripped), " ")
}

func isSpaceRune(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r',
		'\u00a0', '\u1680', '\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
