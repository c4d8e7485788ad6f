package services

import (
	"strings"
	"unicode"
)

// NormaliseName cleans a display name: characters other than ASCII
// letters, whitespace, apostrophes and hyphens are dropped, runs of
// whitespace collapse to one space, and the first letter of every word
// (including after ' and -) is upper-cased.
func NormaliseName(name string) string {
	kept := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '\'', r == '-':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, name)

	out := []byte(strings.Join(strings.Fields(kept), " "))
	for i, c := range out {
		if c >= 'a' && c <= 'z' && (i == 0 || !isASCIILetter(out[i-1])) {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// EmailDomain returns the lower-cased part after the last '@', or "" when
// there is none.
func EmailDomain(email string) string {
	i := strings.LastIndexByte(email, '@')
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// localPart returns the part of email before '@'.
func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
