// Package userkey normalizes and validates the email-shaped user keys that
// identify clients. The same predicate is used by the websocket auth path and
// the REST login path so the two can never disagree about what a valid key is.
package userkey

import "strings"

// Normalize trims surrounding whitespace and lowercases the key. User keys are
// compared bytewise after normalization.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Valid reports whether a normalized key is well formed: exactly one "@", a
// non-empty local part, and a domain with an interior dot.
func Valid(key string) bool {
	at := strings.IndexByte(key, '@')
	if at <= 0 || at != strings.LastIndexByte(key, '@') {
		return false
	}
	domain := key[at+1:]
	dot := strings.IndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return !strings.ContainsAny(key, " \t\r\n")
}
