// Package addr normalizes and validates the exchange's trader addresses
// (Ethereum-style 0x-prefixed 20-byte hex addresses).
package addr

import (
	"fmt"
	"regexp"
	"strings"
)

var hexAddr = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Normalize lower-cases a trader address and validates its shape. It is the
// single point through which addresses enter the pipeline, so every stream,
// repository, and cache key agrees on one canonical form.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !hexAddr.MatchString(s) {
		return "", fmt.Errorf("addr: invalid address %q", raw)
	}
	return strings.ToLower(s), nil
}

// MustNormalize is Normalize but panics on error; intended for constants and tests.
func MustNormalize(raw string) string {
	s, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Valid reports whether raw is a well-formed address, without normalizing it.
func Valid(raw string) bool {
	return hexAddr.MatchString(strings.TrimSpace(raw))
}
