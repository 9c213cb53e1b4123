// Package token mints and screens the opaque strings embedded in share links.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

// tokenBytes gives 256 bits of entropy; enumeration is infeasible.
const tokenBytes = 32

// encodedLen is the base64url length of a minted token.
const encodedLen = 43

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Mint generates a cryptographically unguessable share token. Tokens are
// minted exactly once per record and never reused; uniqueness is enforced by
// the store, where a collision is treated as a hard error.
func Mint() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// WellFormed reports whether a string could have been minted here. Malformed
// input short-circuits to the same not-found outcome as an unknown token, so
// the check leaks nothing.
func WellFormed(tok string) bool {
	return len(tok) == encodedLen && tokenPattern.MatchString(tok)
}
