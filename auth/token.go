// Package auth implements LSNP capability tokens: opaque "user|expiry|scope"
// strings attached to scoped messages. Validation is pure and stateless; a
// failed check drops the message silently, there is never an error reply on
// the wire.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Scope is a capability tag restricting which message types a token
// authorizes. Scopes match exactly; there is no hierarchy.
type Scope string

// Capability scopes carried by LSNP tokens.
const (
	ScopeBroadcast Scope = "broadcast"
	ScopeChat      Scope = "chat"
	ScopeFollow    Scope = "follow"
	ScopeFile      Scope = "file"
	ScopeGroup     Scope = "group"
	ScopeGame      Scope = "game"
)

// Result is the outcome of validating a token against a required scope.
type Result int

const (
	// Ok means the token parsed, has not expired, and matches the scope.
	Ok Result = iota

	// Malformed means the token does not parse as user|expiry|scope.
	Malformed

	// Expired means the token's expiry is not in the future.
	Expired

	// ScopeMismatch means the token carries a different scope than required.
	ScopeMismatch
)

// String returns a human-readable name for the validation result.
func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case Malformed:
		return "malformed"
	case Expired:
		return "expired"
	case ScopeMismatch:
		return "scope mismatch"
	default:
		return "unknown"
	}
}

// ErrMalformedToken indicates a token that does not parse.
var ErrMalformedToken = errors.New("malformed token")

// Token is the parsed form of a capability token.
type Token struct {
	UserID string
	Expiry int64
	Scope  Scope
}

// Mint renders a token for userID with the given scope, valid for ttl
// seconds from now.
func Mint(userID string, scope Scope, now, ttl int64) string {
	return fmt.Sprintf("%s|%d|%s", userID, now+ttl, scope)
}

// Parse splits a raw token into its parts without judging expiry or scope.
func Parse(raw string) (Token, error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("%w: want 3 parts, got %d", ErrMalformedToken, len(parts))
	}
	if parts[0] == "" || parts[2] == "" {
		return Token{}, fmt.Errorf("%w: empty user or scope", ErrMalformedToken)
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad expiry %q", ErrMalformedToken, parts[1])
	}
	return Token{UserID: parts[0], Expiry: expiry, Scope: Scope(parts[2])}, nil
}

// Validate checks a raw token against a required scope at the given time.
// The expiry comparison is inclusive: a token expiring exactly at now is
// already expired.
func Validate(raw string, required Scope, now int64) Result {
	tok, err := Parse(raw)
	if err != nil {
		return Malformed
	}
	if now >= tok.Expiry {
		return Expired
	}
	if tok.Scope != required {
		return ScopeMismatch
	}
	return Ok
}
