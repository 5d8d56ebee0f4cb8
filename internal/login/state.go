package login

import (
	"errors"
	"strings"

	"github.com/evecore/evecore/internal/security/token"
	"github.com/evecore/evecore/internal/session"
)

// The state value is "<variant name><sep><random>", so the callback can
// recover the initiating variant from the value itself before touching the
// session.
const statePrefixSeparator = "*"

const stateRandomBytes = 16

// ErrStateMismatch is the single failure class for a missing, tampered, or
// replayed state value.
var ErrStateMismatch = errors.New("login: state mismatch")

// IssueState generates the CSRF state for a variant and stores it in the
// session. The returned value goes into the provider's authorize URL.
func IssueState(sess *session.Session, variant string) (string, error) {
	random, err := token.GenerateOpaque(stateRandomBytes)
	if err != nil {
		return "", err
	}
	state := StatePrefix(variant) + random
	if err := sess.Set(session.KeyAuthState, state); err != nil {
		return "", err
	}
	return state, nil
}

// VerifyState pops the stored state (single use: deleted whether valid or
// not, so a value can never be replayed), compares it with the received
// one, and returns the variant name recovered from the prefix.
func VerifyState(sess *session.Session, received string) (string, error) {
	stored := sess.GetString(session.KeyAuthState)
	sess.Delete(session.KeyAuthState)

	if stored == "" || received == "" || stored != received {
		return "", ErrStateMismatch
	}
	name := VariantFromState(stored)
	if name == "" {
		return "", ErrStateMismatch
	}
	return name, nil
}

// StatePrefix returns the state prefix for a variant name.
func StatePrefix(variant string) string {
	return variant + statePrefixSeparator
}

// VariantFromState extracts the variant name from a state value, or ""
// when the value has no prefix.
func VariantFromState(state string) string {
	i := strings.Index(state, statePrefixSeparator)
	if i <= 0 {
		return ""
	}
	return state[:i]
}
