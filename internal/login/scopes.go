package login

import "errors"

// ErrScopeMismatch: granted scopes are not exactly the required set.
var ErrScopeMismatch = errors.New("login: scope mismatch")

// ScopesMatch compares granted against required with exact-set semantics:
// case-sensitive, order-independent, duplicates ignored. Both superset and
// subset grants fail; extra scopes mean the variant configuration is stale.
func ScopesMatch(granted, required []string) bool {
	want := make(map[string]bool, len(required))
	for _, s := range required {
		want[s] = true
	}
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	if len(want) != len(have) {
		return false
	}
	for s := range want {
		if !have[s] {
			return false
		}
	}
	return true
}
