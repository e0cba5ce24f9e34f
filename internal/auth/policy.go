package auth

import (
	"net/http"
	"strings"
)

// Policy decides which requests require an authenticated caller.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiresAuth reports whether the request needs a caller identity. All
// API routes do. Slash and sweep are open to any owner once their
// windows pass, but the caller identity still comes from the token.
func (p Policy) RequiresAuth(r *http.Request) bool {
	if r == nil {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
