package session

import (
	"crypto/sha256"
	"fmt"
	"path"
)

// PrivacyFilter applies masking and IP-based filtering to completed sessions
// before they leave the process through the live feed. The zero value is a
// no-op filter.
type PrivacyFilter struct {
	MaskIPs    bool
	AllowedIPs []string // glob patterns, e.g. "10.0.*"
	BlockedIPs []string
}

// IsAllowed reports whether a session for ip may be published. When
// AllowedIPs is non-empty, the IP must match at least one pattern. If it
// passes the allowlist, it must not match any BlockedIPs pattern.
func (f *PrivacyFilter) IsAllowed(ip string) bool {
	if len(f.AllowedIPs) > 0 {
		allowed := false
		for _, pattern := range f.AllowedIPs {
			if matchIP(pattern, ip) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, pattern := range f.BlockedIPs {
		if matchIP(pattern, ip) {
			return false
		}
	}

	return true
}

// matchIP treats a malformed pattern as a non-match.
func matchIP(pattern, ip string) bool {
	matched, err := path.Match(pattern, ip)
	return err == nil && matched
}

// Apply returns a copy of the record with the IP masked if configured.
func (f *PrivacyFilter) Apply(r Record) Record {
	if f.MaskIPs && r.IP != "" {
		r.IP = shortHash(r.IP)
	}
	return r
}

// FilterSlice returns a new slice containing only the allowed records, with
// masking applied to each. The original slice is not modified.
func (f *PrivacyFilter) FilterSlice(records []Record) []Record {
	result := make([]Record, 0, len(records))
	for _, r := range records {
		if !f.IsAllowed(r.IP) {
			continue
		}
		result = append(result, f.Apply(r))
	}
	return result
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskIPs && len(f.AllowedIPs) == 0 && len(f.BlockedIPs) == 0
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
