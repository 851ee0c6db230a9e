package config

import (
	"math"

	"github.com/legout/flowerpower/internal/domain"
)

// RetryPolicy governs how PipelineRunner retries a failed run (spec §3.1,
// §4.2). RetryExceptions names error *kinds* as strings — never native
// error values — so the policy survives a YAML round trip losslessly
// (spec §4.1 "Retry exceptions serialization").
type RetryPolicy struct {
	MaxRetries      int      `yaml:"max_retries" json:"max_retries"`
	RetryDelay      float64  `yaml:"retry_delay" json:"retry_delay"`
	JitterFactor    float64  `yaml:"jitter_factor" json:"jitter_factor"`
	RetryExceptions []string `yaml:"retry_exceptions,omitempty" json:"retry_exceptions,omitempty"`
}

// DefaultRetryPolicy returns the zero-retry default: run once, no delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      0,
		RetryDelay:      1,
		JitterFactor:    0,
		RetryExceptions: []string{"any"},
	}
}

// Validate enforces the non-negative, finite invariants from spec §3.1.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return domain.NewConfigValidationError("retry.max_retries", "must be >= 0")
	}
	if p.RetryDelay < 0 || math.IsNaN(p.RetryDelay) || math.IsInf(p.RetryDelay, 0) {
		return domain.NewConfigValidationError("retry.retry_delay", "must be a finite number >= 0")
	}
	if p.JitterFactor < 0 || math.IsNaN(p.JitterFactor) || math.IsInf(p.JitterFactor, 0) {
		return domain.NewConfigValidationError("retry.jitter_factor", "must be a finite number >= 0")
	}
	for _, k := range p.RetryExceptions {
		if !KnownErrorKinds[k] {
			return domain.NewConfigValidationError("retry.retry_exceptions", "unknown error kind "+k)
		}
	}
	return nil
}

// IsZero reports whether p is the unset zero value, used by RunConfig.Merge
// to decide whether an override's retry policy should replace the base's.
//
// This checks against Go's zero value, not DefaultRetryPolicy() (whose
// RetryDelay is 1, not 0): an override that explicitly asks for
// {max_retries: 0, retry_delay: 0, jitter_factor: 0} — "run once, no
// delay," a legitimate policy per spec §8.3 — is indistinguishable from
// "retry left unset" and is silently dropped in favor of the base's retry
// policy. There is no sentinel in the wire format to disambiguate the two,
// so this is a known, accepted imprecision rather than a bug fix target.
func (p RetryPolicy) IsZero() bool {
	return p.MaxRetries == 0 && p.RetryDelay == 0 && p.JitterFactor == 0 && len(p.RetryExceptions) == 0
}

// MatchesAny reports whether RetryExceptions is the "match any exception"
// default (spec §4.2).
func (p RetryPolicy) MatchesAny() bool {
	if len(p.RetryExceptions) == 0 {
		return true
	}
	for _, k := range p.RetryExceptions {
		if k == "any" {
			return true
		}
	}
	return false
}

// KnownErrorKinds is the registered table of error-kind names (spec §4.1);
// RetryPolicy.Validate rejects any RetryExceptions entry not listed here.
var KnownErrorKinds = map[string]bool{
	"any":                true,
	"ValueError":         true,
	"TimeoutError":       true,
	"ConnectionError":    true,
	"TemporaryFailure":   true,
	"RateLimitedError":   true,
	"UpstreamTimeout":    true,
	"UpstreamRateLimit":  true,
}

// Matches reports whether errKind (a registered error-kind name) should be
// retried under this policy.
func (p RetryPolicy) Matches(errKind string) bool {
	if p.MatchesAny() {
		return true
	}
	for _, k := range p.RetryExceptions {
		if k == errKind {
			return true
		}
	}
	return false
}
