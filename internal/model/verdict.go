package model

// Verdict is the per-request outcome of the authentication check.
type Verdict int

const (
	VerdictUnauthenticated Verdict = iota
	VerdictAuthenticated
	// VerdictNeedsRefresh: access expired, refresh token and session still valid.
	VerdictNeedsRefresh
	// VerdictRejected: refresh token or session invalid or mismatched.
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictAuthenticated:
		return "authenticated"
	case VerdictNeedsRefresh:
		return "needs_refresh"
	case VerdictRejected:
		return "rejected"
	default:
		return "unauthenticated"
	}
}
