package cloudfiles

import "time"

// TokenLifetime is how long the service honors a token after it was issued.
const TokenLifetime = 24 * time.Hour

// Session is one authenticated view of the account: the token plus the
// endpoints the login exchange returned. Sessions are immutable values; the
// connection swaps whole sessions atomically so readers never observe a
// token without its storage endpoint.
type Session struct {
	AuthToken        string
	StorageURL       string
	CDNManagementURL string
	AuthenticatedAt  time.Time
}

// IsValid reports whether the session can be used at now. A token issued
// exactly TokenLifetime ago is already expired.
func (s Session) IsValid(now time.Time) bool {
	if s.AuthToken == "" || s.StorageURL == "" || s.AuthenticatedAt.IsZero() {
		return false
	}

	return now.Sub(s.AuthenticatedAt) < TokenLifetime
}

// Expiry returns the instant the session stops being valid.
func (s Session) Expiry() time.Time {
	return s.AuthenticatedAt.Add(TokenLifetime)
}

func (s Session) endpoints() Endpoints {
	return Endpoints{Storage: s.StorageURL, CDN: s.CDNManagementURL}
}
