package models

import "time"

// Account is one managed upstream identity the dashboard operates on
// behalf of. The authoritative record lives in the dashboard monolith;
// the relay only ever sees this projection.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	TenantID    string `json:"tenantId"`
}

// AccountSession carries the authentication material needed to open an
// upstream connection for one account. The session source owns the
// record; the relay holds a read-only copy for the lifetime of a single
// connection attempt.
type AccountSession struct {
	AccountID string    `json:"accountId"`
	AuthBlob  string    `json:"authBlob"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Usable reports whether the session may still be used to open a new
// connection. A session past its expiry must never be dialed with.
func (s AccountSession) Usable(now time.Time) bool {
	return s.AccountID != "" && s.AuthBlob != "" && now.Before(s.ExpiresAt)
}

// CallerContext identifies the dashboard user a request is made on
// behalf of. Extracted from the auth token by the middleware.
type CallerContext struct {
	TenantID   string `json:"tenantId"`
	CallerCode string `json:"callerCode"`
	Role       string `json:"role"`
}

// CacheKey is the key under which the caller's accessible-accounts set
// is cached.
func (c CallerContext) CacheKey() string {
	return c.TenantID + ":" + c.CallerCode
}

// Caller roles.
const (
	RoleOwner    = "owner"
	RoleOperator = "operator"
)
