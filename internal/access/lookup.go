// Package access defines the authorization contract against the
// dashboard: which managed accounts a caller may operate. The real
// lookup hits the dashboard's relational store and is out of scope
// here; the relay consumes the interface and caches results briefly.
package access

import (
	"context"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// Lookup resolves the managed accounts a caller is allowed to use.
type Lookup interface {
	AccessibleAccounts(ctx context.Context, caller models.CallerContext) ([]models.Account, error)
}
