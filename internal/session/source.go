// Package session defines the contract against the dashboard's session
// store, which owns upstream authentication material per managed
// account. The production implementation lives in the dashboard
// monolith; the relay only consumes this interface.
package session

import (
	"context"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// Source supplies current authentication material for managed accounts.
type Source interface {
	// AllValid returns every account session whose auth material is
	// currently usable.
	AllValid(ctx context.Context) ([]models.AccountSession, error)
	// IsValid reports whether the given account still has usable auth
	// material.
	IsValid(ctx context.Context, accountID string) (bool, error)
}
