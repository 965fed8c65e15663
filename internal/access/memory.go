package access

import (
	"context"
	"sync"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// MemoryLookup is an in-memory Lookup used in tests and local runs.
// Owners see every account in their tenant; operators see only the
// accounts granted to their caller code.
type MemoryLookup struct {
	mu       sync.RWMutex
	byTenant map[string][]models.Account
	byCaller map[string][]models.Account
}

// NewMemoryLookup creates an empty in-memory authorization lookup.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{
		byTenant: make(map[string][]models.Account),
		byCaller: make(map[string][]models.Account),
	}
}

// GrantTenant registers an account as visible to every owner of a tenant.
func (m *MemoryLookup) GrantTenant(tenantID string, acc models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTenant[tenantID] = append(m.byTenant[tenantID], acc)
}

// GrantCaller registers an account as visible to one specific caller.
func (m *MemoryLookup) GrantCaller(tenantID, callerCode string, acc models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + ":" + callerCode
	m.byCaller[key] = append(m.byCaller[key], acc)
}

// AccessibleAccounts returns the caller's visible accounts.
func (m *MemoryLookup) AccessibleAccounts(ctx context.Context, caller models.CallerContext) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var src []models.Account
	if caller.Role == models.RoleOwner {
		src = m.byTenant[caller.TenantID]
	} else {
		src = m.byCaller[caller.CacheKey()]
	}

	out := make([]models.Account, len(src))
	copy(out, src)
	return out, nil
}
