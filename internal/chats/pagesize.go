package chats

import "github.com/penzjakof/anchat-relay/internal/config"

// pageSizeFor returns the per-account page size for a caller with the
// given number of accessible accounts. The more accounts, the smaller
// each account's page, so the combined response stays bounded. The
// function is deterministic and non-increasing in the account count.
func pageSizeFor(accountCount int, cfg config.ChatsConfig) int {
	switch {
	case accountCount > 15:
		return cfg.PageSizeOver15
	case accountCount > 10:
		return cfg.PageSizeOver10
	default:
		return cfg.PageSizeDefault
	}
}
