// Package profiles resolves interlocutor metadata through whichever
// authenticated accounts can serve it. The platform only exposes a
// profile to accounts that share a dialog with it, so resolution walks
// the caller's account pool until every id is answered or the pool is
// exhausted.
package profiles

import (
	"context"
	"log"

	"github.com/penzjakof/anchat-relay/internal/models"
	"github.com/penzjakof/anchat-relay/internal/upstream"
)

// Resolver batches profile lookups across accounts.
type Resolver struct {
	client    upstream.Client
	chunkSize int
	logger    *log.Logger
}

// Option applies configuration to the resolver.
type Option func(*Resolver)

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver that queries the upstream in chunks
// of at most chunkSize ids.
func NewResolver(client upstream.Client, chunkSize int, opts ...Option) *Resolver {
	r := &Resolver{
		client:    client,
		chunkSize: chunkSize,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks ids up through a single account's session.
func (r *Resolver) Resolve(ctx context.Context, session models.AccountSession, ids []string) ([]models.Profile, error) {
	return r.client.ResolveProfiles(ctx, session, ids)
}

// ResolveAll resolves as many of the given ids as possible using the
// provided account sessions in order. Each account is sent bounded
// chunks of the still-unresolved ids; resolved ids drop out of the
// remaining set. A failed chunk is logged and skipped, it stops
// neither the next chunk nor the next account. The result maps only
// the ids that were actually resolved.
func (r *Resolver) ResolveAll(ctx context.Context, ids []string, sessions []models.AccountSession) map[string]models.Profile {
	resolved := make(map[string]models.Profile, len(ids))

	remaining := make(map[string]struct{}, len(ids))
	// order preserves the caller's id order across chunk boundaries.
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := remaining[id]; !dup && id != "" {
			remaining[id] = struct{}{}
			order = append(order, id)
		}
	}

	for _, sess := range sessions {
		if len(remaining) == 0 {
			break
		}
		pending := make([]string, 0, len(remaining))
		for _, id := range order {
			if _, ok := remaining[id]; ok {
				pending = append(pending, id)
			}
		}

		for start := 0; start < len(pending); start += r.chunkSize {
			end := start + r.chunkSize
			if end > len(pending) {
				end = len(pending)
			}
			chunk := pending[start:end]

			profiles, err := r.client.ResolveProfiles(ctx, sess, chunk)
			if err != nil {
				r.logger.Printf("[profiles] account %s: chunk of %d failed: %v", sess.AccountID, len(chunk), err)
				continue
			}
			for _, p := range profiles {
				if _, ok := remaining[p.ID]; !ok {
					continue
				}
				resolved[p.ID] = p
				delete(remaining, p.ID)
			}
		}
	}

	return resolved
}
