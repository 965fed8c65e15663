// Package chats aggregates dialog listings across all accounts a
// caller may use: concurrent per-account fetches with isolated
// failures, a global recency sort, a combined pagination cursor, and
// interlocutor profile enrichment.
package chats

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/penzjakof/anchat-relay/internal/access"
	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/models"
	"github.com/penzjakof/anchat-relay/internal/profiles"
	"github.com/penzjakof/anchat-relay/internal/session"
	"github.com/penzjakof/anchat-relay/internal/upstream"
)

// Result is one aggregated dialog page.
type Result struct {
	Dialogs  []models.DialogSummary    `json:"dialogs"`
	Cursor   string                    `json:"cursor,omitempty"`
	HasMore  bool                      `json:"hasMore"`
	Profiles map[string]models.Profile `json:"profiles,omitempty"`
}

// Aggregator fans dialog fetches out across a caller's accounts.
type Aggregator struct {
	cfg      config.ChatsConfig
	lookup   access.Lookup
	source   session.Source
	client   upstream.Client
	resolver *profiles.Resolver
	cache    AccessCache
	logger   *log.Logger
	metrics  *chatsMetrics
}

// Option applies configuration to the aggregator.
type Option func(*Aggregator)

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// WithAccessCache overrides the default in-memory access cache, e.g.
// with the redis backend.
func WithAccessCache(c AccessCache) Option {
	return func(a *Aggregator) {
		a.cache = c
	}
}

// NewAggregator creates a dialog aggregator.
func NewAggregator(cfg config.ChatsConfig, lookup access.Lookup, source session.Source, client upstream.Client, resolver *profiles.Resolver, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg,
		lookup:   lookup,
		source:   source,
		client:   client,
		resolver: resolver,
		logger:   log.Default(),
		metrics:  globalChatsMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = NewMemoryAccessCache(cfg.AccessCacheTTL, nil)
	}
	return a
}

// accountFetch is the outcome of one account's isolated fetch.
type accountFetch struct {
	accountID string
	dialogs   []models.DialogSummary
	cursor    string
	hasMore   bool
	skipped   bool
	err       error
}

// FetchDialogs aggregates one page of dialogs across every account the
// caller may use. A single account failing its fetch is recorded and
// skipped; it never aborts the aggregate.
func (a *Aggregator) FetchDialogs(ctx context.Context, caller models.CallerContext, filters models.DialogFilters) (Result, error) {
	accounts, err := a.accessibleAccounts(ctx, caller)
	if err != nil {
		return Result{}, err
	}
	if len(accounts) == 0 {
		return Result{Dialogs: []models.DialogSummary{}}, nil
	}

	sessions, err := a.source.AllValid(ctx)
	if err != nil {
		return Result{}, err
	}
	sessionByAccount := make(map[string]models.AccountSession, len(sessions))
	for _, s := range sessions {
		sessionByAccount[s.AccountID] = s
	}

	pageSize := pageSizeFor(len(accounts), a.cfg)
	cursors := DecodeCursor(filters.Cursor)
	unanswered := filters.Unanswered()

	var wg sync.WaitGroup
	results := make([]accountFetch, len(accounts))
	extras := make([][]models.DialogSummary, len(accounts))
	orderedSessions := make([]models.AccountSession, 0, len(accounts))

	for i, acc := range accounts {
		sess, ok := sessionByAccount[acc.ID]
		if !ok {
			// No valid auth material; the account contributes nothing
			// and the rest of the aggregate proceeds.
			results[i] = accountFetch{accountID: acc.ID, skipped: true}
			continue
		}
		orderedSessions = append(orderedSessions, sess)

		wg.Add(1)
		go func(i int, sess models.AccountSession) {
			defer wg.Done()
			results[i] = a.fetchAccount(ctx, sess, filters.Criteria, cursors[sess.AccountID], pageSize)
		}(i, sess)

		if unanswered {
			wg.Add(1)
			go func(i int, sess models.AccountSession) {
				defer wg.Done()
				extras[i] = a.fetchUnanswered(ctx, sess)
			}(i, sess)
		}
	}
	wg.Wait()

	merged := make([]models.DialogSummary, 0, len(accounts)*pageSize)
	nextCursor := CombinedCursor{}
	hasMore := false
	for i, r := range results {
		if r.skipped {
			a.metrics.accountFetches.WithLabelValues("no_session").Inc()
			continue
		}
		if r.err != nil {
			a.metrics.accountFetches.WithLabelValues("failure").Inc()
			a.logger.Printf("[chats] account %s: dialog fetch failed: %v", r.accountID, r.err)
			continue
		}
		a.metrics.accountFetches.WithLabelValues("success").Inc()
		merged = append(merged, r.dialogs...)
		merged = append(merged, extras[i]...)
		if r.hasMore {
			hasMore = true
		}
		// Only cursors that advanced are carried into the next page.
		if r.cursor != "" && r.cursor != cursors[r.accountID] {
			nextCursor[r.accountID] = r.cursor
		}
	}

	sortByRecency(merged)

	result := Result{
		Dialogs: merged,
		Cursor:  nextCursor.Encode(),
		HasMore: hasMore,
	}

	if ids := interlocutorIDs(merged); len(ids) > 0 {
		result.Profiles = a.resolver.ResolveAll(ctx, ids, orderedSessions)
	}
	return result, nil
}

// accessibleAccounts resolves (and briefly caches) the accounts the
// caller may use.
func (a *Aggregator) accessibleAccounts(ctx context.Context, caller models.CallerContext) ([]models.Account, error) {
	key := caller.CacheKey()
	if accounts, ok := a.cache.Get(ctx, key); ok {
		a.metrics.accessCache.WithLabelValues("hit").Inc()
		return accounts, nil
	}
	a.metrics.accessCache.WithLabelValues("miss").Inc()

	accounts, err := a.lookup.AccessibleAccounts(ctx, caller)
	if err != nil {
		return nil, err
	}
	a.cache.Set(ctx, key, accounts)
	return accounts, nil
}

func (a *Aggregator) fetchAccount(ctx context.Context, sess models.AccountSession, criteria []string, cursor string, limit int) accountFetch {
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	page, err := a.client.ListDialogs(fetchCtx, sess, criteria, cursor, limit)
	if err != nil {
		return accountFetch{accountID: sess.AccountID, err: err}
	}

	dialogs := make([]models.DialogSummary, 0, len(page.Dialogs))
	for _, d := range page.Dialogs {
		dialogs = append(dialogs, models.DialogSummary{
			AccountID:          sess.AccountID,
			InterlocutorID:     d.InterlocutorID,
			LastMessagePreview: d.LastMessage,
			UnreadCount:        d.UnreadCount,
			UpdatedAt:          d.UpdatedAt,
		})
	}
	return accountFetch{
		accountID: sess.AccountID,
		dialogs:   dialogs,
		cursor:    page.Cursor,
		hasMore:   page.HasMore,
	}
}

// fetchUnanswered synthesizes pseudo-dialog entries from the account's
// unanswered feed, dropping flagged interlocutors. Failures are
// isolated exactly like regular fetches.
func (a *Aggregator) fetchUnanswered(ctx context.Context, sess models.AccountSession) []models.DialogSummary {
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	items, err := a.client.ListUnanswered(fetchCtx, sess)
	if err != nil {
		a.logger.Printf("[chats] account %s: unanswered fetch failed: %v", sess.AccountID, err)
		return nil
	}

	out := make([]models.DialogSummary, 0, len(items))
	for _, item := range items {
		if item.Flagged {
			continue
		}
		out = append(out, models.DialogSummary{
			AccountID:          sess.AccountID,
			InterlocutorID:     item.InterlocutorID,
			LastMessagePreview: item.LastMessage,
			Unanswered:         true,
			UpdatedAt:          item.UpdatedAt,
		})
	}
	return out
}

// sortByRecency orders dialogs newest first. A dialog with no
// timestamp sorts as oldest; ties keep their merge order.
func sortByRecency(dialogs []models.DialogSummary) {
	sort.SliceStable(dialogs, func(i, j int) bool {
		a, b := dialogs[i].UpdatedAt, dialogs[j].UpdatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func interlocutorIDs(dialogs []models.DialogSummary) []string {
	seen := make(map[string]struct{}, len(dialogs))
	ids := make([]string, 0, len(dialogs))
	for _, d := range dialogs {
		if d.InterlocutorID == "" {
			continue
		}
		if _, ok := seen[d.InterlocutorID]; ok {
			continue
		}
		seen[d.InterlocutorID] = struct{}{}
		ids = append(ids, d.InterlocutorID)
	}
	return ids
}
