// Package gateway rebroadcasts normalized relay events to connected
// dashboard clients over websockets. Fan-out is room-scoped: one room
// per managed account (everyone authorized to see that account) and
// one per dialog (clients actively viewing that conversation), so one
// tenant's traffic never reaches another tenant's operators.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/penzjakof/anchat-relay/internal/access"
	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/events"
	"github.com/penzjakof/anchat-relay/internal/models"
)

// Join failure modes, distinguished so the client wire error can carry
// the right code.
var (
	ErrBadDialogID   = errors.New("malformed dialog id")
	ErrNotAuthorized = errors.New("caller not authorized for dialog")
)

// AccountEnsurer is the slice of the relay manager the hub needs: a
// join signals that the dialog's account should be actively connected.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, accountID string) error
}

// envelope is the wire shape of every message sent to a client.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// eventSummary is the presence-style projection broadcast to account
// rooms. It deliberately omits the raw payload: clients not viewing
// the dialog only learn that something happened, not what.
type eventSummary struct {
	Type           models.EventType `json:"type"`
	AccountID      string           `json:"accountId"`
	InterlocutorID string           `json:"interlocutorId,omitempty"`
	DialogID       string           `json:"dialogId,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Hub owns all connected dashboard clients and their room memberships.
type Hub struct {
	cfg     config.GatewayConfig
	lookup  access.Lookup
	relay   AccountEnsurer
	logger  *log.Logger
	metrics *gatewayMetrics

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// Option applies configuration to the hub.
type Option func(*Hub)

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// NewHub creates an empty hub.
func NewHub(cfg config.GatewayConfig, lookup access.Lookup, relay AccountEnsurer, opts ...Option) *Hub {
	h := &Hub{
		cfg:     cfg,
		lookup:  lookup,
		relay:   relay,
		logger:  log.Default(),
		metrics: globalGatewayMetrics(),
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach subscribes the hub to the bus. Called once at startup.
func (h *Hub) Attach(bus *events.Bus) {
	bus.SubscribeAll(h.HandleEvent)
}

func accountRoom(accountID string) string {
	return "acct:" + accountID
}

func dialogRoom(dialogID string) string {
	return "dialog:" + dialogID
}

// Register admits an authenticated caller's connection. The caller's
// accessible accounts are resolved once here and pin both the account
// rooms the client is placed in and the dialogs it may later join.
func (h *Hub) Register(ctx context.Context, caller models.CallerContext, conn Conn) (*Client, error) {
	if caller.CallerCode == "" {
		return nil, fmt.Errorf("missing caller identity")
	}

	accounts, err := h.lookup.AccessibleAccounts(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("resolve accessible accounts: %w", err)
	}

	client := &Client{
		ID:       uuid.NewString(),
		caller:   caller,
		accounts: make(map[string]struct{}, len(accounts)),
		conn:     conn,
		send:     make(chan []byte, h.cfg.ClientSendBuffer),
		hub:      h,
	}
	for _, acc := range accounts {
		client.accounts[acc.ID] = struct{}{}
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	for id := range client.accounts {
		h.joinRoomLocked(accountRoom(id), client)
	}
	h.mu.Unlock()

	h.metrics.connectedClients.Inc()
	return client, nil
}

// Join places the client in a dialog's room and signals the relay to
// keep the dialog's account connected. Idempotent. The caller must be
// authorized for the dialog's account; anything else is an explicit
// denial, never a silent ignore.
func (h *Hub) Join(ctx context.Context, client *Client, dialogID string) (string, error) {
	accountID := client.accountFor(dialogID)
	if accountID == "" {
		if !strings.Contains(dialogID, "-") {
			return "", fmt.Errorf("%w: %q", ErrBadDialogID, dialogID)
		}
		return "", fmt.Errorf("%w: caller %s, dialog %q", ErrNotAuthorized, client.caller.CallerCode, dialogID)
	}

	room := dialogRoom(dialogID)
	h.mu.Lock()
	h.joinRoomLocked(room, client)
	h.mu.Unlock()

	if err := h.relay.EnsureAccount(ctx, accountID); err != nil {
		// The join itself stands; the account will connect on the
		// next sweep instead.
		h.logger.Printf("[gateway] join %s: ensure account %s: %v", dialogID, accountID, err)
	}
	return room, nil
}

// Leave removes the client from a dialog's room. Idempotent.
func (h *Hub) Leave(client *Client, dialogID string) {
	room := dialogRoom(dialogID)
	h.mu.Lock()
	h.leaveRoomLocked(room, client)
	h.mu.Unlock()
}

// HandleEvent fans one relay event out to its audiences.
func (h *Hub) HandleEvent(e models.DomainEvent) {
	summary, err := json.Marshal(envelope{Event: string(e.Type), Data: eventSummary{
		Type:           e.Type,
		AccountID:      e.AccountID,
		InterlocutorID: e.InterlocutorID,
		DialogID:       e.DialogID,
		Timestamp:      e.Timestamp,
	}})
	if err != nil {
		h.logger.Printf("[gateway] encode %s summary: %v", e.Type, err)
		return
	}
	h.broadcast(accountRoom(e.AccountID), summary, "account")

	dk := e.DialogKey()
	if dk == "" {
		return
	}
	room := dialogRoom(dk)
	// Serializing the full event is pointless when nobody is viewing
	// the dialog, so membership is checked first.
	if h.roomSize(room) == 0 {
		return
	}
	full, err := json.Marshal(envelope{Event: string(e.Type), Data: e})
	if err != nil {
		h.logger.Printf("[gateway] encode %s event: %v", e.Type, err)
		return
	}
	h.broadcast(room, full, "dialog")
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) roomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) broadcast(room string, payload []byte, kind string) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return
	}
	h.metrics.broadcasts.WithLabelValues(kind).Inc()

	for _, c := range members {
		if !c.trySend(payload) {
			// A client that cannot drain its buffer is dropped rather
			// than allowed to stall the fan-out path.
			h.metrics.droppedClients.Inc()
			h.logger.Printf("[gateway] client %s send buffer full, dropping", c.ID)
			go c.close()
		}
	}
}

func (h *Hub) joinRoomLocked(room string, client *Client) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
}

func (h *Hub) leaveRoomLocked(room string, client *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// unregister removes the client from every room and the client set.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for room := range h.rooms {
		h.leaveRoomLocked(room, client)
	}
	h.mu.Unlock()

	h.metrics.connectedClients.Dec()
}
