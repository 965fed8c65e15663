// Package normalizer turns raw upstream push frames into typed domain
// events, exactly once per unique upstream id. Malformed frames are
// logged and dropped at this boundary; they never reach subscribers
// and never take the read loop down.
package normalizer

import (
	"encoding/json"
	"log"
	"time"

	"github.com/penzjakof/anchat-relay/internal/events"
	"github.com/penzjakof/anchat-relay/internal/models"
)

// Upstream push frame type discriminators.
const (
	frameMessageNew         = "chat_message_new"
	frameMessageRead        = "chat_message_read"
	frameEmailNew           = "email_new"
	frameDialogLimitChanged = "dialog_limit_changed"
)

type pushFrame struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// messageData is the payload shape shared by message frames. The
// upstream labels the sides "from"/"to" relative to the sender, not
// relative to the managed account.
type messageData struct {
	MessageID  string `json:"idMessage"`
	FromUserID string `json:"idUserFrom"`
	ToUserID   string `json:"idUserTo"`
	DateCreated string `json:"dateCreated"`
}

type emailData struct {
	EmailID     string `json:"idEmail"`
	FromUserID  string `json:"idUserFrom"`
	ToUserID    string `json:"idUserTo"`
	DateCreated string `json:"dateCreated"`
}

type dialogLimitData struct {
	UserID         string `json:"idUser"`
	InterlocutorID string `json:"idInterlocutor"`
	LimitLeft      int    `json:"limitLeft"`
}

// Normalizer parses frames, deduplicates by upstream id, and publishes
// domain events on the bus.
type Normalizer struct {
	bus     *events.Bus
	logger  *log.Logger
	metrics *normalizerMetrics
	now     func() time.Time

	messages *Window
	emails   *Window
}

// Option applies configuration to the normalizer.
type Option func(*Normalizer)

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(n *Normalizer) {
		n.logger = l
	}
}

// WithClock overrides the time source for dedup windows and event
// timestamps. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a normalizer publishing to the given bus, with separate
// dedup windows for message ids and email ids.
func New(bus *events.Bus, dedupTTL time.Duration, opts ...Option) *Normalizer {
	n := &Normalizer{
		bus:     bus,
		logger:  log.Default(),
		metrics: globalNormalizerMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.messages = NewWindow(dedupTTL, n.now)
	n.emails = NewWindow(dedupTTL, n.now)
	return n
}

// HandleFrame parses one raw inbound frame from an account's socket.
// Satisfies relay.FrameHandler.
func (n *Normalizer) HandleFrame(accountID string, raw []byte) {
	n.metrics.framesReceived.Inc()

	var frame pushFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		n.metrics.framesDropped.Inc()
		n.logger.Printf("[normalizer] account %s: unparseable frame dropped: %v", accountID, err)
		return
	}

	switch frame.Type {
	case frameMessageNew:
		n.handleMessage(accountID, frame, models.EventMessageNew)
	case frameMessageRead:
		n.handleMessage(accountID, frame, models.EventMessageRead)
	case frameEmailNew:
		n.handleEmail(accountID, frame)
	case frameDialogLimitChanged:
		n.handleDialogLimit(accountID, frame)
	default:
		// Unknown types still surface, as Generic, so nothing is
		// silently lost.
		n.publish(models.DomainEvent{
			Type:      models.EventGeneric,
			AccountID: accountID,
			Timestamp: n.now(),
			Payload:   frame.Data,
		})
	}
}

func (n *Normalizer) handleMessage(accountID string, frame pushFrame, eventType models.EventType) {
	var data messageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		n.metrics.framesDropped.Inc()
		n.logger.Printf("[normalizer] account %s: bad %s payload dropped: %v", accountID, frame.Type, err)
		return
	}

	// New messages dedup on the upstream message id; read receipts
	// carry no naturally unique id and pass through.
	if eventType == models.EventMessageNew && data.MessageID != "" {
		if !n.messages.FirstSeen(data.MessageID) {
			n.metrics.framesDeduped.Inc()
			return
		}
	}

	n.publish(models.DomainEvent{
		Type:           eventType,
		AccountID:      accountID,
		InterlocutorID: otherParty(accountID, data.FromUserID, data.ToUserID),
		MessageID:      data.MessageID,
		Timestamp:      n.parseTime(data.DateCreated),
		Payload:        frame.Data,
	})
}

func (n *Normalizer) handleEmail(accountID string, frame pushFrame) {
	var data emailData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		n.metrics.framesDropped.Inc()
		n.logger.Printf("[normalizer] account %s: bad email payload dropped: %v", accountID, err)
		return
	}

	if data.EmailID != "" && !n.emails.FirstSeen(data.EmailID) {
		n.metrics.framesDeduped.Inc()
		return
	}

	n.publish(models.DomainEvent{
		Type:           models.EventEmailNew,
		AccountID:      accountID,
		InterlocutorID: otherParty(accountID, data.FromUserID, data.ToUserID),
		EmailID:        data.EmailID,
		Timestamp:      n.parseTime(data.DateCreated),
		Payload:        frame.Data,
	})
}

func (n *Normalizer) handleDialogLimit(accountID string, frame pushFrame) {
	var data dialogLimitData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		n.metrics.framesDropped.Inc()
		n.logger.Printf("[normalizer] account %s: bad dialog limit payload dropped: %v", accountID, err)
		return
	}

	n.publish(models.DomainEvent{
		Type:           models.EventDialogLimitChanged,
		AccountID:      accountID,
		InterlocutorID: data.InterlocutorID,
		Timestamp:      n.now(),
		Payload:        frame.Data,
	})
}

func (n *Normalizer) publish(e models.DomainEvent) {
	if e.InterlocutorID != "" {
		e.DialogID = models.DialogKey(e.AccountID, e.InterlocutorID)
	}
	n.metrics.eventsPublished.WithLabelValues(string(e.Type)).Inc()
	n.bus.Publish(e)
}

func (n *Normalizer) parseTime(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return n.now()
}

// otherParty picks the dialog side that is not the managed account,
// regardless of which side the upstream called "from" or "to".
func otherParty(accountID, from, to string) string {
	if from == accountID {
		return to
	}
	return from
}
