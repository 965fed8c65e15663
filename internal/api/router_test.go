package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penzjakof/anchat-relay/internal/access"
	"github.com/penzjakof/anchat-relay/internal/auth"
	"github.com/penzjakof/anchat-relay/internal/chats"
	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/gateway"
	"github.com/penzjakof/anchat-relay/internal/models"
	"github.com/penzjakof/anchat-relay/internal/profiles"
	"github.com/penzjakof/anchat-relay/internal/relay"
	"github.com/penzjakof/anchat-relay/internal/session"
	"github.com/penzjakof/anchat-relay/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUpstream struct {
	dialogs map[string][]upstream.Dialog
	err     error
}

func (s *stubUpstream) ListDialogs(ctx context.Context, sess models.AccountSession, criteria []string, cursor string, limit int) (upstream.DialogsPage, error) {
	if s.err != nil {
		return upstream.DialogsPage{}, s.err
	}
	return upstream.DialogsPage{Dialogs: s.dialogs[sess.AccountID]}, nil
}

func (s *stubUpstream) ListUnanswered(ctx context.Context, sess models.AccountSession) ([]upstream.UnansweredItem, error) {
	return nil, nil
}

func (s *stubUpstream) ResolveProfiles(ctx context.Context, sess models.AccountSession, ids []string) ([]models.Profile, error) {
	out := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Profile{ID: id, Name: "profile " + id})
	}
	return out, nil
}

type apiFixture struct {
	router  *gin.Engine
	jwt     *auth.JWTManager
	lookup  *access.MemoryLookup
	source  *session.MemorySource
	manager *relay.Manager
}

type noopSocket struct {
	closed chan struct{}
}

func (s *noopSocket) ReadMessage() (int, []byte, error) {
	<-s.closed
	return 0, nil, context.Canceled
}

func (s *noopSocket) WriteMessage(messageType int, data []byte) error { return nil }

func (s *noopSocket) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (s *noopSocket) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

type noopDialer struct{}

func (noopDialer) Dial(ctx context.Context, sess models.AccountSession) (relay.Socket, error) {
	return &noopSocket{closed: make(chan struct{})}, nil
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := config.Get()
	lookup := access.NewMemoryLookup()
	source := session.NewMemorySource()
	client := &stubUpstream{dialogs: map[string][]upstream.Dialog{}}

	resolver := profiles.NewResolver(client, cfg.Chats.ProfileChunkSize)
	agg := chats.NewAggregator(cfg.Chats, lookup, source, client, resolver)
	manager := relay.NewManager(cfg.Relay, source, noopDialer{}, relay.FrameHandlerFunc(func(accountID string, frame []byte) {}))
	t.Cleanup(manager.Shutdown)

	hub := gateway.NewHub(cfg.Gateway, lookup, manager)
	t.Cleanup(hub.Shutdown)

	jwt := auth.NewJWTManager("test-secret", time.Hour)
	router := NewRouter(cfg, RouterDeps{
		Chats:       NewChatsHandler(agg),
		Connections: NewConnectionHandler(manager),
		Hub:         hub,
		JWT:         jwt,
	})
	return &apiFixture{router: router, jwt: jwt, lookup: lookup, source: source, manager: manager}
}

func (f *apiFixture) request(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) token(t *testing.T, caller models.CallerContext) string {
	t.Helper()
	token, err := f.jwt.Generate(caller)
	require.NoError(t, err)
	return token
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t)
	w := f.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestRouter_Metrics(t *testing.T) {
	f := newAPIFixture(t)
	w := f.request(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ChatsRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("NoToken", func(t *testing.T) {
		w := f.request(t, http.MethodGet, "/api/v1/chats", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		w := f.request(t, http.MethodGet, "/api/v1/chats", "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("TokenFromQueryParam", func(t *testing.T) {
		token := f.token(t, models.CallerContext{TenantID: "t1", CallerCode: "op1", Role: models.RoleOperator})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chats?token="+token, nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouter_ListChats(t *testing.T) {
	f := newAPIFixture(t)
	f.lookup.GrantCaller("t1", "op1", models.Account{ID: "a1", TenantID: "t1"})
	f.source.Put(models.AccountSession{AccountID: "a1", AuthBlob: "cookie", ExpiresAt: time.Now().Add(time.Hour)})

	caller := models.CallerContext{TenantID: "t1", CallerCode: "op1", Role: models.RoleOperator}
	w := f.request(t, http.MethodGet, "/api/v1/chats", f.token(t, caller))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool         `json:"success"`
		Data    chats.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotNil(t, body.Data.Dialogs)
}

func TestRouter_ConnectionStatus(t *testing.T) {
	f := newAPIFixture(t)
	f.source.Put(models.AccountSession{AccountID: "a1", AuthBlob: "cookie", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, f.manager.EnsureAccount(context.Background(), "a1"))

	caller := models.CallerContext{TenantID: "t1", CallerCode: "op1", Role: models.RoleOperator}
	w := f.request(t, http.MethodGet, "/api/v1/connections/status", f.token(t, caller))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data["a1"])
}

func TestRouter_ReconnectAll(t *testing.T) {
	f := newAPIFixture(t)
	caller := models.CallerContext{TenantID: "t1", CallerCode: "op1", Role: models.RoleOperator}
	w := f.request(t, http.MethodPost, "/api/v1/connections/reconnect", f.token(t, caller))
	assert.Equal(t, http.StatusOK, w.Code)
}
