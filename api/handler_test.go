package api

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/cache"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Identity{ID: 1, Username: "alice", AvatarURL: "/avatars/alice.png"}
	bob   = domain.Identity{ID: 2, Username: "bob", AvatarURL: "/avatars/bob.png"}
)

type apiFixture struct {
	server *httptest.Server
	tokens *auth.TokenManager
	bus    *bus.MemoryBus
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	rooms, err := repositories.NewRoomRepository(db, log)
	req.NoError(err)
	t.Cleanup(func() { _ = rooms.Close() })
	users := repositories.NewUserRepository(db)
	for _, u := range []domain.Identity{alice, bob} {
		req.NoError(users.PutUser(context.Background(), u))
	}

	memoryBus := bus.NewMemoryBus(log)
	chat := services.NewChatService(repositories.NewMessageRepository(db, log), rooms, users, cache.NoopCache{},
		memoryBus, observability.NewMonitoringManager(log), services.ChatConfig{}, log)
	tokens := auth.NewTokenManager("a-very-long-test-secret", time.Hour)

	router := chi.NewRouter()
	NewHandler(services.NewAuthManager(tokens, users, log), services.NewUserService(users), chat, log).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return apiFixture{server: server, tokens: tokens, bus: memoryBus}
}

func (f apiFixture) do(t *testing.T, user domain.Identity, method, path string, body any) *http.Response {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	r, err := http.NewRequest(method, f.server.URL+path, &payload)
	require.NoError(t, err)
	token, err := f.tokens.GenerateToken(user.ID, user.Username, nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/chats")
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_AcceptsCookieToken(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	token, err := f.tokens.GenerateToken(alice.ID, alice.Username, nil)
	req.NoError(err)

	r, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/chats", nil)
	req.NoError(err)
	r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Empty(decode[[]domain.ChatItem](t, resp))
}

func TestHandler_PostThenList(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deliveries, err := f.bus.Subscribe(ctx, bus.AllRooms)
	req.NoError(err)

	// When alice posts two messages to bob
	for _, text := range []string{"first", "second"} {
		resp := f.do(t, alice, http.MethodPost, fmt.Sprintf("/api/rooms/%d/messages", bob.ID), SendMessageRequest{Text: text})
		req.Equal(http.StatusCreated, resp.StatusCode)
		req.Equal(text, decode[domain.MessageView](t, resp).Text)
	}

	// Then they were fanned out like websocket frames
	var types []domain.EventType
	for i := 0; i < 4; i++ {
		select {
		case d := <-deliveries:
			types = append(types, d.Event.Type)
		case <-time.After(time.Second):
			t.Fatal("missing bus event")
		}
	}
	req.Equal([]domain.EventType{domain.ChatMessageType, domain.ChatUpdateType, domain.ChatMessageType, domain.ChatUpdateType}, types)

	// And bob lists them newest first with alice's avatar
	resp := f.do(t, bob, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", alice.ID), nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	views := decode[[]domain.MessageView](t, resp)
	req.Len(views, 2)
	req.Equal("second", views[0].Text)
	req.Equal(alice.AvatarURL, views[0].AvatarURL)

	resp = f.do(t, bob, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages?limit=1", alice.ID), nil)
	req.Len(decode[[]domain.MessageView](t, resp), 1)

	resp = f.do(t, bob, http.MethodGet, "/api/chats", nil)
	items := decode[[]domain.ChatItem](t, resp)
	req.Len(items, 1)
	req.Equal("second", items[0].LastMessage)
	req.Equal(alice.ID, items[0].Recipient.ID)
}

func TestHandler_RejectsInvalidRequests(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown peer", http.MethodGet, "/api/rooms/404/messages", nil, http.StatusNotFound},
		{"malformed peer", http.MethodGet, "/api/rooms/abc/messages", nil, http.StatusNotFound},
		{"self", http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", alice.ID), nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages?limit=x", bob.ID), nil, http.StatusBadRequest},
		{"empty text", http.MethodPost, fmt.Sprintf("/api/rooms/%d/messages", bob.ID), SendMessageRequest{}, http.StatusBadRequest},
		{"blank text", http.MethodPost, fmt.Sprintf("/api/rooms/%d/messages", bob.ID), SendMessageRequest{Text: "   "}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, alice, tt.method, tt.path, tt.body)
			require.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
