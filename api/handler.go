package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type contextKey struct{}

var identityKey = contextKey{}

// SendMessageRequest is the body of POST /api/rooms/{peerID}/messages.
type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=8192"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes the chat service to page and REST callers.
// Messages posted here take the same fan-out path as websocket frames.
type Handler struct {
	auth     services.IAuthManager
	users    services.IUserService
	chat     services.IChatService
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(auth services.IAuthManager, users services.IUserService, chat services.IChatService, log *slog.Logger) *Handler {
	return &Handler{
		auth:     auth,
		users:    users,
		chat:     chat,
		validate: validator.New(),
		log:      log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/chats", h.ListChats)
		r.Get("/rooms/{peerID}/messages", h.ListMessages)
		r.Post("/rooms/{peerID}/messages", h.PostMessage)
	})
}

// authenticate resolves the caller from the Authorization header or the access_token cookie.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.auth.GetUser(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, user)))
	})
}

func identityFrom(ctx context.Context) domain.Identity {
	user, _ := ctx.Value(identityKey).(domain.Identity)
	return user
}

func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	self := identityFrom(r.Context())
	items, err := h.chat.GetUserChatList(r.Context(), self.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// ListMessages returns the recent messages of the room shared with the peer, newest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	self := identityFrom(r.Context())
	room, peer, err := h.room(r, self)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
	}

	messages, err := h.chat.GetMessagesForRoom(r.Context(), room.ID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	avatars := map[domain.UserID]string{self.ID: self.AvatarURL, peer.ID: peer.AvatarURL}
	h.writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) domain.MessageView {
		return domain.ToView(m, avatars[m.SenderID])
	}))
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	self := identityFrom(r.Context())
	var body SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	if err := h.validate.Struct(body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	room, _, err := h.room(r, self)
	if err != nil {
		h.writeError(w, err)
		return
	}

	message, err := h.chat.SendMessage(r.Context(), room, self, body.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, domain.ToView(message, self.AvatarURL))
}

// room resolves the peer of the path and the room shared with it.
func (h *Handler) room(r *http.Request, self domain.Identity) (domain.Room, domain.Identity, error) {
	raw := chi.URLParam(r, "peerID")
	peerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.Room{}, domain.Identity{}, fmt.Errorf("%w: %q", errors.ErrPeerNotFound, raw)
	}
	if domain.UserID(peerID) == self.ID {
		return domain.Room{}, domain.Identity{}, errors.ErrSelfRoom
	}
	peer, err := h.users.GetUserWithProfile(r.Context(), domain.UserID(peerID))
	if err != nil {
		return domain.Room{}, domain.Identity{}, err
	}
	room, err := h.chat.GetOrCreateRoom(r.Context(), self.ID, peer.ID)
	return room, peer, err
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
	}
	h.writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug("Unable to write response", "error", err)
	}
}
