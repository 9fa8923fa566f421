package ws

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type Config struct {
	AuthTimeout        time.Duration
	ReadyTimeout       time.Duration
	BufferSize         int
	MaxFrameBytes      int64
	RateLimitPerSecond float64
	RateLimitBurst     int
	AllowedOrigins     []string
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 64 * 1024
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 10
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	return c
}

// RoomListeners starts and stops the per-room listener of this process.
type RoomListeners interface {
	Ensure(roomID domain.RoomID) *runtime.ListenerHandle
	StopIfEmpty(roomID domain.RoomID) bool
}

// Server serves the websocket endpoints. Every session is rooted in base:
// cancelling it closes all live connections with "going away".
type Server struct {
	base      context.Context
	auth      services.IAuthManager
	users     services.IUserService
	chat      services.IChatService
	registry  *runtime.Registry
	listeners RoomListeners
	hub       *runtime.ChatListHub
	monitor   *observability.MonitoringManager
	upgrader  websocket.Upgrader
	config    Config
	log       *slog.Logger
}

// NewServer wires the websocket endpoints. A nil listeners means the process runs
// a single wildcard listener and no per-room listener is started.
func NewServer(
	base context.Context,
	auth services.IAuthManager,
	users services.IUserService,
	chat services.IChatService,
	registry *runtime.Registry,
	listeners RoomListeners,
	hub *runtime.ChatListHub,
	monitor *observability.MonitoringManager,
	config Config,
	log *slog.Logger,
) *Server {
	config = config.withDefaults()
	origins := NewOriginPolicy(config.AllowedOrigins, log)
	return &Server{
		base:      base,
		auth:      auth,
		users:     users,
		chat:      chat,
		registry:  registry,
		listeners: listeners,
		hub:       hub,
		monitor:   monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
		},
		config: config,
		log:    log,
	}
}

// Routes mounts the websocket endpoints. The static chat-list path wins over the peer pattern.
func (s *Server) Routes(r chi.Router) {
	r.Get("/ws/chat-list", s.ServeChatList)
	r.Get("/ws/{peerID}", s.ServeChat)
}
