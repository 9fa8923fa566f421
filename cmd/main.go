package main

import (
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/cache"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/events"
	grpc2 "chat-relay/grpc"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/ws"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	db       *badger.DB
	messages repositories.IMessageRepository
	rooms    repositories.IRoomRepository
	users    repositories.IUserRepository
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// run wires every component, serves until a signal arrives, then shuts down in reverse order.
// Deferred cleanup runs before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Storage, cache and bus
	st, err := openStores(ctx, config, log)
	defer st.close()
	if err != nil {
		return exitRuntime, err
	}

	var redisClient *redis.Client
	if config.RedisURL != "" {
		if redisClient, err = cache.NewRedisClient(ctx, config.RedisURL); err != nil {
			return exitRuntime, err
		}
		defer func() { _ = redisClient.Close() }()
	}
	var recent cache.IRecentMessageCache = cache.NoopCache{}
	if redisClient != nil {
		recent = cache.NewRedisCache(redisClient, log, cache.Options{TTL: config.CacheTTL, Limit: config.RetentionLimit})
	}

	b, err := openBus(config, redisClient, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing bus...")
		_ = b.Close()
	}()

	// 4. Services
	monitor := observability.NewMonitoringManager(log)
	chat := services.NewChatService(st.messages, st.rooms, st.users, recent, b, monitor, services.ChatConfig{
		RetentionLimit: config.RetentionLimit,
		HistoryLimit:   config.HistoryLimit,
		MaxTextLength:  config.MaxTextLength,
	}, log)
	if config.ModerationEnabled {
		moderator, err := moderation.NewDefaultModerator(charReplacement, log)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation: %w", err)
		}
		chat.WithModerator(moderator)
	}
	if brokers := config.Brokers(); len(brokers) > 0 {
		exporter := events.NewKafkaExporter(brokers, config.MessageTopic, log)
		defer func() { _ = exporter.Close() }()
		chat.WithExporter(exporter)
	}
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	authManager := services.NewAuthManager(tokens, st.users, log)
	userService := services.NewUserService(st.users)

	// 5. Supervision & fan-out
	sup := workers.NewSupervisor(log, config.ListenerRestartBackoff).
		OnRestart(func(string, error) { monitor.IncrListenerRestarts() })
	registry := runtime.NewRegistry(log).OnPrune(monitor.AddConnectionsPruned)
	hub := runtime.NewChatListHub(log)

	var roomListeners ws.RoomListeners
	if config.PerRoomListeners {
		roomListeners = runtime.NewListeners(ctx, log, sup, registry,
			func(roomID domain.RoomID, h *runtime.ListenerHandle) contract.Worker {
				return workers.NewRoomListener(roomID, h, b, registry, monitor, log)
			})
	}

	healthServer := grpc2.NewHealthServer(log)
	sup.Add(
		workers.NewChatListListener(b, st.rooms, hub, registry, !config.PerRoomListeners, monitor, log).
			ParticipantsOnly(config.ChatListScoped),
		workers.NewHealthMonitoringWorker(log, monitor, config.HealthInterval, healthServer.Report,
			workers.HealthCheck{Name: "messages", Ping: st.messages.Ping},
			workers.HealthCheck{Name: "rooms", Ping: st.rooms.Ping},
			workers.HealthCheck{Name: "bus", Ping: b.Ping},
			workers.HealthCheck{Name: "cache", Ping: recent.Ping},
		),
	)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 6. HTTP (websocket + REST), gRPC health and debug servers
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer)
	ws.NewServer(ctx, authManager, userService, chat, registry, roomListeners, hub, monitor, ws.Config{
		AuthTimeout:        config.AuthTimeout,
		BufferSize:         config.ConnectionBufferSize,
		RateLimitPerSecond: config.RateLimitPerSecond,
		RateLimitBurst:     config.RateLimitBurst,
		AllowedOrigins:     config.Origins(),
	}, log).Routes(router)
	api.NewHandler(authManager, userService, chat, log).Routes(router)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", config.Host, config.GrpcPort))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on gRPC port %d: %w", config.GrpcPort, err)
	}

	if config.DebugPort > 0 {
		internal.StartDebugServer(ctx, config.DebugPort, internal.DebugHandler(st.db, nil, monitor.AsMap, log), log)
	}

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "per_room_listeners", config.PerRoomListeners)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := healthServer.Serve(ctx, grpcListener); err != nil {
			errChan <- err
		}
	}()

	// 7. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Server failed", "error", err)
		code = exitRuntime
		stop()
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")
	return code, err
}

func openStores(ctx context.Context, config internal.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	if config.MessageBackend == "badger" || config.RelationalBackend == "badger" {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return st, fmt.Errorf("database opening failed: %w", err)
		}
		st.db = db
		st.closers = append(st.closers, func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		})
	}

	switch config.RelationalBackend {
	case "postgres":
		pool, err := repositories.ConnectPostgres(ctx, config.PostgresURL)
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, pool.Close)
		if err := repositories.Migrate(ctx, pool); err != nil {
			return st, err
		}
		st.rooms = repositories.NewPgRoomRepository(pool)
		st.users = repositories.NewPgUserRepository(pool)
	default:
		rooms, err := repositories.NewRoomRepository(st.db, log)
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, func() { _ = rooms.Close() })
		st.rooms = rooms
		st.users = repositories.NewUserRepository(st.db)
	}

	switch config.MessageBackend {
	case "mongo":
		client, err := repositories.NewMongoClient(ctx, config.MongoURI)
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, func() { _ = client.Disconnect(context.Background()) })
		messages, err := repositories.NewMongoMessageRepository(ctx,
			client.Database(config.MongoDatabase).Collection("messages"), log)
		if err != nil {
			return st, err
		}
		st.messages = messages
	default:
		st.messages = repositories.NewMessageRepository(st.db, log)
	}
	return st, nil
}

func openBus(config internal.Config, redisClient *redis.Client, log *slog.Logger) (bus.IBus, error) {
	switch config.BusBackend {
	case "redis":
		return bus.NewRedisBus(redisClient, log), nil
	case "nats":
		return bus.NewNatsBus(config.NatsURL, log)
	default:
		log.Warn("In-memory bus: fan-out is limited to this process")
		return bus.NewMemoryBus(log), nil
	}
}
