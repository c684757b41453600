package main

import (
	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/contract"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/health"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/presence"
	"chat-relay/push"
	"chat-relay/ratelimit"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 15 * time.Second
	pushTimeout     = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the process lifecycle.
// Returning an error instead of exiting lets the deferred cleanups run.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Redis, shared by every process when configured
	client, err := newRedisClient(config)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() {
			log.Info("Closing Redis client...")
			_ = client.Close()
		}()
	} else {
		log.Warn("REDIS_URL is not set, running as a single process")
	}

	// 3. Storage: Redis when shared, BadgerDB otherwise
	storage, closeStorage, err := newStore(config, client, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	// 4. Bus, presence, credentials, push, moderation
	eventBus, presenceDirectory, limiter := newClusterServices(config, client, log)
	users, conversations, messages := storage.users, storage.conversations, storage.messages
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	gate := auth.NewGate(conversations, log)
	notifier := push.NewNotifier(users, newPushSender(config, log), log)

	registry := runtime.NewRegistry()
	delivery := services.NewDeliveryService(
		registry, gate, messages, users, eventBus, presenceDirectory, notifier, log,
	).WithMaxContentLength(config.MaxContentLength)
	if config.CensoredWordsDir != "" {
		moderator, err := newModerator(config, log)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		delivery.WithModerator(moderator)
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Health server
	healthServer := health.NewServer(log)
	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	healthListener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting health server", "address", healthAddress)
		if err := healthServer.Serve(healthListener); err != nil {
			errChan <- fmt.Errorf("health server error: %w", err)
		}
	}()

	// 7. Supervised workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewBusSubscriber(delivery.Start, healthServer, log),
		workers.NewPresenceHeartbeat(registry, presenceDirectory, config.PresenceRefreshInterval, log),
		workers.NewStatsWorker(registry, config.StatsInterval, log),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 8. HTTP server: REST api and websocket transport
	realtime := ws.NewServer(delivery, tokens, config.Origins(), sink.Options{
		BufferSize:   config.ConnectionBufferSize,
		WriteTimeout: config.WriteTimeout,
		PingInterval: config.PingInterval,
	}, log)
	handler := api.NewHandler(
		services.NewAuthService(users, tokens),
		services.NewUserService(users),
		services.NewChatService(conversations, messages, users, gate, log).
			WithPageLimits(config.DefaultPageLimit, config.MaxPageLimit),
		delivery,
		log,
	)
	if limiter != nil {
		handler.WithRateLimiter(limiter)
	}
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           api.WithCORS(handler.Router(tokens, realtime), config.Origins()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Server failure, shutting down", "error", err)
	}

	// 10. Final Cleanup: transports first, then workers, then in-flight notifications
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	sup.Stop()
	<-supDone
	delivery.Wait()
	if closeErr := eventBus.Close(); closeErr != nil {
		log.Warn("Unable to close bus", "error", closeErr)
	}
	healthServer.Stop()
	log.Info("Program stopped cleanly")

	return err
}

type store struct {
	users         contract.IUserRepository
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
}

func newRedisClient(config internal.Config) (*redis.Client, error) {
	if config.RedisURL == "" {
		return nil, nil
	}
	options, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return client, nil
}

// newStore keeps conversations where every process reads them.
// BadgerDB locks its directory, it only serves a single process.
func newStore(config internal.Config, client *redis.Client, log *slog.Logger) (store, func(), error) {
	if client != nil {
		if config.BadgerFilepath != "" {
			log.Warn("BADGER_FILEPATH is ignored, storage is shared in Redis")
		}
		return store{
			users:         repositories.NewRedisUserRepository(client),
			conversations: repositories.NewRedisConversationRepository(client, log),
			messages:      repositories.NewRedisMessageRepository(client, log),
		}, func() {}, nil
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return store{}, nil, fmt.Errorf("database opening failed: %w", err)
	}
	closeDB := func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}
	return store{
		users:         repositories.NewUserRepository(db),
		conversations: repositories.NewConversationRepository(db, log),
		messages:      repositories.NewMessageRepository(db, log),
	}, closeDB, nil
}

// newClusterServices returns the bus, the presence directory and the rate limiter,
// in Redis when the processes share it. A nil limiter disables rate limiting.
func newClusterServices(config internal.Config, client *redis.Client, log *slog.Logger) (contract.IBus, contract.IPresence, contract.IRateLimiter) {
	var limiter contract.IRateLimiter
	if client == nil {
		if config.RateLimitMax > 0 {
			limiter = ratelimit.NewMemoryLimiter(config.RateLimitMax, config.RateLimitWindow)
		}
		return bus.NewMemoryBroker().NewBus(log), presence.NewMemoryPresence(config.PresenceTTL), limiter
	}
	if config.RateLimitMax > 0 {
		limiter = ratelimit.NewRedisLimiter(client, config.RateLimitMax, config.RateLimitWindow)
	}
	return bus.NewRedisBus(client, config.BusChannel, log), presence.NewRedisPresence(client, config.PresenceTTL), limiter
}

func newPushSender(config internal.Config, log *slog.Logger) contract.IPushSender {
	if config.FCMEndpoint == "" {
		log.Warn("FCM_ENDPOINT is not set, push notifications are only logged")
		return push.NewLogSender(log)
	}
	return push.NewFCMSender(config.FCMEndpoint, config.FCMServerKey, pushTimeout)
}

func newModerator(config internal.Config, log *slog.Logger) (*moderation.Moderator, error) {
	censoredChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := runtime.NewCensoredLoader(os.DirFS(config.CensoredWordsDir)).LoadAll(".")
	if err != nil {
		return nil, err
	}
	log.Info("Censored words loaded", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, censoredChar, log)
}
