package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"talent-chat/auth"
	"talent-chat/contract"
	"talent-chat/domain"
	grpcserver "talent-chat/infrastructure/grpc/server"
	"talent-chat/infrastructure/httpapi"
	"talent-chat/infrastructure/storage"
	"talent-chat/infrastructure/storage/sqlite"
	"talent-chat/infrastructure/websocket"
	"talent-chat/internal"
	"talent-chat/moderation"
	"talent-chat/runtime"
	"talent-chat/runtime/workers"
	"talent-chat/services"
	"time"

	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

const drainTimeout = 5 * time.Second

// Exit codes for the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatd terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// chatStore is what both storage drivers provide.
type chatStore interface {
	contract.RoomDirectory
	contract.UserDirectory
	contract.MessageStore
	Close() error
}

// run wires the daemon and blocks until SIGINT or SIGTERM. Deferred closes
// run before main exits.
func run() (int, error) {
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	censoredChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, size, err := openStore(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing store...", "driver", config.StoreDriver)
		if err := store.Close(); err != nil {
			log.Warn("Store close failed", "error", err)
		}
	}()

	registry := runtime.NewRegistry()
	opts := []services.GatewayOption{
		services.WithStateObserver(func(room domain.RoomID, user domain.UserID, state services.State) {
			log.Debug("Connection state", "room_id", room, "user_id", user, "state", state.String())
		}),
	}
	if config.ModerationEnabled {
		dictionaries, err := moderation.EmbeddedDictionaries()
		if err != nil {
			return exitRuntime, fmt.Errorf("moderation dictionaries: %w", err)
		}
		filter, err := moderation.NewFilter(dictionaries, censoredChar, log)
		if err != nil {
			return exitRuntime, fmt.Errorf("moderation filter: %w", err)
		}
		opts = append(opts, services.WithModerator(filter))
	}

	signer := auth.NewSigner(config.JWTSecret, config.AuthTokenDuration)
	gateway, err := services.NewChatGateway(
		auth.NewTokenResolver(signer, store), store, store, store,
		registry, runtime.NewBroadcaster(registry, log),
		config.Gateway(), log, opts...,
	)
	if err != nil {
		return exitConfig, err
	}

	handlers := httpapi.NewHandlers(gateway, registry, websocket.NewOriginPolicy(config.Origins(), log), config.Transport(), log)
	probe := func(ctx context.Context) error {
		_, err := store.ListRooms(ctx)
		return err
	}

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		httpapi.NewServer(config.HTTPAddress, handlers.Routes(), log),
		grpcserver.NewHealthServer(config.GRPCAddress, probe, config.HealthInterval, log),
		workers.NewStatsWorker(log, config.StatsInterval, registry, size),
	)

	log.Info("Chat daemon started", "http", config.HTTPAddress, "grpc", config.GRPCAddress, "driver", config.StoreDriver)
	sup.Run(ctx)

	// Hijacked websocket handlers outlive the HTTP server shutdown, the store
	// must stay open until their sessions have left.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := registry.Drain(drainCtx); err != nil {
		log.Warn("Sessions still open at shutdown", "error", err)
	}
	log.Info("Chat daemon stopped cleanly")
	return exitOK, nil
}

func openStore(ctx context.Context, config internal.Config, log *slog.Logger) (chatStore, workers.SizeFunc, error) {
	switch config.StoreDriver {
	case internal.DriverSqlite:
		store, err := sqlite.Open(config.SqlitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		store, err := storage.Open(config.BadgerFilepath, log)
		if err != nil {
			return nil, nil, err
		}
		if config.DebugInspectPort > 0 && log.Enabled(ctx, slog.LevelDebug) {
			log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect?prefix=msg:", config.DebugInspectPort))
			database.StartDebugServer(store.DB(), config.DebugInspectPort, "/inspect", storage.InspectMapper)
		}
		return store, store.Size, nil
	}
}
