package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"talent-chat/auth"
	"talent-chat/infrastructure/storage"
	"talent-chat/infrastructure/storage/sqlite"
	"talent-chat/services"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("chatctl: %v", err))
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	color.Enable = cfg.Colours
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli := &CLI{grpcAddr: cfg.GRPCAddress, out: os.Stdout}
	if cfg.JWTSecret != "" {
		cli.signer = auth.NewSigner(cfg.JWTSecret, cfg.AuthTokenDuration)
	}
	// token and health do not touch the store, badger keeps a directory lock
	// the running daemon holds.
	if len(args) > 0 && (args[0] == "token" || args[0] == "health") {
		return cli.Execute(ctx, args)
	}

	var store chatStore
	switch cfg.StoreDriver {
	case "sqlite":
		store, err = sqlite.Open(cfg.SqlitePath, log)
	default:
		store, err = storage.Open(cfg.BadgerFilepath, log)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	cli.store = store
	cli.rooms = services.NewRoomService(store, log)
	return cli.Execute(ctx, args)
}
