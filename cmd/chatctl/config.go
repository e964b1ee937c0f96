package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StoreDriver       string        `envconfig:"STORE_DRIVER" default:"badger"`
	BadgerFilepath    string        `envconfig:"BADGER_FILEPATH"`
	SqlitePath        string        `envconfig:"SQLITE_PATH"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	AuthTokenDuration time.Duration `envconfig:"AUTH_TOKEN_DURATION" default:"24h"`
	// GRPC_ADDR is where the daemon exposes its health service
	GRPCAddress string `envconfig:"GRPC_ADDR" default:"localhost:9090"`
	Colours     bool   `envconfig:"CHATCTL_COLOURS" default:"true"`
	LogLevel    string `envconfig:"CHATCTL_LOG_LEVEL" default:"ERROR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
