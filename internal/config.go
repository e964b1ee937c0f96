package internal

import (
	"fmt"
	"strings"
	"talent-chat/errors"
	"talent-chat/infrastructure/websocket"
	"talent-chat/services"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverBadger = "badger"
	DriverSqlite = "sqlite"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	HTTPAddress    string `env:"HTTP_ADDR,default=:8080" validate:"required"`
	GRPCAddress    string `env:"GRPC_ADDR,default=:9090" validate:"required"`
	StoreDriver    string `env:"STORE_DRIVER,default=badger" validate:"oneof=badger sqlite"`
	BadgerFilepath string `env:"BADGER_FILEPATH" validate:"required_if=StoreDriver badger"`
	SqlitePath     string `env:"SQLITE_PATH" validate:"required_if=StoreDriver sqlite"`

	// DebugInspectPort serves the badger inspector when set and LOG_LEVEL is DEBUG.
	DebugInspectPort int `env:"DEBUG_INSPECT_PORT" validate:"gte=0,lte=65535"`

	JWTSecret         string        `env:"JWT_SECRET,required=true" validate:"min=32"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gt=0"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"gt=0"`
	MaxMessageLength     int           `env:"MAX_MESSAGE_LENGTH,default=2000" validate:"gt=0"`
	MaxFrameSize         int           `env:"MAX_FRAME_SIZE,default=16384" validate:"gt=0"`
	RateLimitBurst       int           `env:"RATE_LIMIT_BURST,default=20" validate:"gt=0"`
	RateLimitInterval    time.Duration `env:"RATE_LIMIT_INTERVAL,default=1s" validate:"gt=0"`
	StoreRetryDelay      time.Duration `env:"STORE_RETRY_DELAY,default=100ms" validate:"gte=0"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*" validate:"required"`
	ModerationEnabled    bool          `env:"MODERATION_ENABLED,default=true"`

	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=5s" validate:"gt=0"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=1m" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
}

// LoadConfig reads the optional .env files then the environment.
// Variables already set in the environment win over the files.
func LoadConfig(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) Gateway() services.GatewayConfig {
	return services.GatewayConfig{
		ConnectionBufferSize: c.ConnectionBufferSize,
		MaxMessageLength:     c.MaxMessageLength,
		RateLimitBurst:       c.RateLimitBurst,
		RateLimitInterval:    c.RateLimitInterval,
		StoreRetryDelay:      c.StoreRetryDelay,
	}
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return strings.Split(c.AllowedOrigins, ",")
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

func (c Config) Transport() websocket.Config {
	return websocket.Config{MaxMessageSize: int64(c.MaxFrameSize)}
}
