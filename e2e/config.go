package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_COLOURS enables colorized step headers for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_READ_TIMEOUT bounds every wait for a line pushed by the server
	ReadTimeout time.Duration `envconfig:"E2E_READ_TIMEOUT" default:"2s"`
	// E2E_SILENCE is how long a client must receive nothing to count as silent
	Silence  time.Duration `envconfig:"E2E_SILENCE" default:"200ms"`
	LogLevel string        `envconfig:"E2E_LOG_LEVEL" default:"ERROR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
