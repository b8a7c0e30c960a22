package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, read from the environment.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:"sqlite://huenest.db"`
	CORSOrigin  string `envconfig:"CORS_ORIGIN" default:"*"`
	// X_ADMIN_TOKEN guards the moderation endpoints; when empty they reject
	// every request instead of failing open.
	AdminToken string `envconfig:"X_ADMIN_TOKEN"`
	// RELAY_JWT_SECRET enables server-verified connection identity. When set,
	// client-supplied user ids on relay events are ignored in favor of the
	// token's subject.
	JWTSecret string `envconfig:"RELAY_JWT_SECRET"`
	// PERSIST_TIMEOUT bounds every store call made on behalf of a relay event.
	PersistTimeout time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s"`
	// Inbound relay events per connection.
	EventRateRPS   float64 `envconfig:"EVENT_RATE_RPS" default:"5"`
	EventRateBurst int     `envconfig:"EVENT_RATE_BURST" default:"10"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
