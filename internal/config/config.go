package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "STOREFRONT"

type Config struct {
	HTTPPort           string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodySize int64         `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`

	APIBaseURL string        `envconfig:"API_BASE_URL" default:"https://nshopping.runasp.net/api"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"10s"`

	DefaultRegion int `envconfig:"DEFAULT_REGION" default:"1"`

	// SessionStore selects the snapshot backend: redis, mongo or memory.
	SessionStore  string        `envconfig:"SESSION_STORE" default:"redis"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	MongoURI      string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName   string        `envconfig:"MONGO_DB_NAME" default:"storefront"`

	// TrustUserHeader lets X-User-ID override the session identity. Only
	// enable it behind a gateway that authenticates the header.
	TrustUserHeader bool `envconfig:"TRUST_USER_HEADER" default:"true"`

	// Per-session cart and favorites managers kept in memory.
	ManagerCacheSize   int           `envconfig:"MANAGER_CACHE_SIZE" default:"10000"`
	ManagerIdleTimeout time.Duration `envconfig:"MANAGER_IDLE_TIMEOUT" default:"30m"`

	SagaDBPath string `envconfig:"SAGA_DB_PATH" default:"storefront-saga.db"`

	// KafkaBrokers is empty when checkout events stay in-process.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"checkout-outbox"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// Load reads an optional dotenv file and then the STOREFRONT_* environment.
// A missing dotenv file is not an error.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api base url is required")
	}
	if c.DefaultRegion <= 0 {
		return fmt.Errorf("default region must be positive, got %d", c.DefaultRegion)
	}
	switch c.SessionStore {
	case "redis", "mongo", "memory":
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}
	return nil
}
