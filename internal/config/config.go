// Package config loads promptflow settings from a YAML file, a .env file
// and PROMPTFLOW_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROMPTFLOW_"

// Config is the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Metrics MetricsConfig `yaml:"metrics"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Queue   QueueConfig   `yaml:"queue"`
	Input   InputConfig   `yaml:"input"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory file sqlite postgres redis"`
	// Path is the graph directory for file and the database file for sqlite.
	Path string `yaml:"path" validate:"required_if=Driver file,required_if=Driver sqlite"`
	DSN  string `yaml:"dsn" validate:"required_if=Driver postgres"`
	// EncryptionKey is a base64 AES-256 key sealing job output at rest.
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,base64"`
	// MaskLabels are patterns of node labels whose output is redacted
	// before it is stored.
	MaskLabels []string `yaml:"mask_labels"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db" validate:"min=0"`
	Password string `yaml:"password"`
}

type QueueConfig struct {
	Driver      string        `yaml:"driver" validate:"oneof=memory redis"`
	Workers     int           `yaml:"workers" validate:"min=1"`
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1"`
	Backoff     time.Duration `yaml:"backoff" validate:"min=0"`
}

type InputConfig struct {
	MaxSize int `yaml:"max_size" validate:"min=0"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// Default returns the built-in settings: everything in memory.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Store: StoreConfig{Driver: "memory"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Queue: QueueConfig{
			Driver:      "memory",
			Workers:     4,
			MaxAttempts: 3,
			Backoff:     time.Second,
		},
	}
}

// Load builds the configuration. A missing .env is ignored, a missing file
// at path is not. An empty path skips the YAML layer.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from PROMPTFLOW_* variables. OPENAI_API_KEY and
// OPENAI_BASE_URL are honoured as well.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	str(EnvPrefix+"LOG_LEVEL", &c.Log.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Log.Format)
	str(EnvPrefix+"HTTP_ADDR", &c.HTTP.Addr)
	str(EnvPrefix+"STORE_DRIVER", &c.Store.Driver)
	str(EnvPrefix+"STORE_PATH", &c.Store.Path)
	str(EnvPrefix+"STORE_DSN", &c.Store.DSN)
	str(EnvPrefix+"STORE_ENCRYPTION_KEY", &c.Store.EncryptionKey)
	if v, ok := lookup(EnvPrefix + "STORE_MASK_LABELS"); ok && v != "" {
		c.Store.MaskLabels = strings.Split(v, ",")
	}
	str(EnvPrefix+"REDIS_ADDR", &c.Redis.Addr)
	num(EnvPrefix+"REDIS_DB", &c.Redis.DB)
	str(EnvPrefix+"REDIS_PASSWORD", &c.Redis.Password)
	str(EnvPrefix+"QUEUE_DRIVER", &c.Queue.Driver)
	num(EnvPrefix+"QUEUE_WORKERS", &c.Queue.Workers)
	num(EnvPrefix+"QUEUE_MAX_ATTEMPTS", &c.Queue.MaxAttempts)
	num(EnvPrefix+"MAX_INPUT_SIZE", &c.Input.MaxSize)
	str(EnvPrefix+"OPENAI_API_KEY", &c.OpenAI.APIKey)
	str(EnvPrefix+"OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	if v, ok := lookup(EnvPrefix + "QUEUE_BACKOFF"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sQUEUE_BACKOFF: %w", EnvPrefix, err))
		} else {
			c.Queue.Backoff = d
		}
	}
	if v, ok := lookup(EnvPrefix + "METRICS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMETRICS_ENABLED: %w", EnvPrefix, err))
		} else {
			c.Metrics.Enabled = b
		}
	}
	return errors.Join(errs...)
}
