package config

import (
	"github.com/vietddude/pushgate/internal/consumer"
	"github.com/vietddude/pushgate/internal/dispatch"
	redisclient "github.com/vietddude/pushgate/internal/infra/redis"
	"github.com/vietddude/pushgate/internal/infra/storage/postgres"
	"github.com/vietddude/pushgate/internal/sweeper"
	"github.com/vietddude/pushgate/internal/transport/expo"
	"github.com/vietddude/pushgate/internal/transport/fcm"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Broker    consumer.Config    `yaml:"broker"`
	Transport TransportConfig    `yaml:"transport"`
	Dispatch  dispatch.Config    `yaml:"dispatch"`
	Sweeper   sweeper.Config     `yaml:"sweeper"`
}

// ServerConfig holds the ops HTTP server settings (/health, /metrics).
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TransportConfig selects and configures the push provider.
type TransportConfig struct {
	Provider string      `yaml:"provider"` // "fcm" or "expo"
	FCM      fcm.Config  `yaml:"fcm"`
	Expo     expo.Config `yaml:"expo"`
}
