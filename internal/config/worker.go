package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// WorkerConfig is environment-driven: the worker binary runs headless in
// containers and takes no config file.
type WorkerConfig struct {
	DatabaseHost     string        `envconfig:"CLINIC_DATABASE_HOST" default:"localhost"`
	DatabasePort     int           `envconfig:"CLINIC_DATABASE_PORT" default:"5432"`
	DatabaseUser     string        `envconfig:"CLINIC_DATABASE_USER" default:"clinic"`
	DatabasePassword string        `envconfig:"CLINIC_DATABASE_PASSWORD" default:""`
	DatabaseName     string        `envconfig:"CLINIC_DATABASE_NAME" default:"clinic"`
	DatabaseSSLMode  string        `envconfig:"CLINIC_DATABASE_SSLMODE" default:"disable"`
	RedisURL         string        `envconfig:"CLINIC_REDIS_URL" default:"redis://localhost:6379/0"`
	BatchSize        int           `envconfig:"CLINIC_WORKER_BATCH_SIZE" default:"100"`
	PollInterval     time.Duration `envconfig:"CLINIC_WORKER_POLL_INTERVAL" default:"5s"`
	RetryDelay       time.Duration `envconfig:"CLINIC_WORKER_RETRY_DELAY" default:"30s"`
}

func LoadWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Database converts the worker's flat env settings into the shared
// database config.
func (c *WorkerConfig) Database() DatabaseConfig {
	return DatabaseConfig{
		Host:         c.DatabaseHost,
		Port:         c.DatabasePort,
		User:         c.DatabaseUser,
		Password:     c.DatabasePassword,
		Name:         c.DatabaseName,
		SSLMode:      c.DatabaseSSLMode,
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}
}
