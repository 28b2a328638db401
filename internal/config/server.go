package config

import (
	"fmt"
)

// Storage backend identifiers.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// S3Config holds S3/MinIO settings for the s3 storage backend.
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
}

// StorageConfig selects where received files are persisted.
type StorageConfig struct {
	Backend string   `json:"backend"`
	S3      S3Config `json:"s3"`
}

// ServerConfig is the configuration of dirsync-server.
type ServerConfig struct {
	UploadDir     string        `json:"uploadDir"`
	Port          int           `json:"port"`
	MaxUploadSize int64         `json:"maxUploadSize"`
	SpoolDir      string        `json:"spoolDir"`
	AuthSecret    string        `json:"authSecret"`
	MetricsAddr   string        `json:"metricsAddr"`
	Storage       StorageConfig `json:"storage"`
	Log           LogConfig     `json:"log"`
	Mail          MailConfig    `json:"mail"`
}

// ListenAddr returns the HTTP listen address.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoadServer reads and validates the server configuration at path.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := readJSON(path, cfg); err != nil {
		return nil, err
	}

	cfg.UploadDir = envOr("DIRSYNC_UPLOAD_DIR", cfg.UploadDir)
	cfg.Port = envInt("DIRSYNC_PORT", cfg.Port)
	cfg.AuthSecret = envOr("DIRSYNC_AUTH_SECRET", cfg.AuthSecret)
	cfg.MetricsAddr = envOr("DIRSYNC_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Storage.S3.AccessKey = envOr("S3_ACCESS_KEY", cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = envOr("S3_SECRET_KEY", cfg.Storage.S3.SecretKey)

	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 100 * 1024 * 1024
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLocal
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	applyLogEnv(&cfg.Log, "server.log")
	applyMailDefaults(&cfg.Mail)

	if err := cfg.validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
