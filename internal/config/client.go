package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultUploadTimeout bounds a single upload request.
const DefaultUploadTimeout = 5 * time.Second

// ClientConfig is the configuration of dirsync-client.
type ClientConfig struct {
	SourcePath       string     `json:"sourcePath"`
	ServerURL        string     `json:"serverUrl"`
	CronSchedule     string     `json:"cronSchedule"`
	DryRun           bool       `json:"dryRun"`
	DeleteSourceFile bool       `json:"deleteSourceFile"`
	UploadTimeout    Duration   `json:"uploadTimeout"`
	RunOnStart       bool       `json:"runOnStart"`
	AuthSecret       string     `json:"authSecret"`
	MetricsAddr      string     `json:"metricsAddr"`
	Log              LogConfig  `json:"log"`
	Mail             MailConfig `json:"mail"`

	// Schedule is the parsed CronSchedule.
	Schedule cron.Schedule `json:"-"`
}

// LoadClient reads and validates the client configuration at path.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := readJSON(path, cfg); err != nil {
		return nil, err
	}

	cfg.SourcePath = envOr("DIRSYNC_SOURCE_PATH", cfg.SourcePath)
	cfg.ServerURL = envOr("DIRSYNC_SERVER_URL", cfg.ServerURL)
	cfg.AuthSecret = envOr("DIRSYNC_AUTH_SECRET", cfg.AuthSecret)
	cfg.DryRun = envBool("DIRSYNC_DRY_RUN", cfg.DryRun)
	cfg.MetricsAddr = envOr("DIRSYNC_METRICS_ADDR", cfg.MetricsAddr)
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = Duration(DefaultUploadTimeout)
	}
	applyLogEnv(&cfg.Log, "client.log")
	applyMailDefaults(&cfg.Mail)

	if err := cfg.validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.SourcePath == "" {
		return fmt.Errorf("sourcePath is required")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("serverUrl is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("serverUrl %q is not an http(s) URL", c.ServerURL)
	}
	schedule, err := ParseSchedule(c.CronSchedule)
	if err != nil {
		return err
	}
	c.Schedule = schedule
	return nil
}

// ParseSchedule validates a standard five-field cron expression
// (descriptors such as @hourly are accepted too).
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cronSchedule is required")
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cronSchedule %q: %w", expr, err)
	}
	return schedule, nil
}
