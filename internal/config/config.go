// Package config loads client and server configuration from a JSON file,
// with environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPath is used when no -config flag or DIRSYNC_CONFIG is given.
const DefaultPath = "config.json"

// ConfigError reports an unusable configuration. It is fatal at startup.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// OutputPaths returns the zap output paths: stdout plus the log file, if any.
func (l LogConfig) OutputPaths() []string {
	paths := []string{"stdout"}
	if l.File != "" {
		paths = append(paths, l.File)
	}
	return paths
}

// MailConfig holds SMTP settings for operator alerts.
type MailConfig struct {
	Host     string     `json:"host"`
	Port     int        `json:"port"`
	Security bool       `json:"security"` // implicit TLS on connect
	Username string     `json:"username"`
	Password string     `json:"password"`
	From     string     `json:"from"`
	To       Recipients `json:"to"`
}

// Enabled reports whether alerts can be delivered.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != "" && len(m.To) > 0
}

// Recipients accepts either a single address or a list.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = splitAddresses(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("mail.to must be a string or a list of strings")
	}
	*r = many
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Duration accepts a Go duration string ("5s") or a number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds")
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func readJSON(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ConfigError{Path: path, Err: fmt.Errorf("config file not found, please create %s", path)}
		}
		return &ConfigError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, into); err != nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	return nil
}

// PathFromEnv returns DIRSYNC_CONFIG if set, otherwise fallback.
func PathFromEnv(fallback string) string {
	return envOr("DIRSYNC_CONFIG", fallback)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func applyLogEnv(l *LogConfig, defaultFile string) {
	l.Level = envOr("LOG_LEVEL", l.Level)
	l.Format = envOr("LOG_FORMAT", l.Format)
	l.File = envOr("LOG_FILE", l.File)
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	if l.File == "" {
		l.File = defaultFile
	}
	if l.File == "-" {
		l.File = ""
	}
}

func applyMailDefaults(m *MailConfig) {
	m.Password = envOr("MAIL_PASSWORD", m.Password)
	if m.Host == "" {
		m.Host = "localhost"
	}
	if m.Port == 0 {
		m.Port = 25
	}
}
