package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as "8s" or "1m30s" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Scheduler tunes the request scheduler.
type Scheduler struct {
	MaxConcurrent     int      `toml:"max_concurrent"`
	ConnectionTimeout Duration `toml:"connection_timeout"`
	RetryDelay        Duration `toml:"retry_delay"`
	MaxRetries        int      `toml:"max_retries"`
}

// Cache holds the TTL of each cached endpoint.
type Cache struct {
	Conversation Duration `toml:"conversation_ttl"`
	Unread       Duration `toml:"unread_ttl"`
	Inbox        Duration `toml:"inbox_ttl"`
	Empty        Duration `toml:"empty_ttl"`
}

// Polling holds the base polling intervals and the idle threshold.
type Polling struct {
	Messages          Duration `toml:"messages"`
	Unread            Duration `toml:"unread"`
	Inbox             Duration `toml:"inbox"`
	ActivityCheck     Duration `toml:"activity_check"`
	ActivityThreshold Duration `toml:"activity_threshold"`
}

// Config represents the global ~/.nestsync/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	LogLevel       string    `toml:"log_level"`
	Scheduler      Scheduler `toml:"scheduler"`
	Cache          Cache     `toml:"cache"`
	Polling        Polling   `toml:"polling"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scheduler: Scheduler{
			MaxConcurrent:     4,
			ConnectionTimeout: Duration(8 * time.Second),
			RetryDelay:        Duration(time.Second),
			MaxRetries:        3,
		},
		Cache: Cache{
			Conversation: Duration(10 * time.Second),
			Unread:       Duration(5 * time.Second),
			Inbox:        Duration(10 * time.Second),
			Empty:        Duration(5 * time.Second),
		},
		Polling: Polling{
			Messages:          Duration(3 * time.Second),
			Unread:            Duration(5 * time.Second),
			Inbox:             Duration(8 * time.Second),
			ActivityCheck:     Duration(5 * time.Second),
			ActivityThreshold: Duration(30 * time.Second),
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
