package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

// Config represents the global ~/.parley/config.toml.
type Config struct {
	DefaultSession string    `toml:"default_session"`
	Server         Server    `toml:"server"`
	Reconnect      Reconnect `toml:"reconnect"`
	Typing         Typing    `toml:"typing"`
}

// Server locates the chat server and identifies the local user.
type Server struct {
	WSURL  string `toml:"ws_url"`
	APIURL string `toml:"api_url"`
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
}

// Reconnect is the transport backoff policy.
type Reconnect struct {
	MinDelay     Duration `toml:"min_delay"`
	MaxDelay     Duration `toml:"max_delay"`
	GrowthFactor float64  `toml:"growth_factor"`
	MaxRetries   int      `toml:"max_retries"`
}

type Typing struct {
	IdleTimeout Duration `toml:"idle_timeout"`
}

// Duration decodes TOML strings like "1.5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: Server{
			WSURL:  "ws://localhost:3000/ws",
			APIURL: "http://localhost:3000/api",
		},
		Reconnect: Reconnect{
			MinDelay:     Duration{time.Second},
			MaxDelay:     Duration{10 * time.Second},
			GrowthFactor: 1.5,
			MaxRetries:   10,
		},
		Typing: Typing{IdleTimeout: Duration{3 * time.Second}},
	}
}

// WithDefaults returns a copy of cfg with every zero value replaced by its
// default.
func (c *Config) WithDefaults() *Config {
	out := *c
	def := Default()
	if out.Server.WSURL == "" {
		out.Server.WSURL = def.Server.WSURL
	}
	if out.Server.APIURL == "" {
		out.Server.APIURL = def.Server.APIURL
	}
	if out.Reconnect.MinDelay.Duration == 0 {
		out.Reconnect.MinDelay = def.Reconnect.MinDelay
	}
	if out.Reconnect.MaxDelay.Duration == 0 {
		out.Reconnect.MaxDelay = def.Reconnect.MaxDelay
	}
	if out.Reconnect.GrowthFactor == 0 {
		out.Reconnect.GrowthFactor = def.Reconnect.GrowthFactor
	}
	if out.Reconnect.MaxRetries == 0 {
		out.Reconnect.MaxRetries = def.Reconnect.MaxRetries
	}
	if out.Typing.IdleTimeout.Duration == 0 {
		out.Typing.IdleTimeout = def.Typing.IdleTimeout
	}
	return &out
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if u, perr := url.Parse(c.Server.WSURL); perr != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		err = multierr.Append(err, fmt.Errorf("server.ws_url %q: want a ws:// or wss:// url", c.Server.WSURL))
	}
	if u, perr := url.Parse(c.Server.APIURL); perr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		err = multierr.Append(err, fmt.Errorf("server.api_url %q: want an http:// or https:// url", c.Server.APIURL))
	}
	if c.Reconnect.MinDelay.Duration <= 0 {
		err = multierr.Append(err, errors.New("reconnect.min_delay must be positive"))
	}
	if c.Reconnect.MaxDelay.Duration < c.Reconnect.MinDelay.Duration {
		err = multierr.Append(err, errors.New("reconnect.max_delay must not be below min_delay"))
	}
	if c.Reconnect.GrowthFactor < 1 {
		err = multierr.Append(err, errors.New("reconnect.growth_factor must be at least 1"))
	}
	if c.Reconnect.MaxRetries < 0 {
		err = multierr.Append(err, errors.New("reconnect.max_retries must not be negative"))
	}
	if c.Typing.IdleTimeout.Duration <= 0 {
		err = multierr.Append(err, errors.New("typing.idle_timeout must be positive"))
	}
	return err
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads path, falling back to Default when the file does not
// exist. The result has defaults applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
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
