package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL = "ws://127.0.0.1:8080/ws"
	DefaultFeedSize  = 200
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Transport TransportConfig `yaml:"transport" toml:"transport" json:"transport"`
	Grid      GridConfig      `yaml:"grid" toml:"grid" json:"grid"`
	Log       LogConfig       `yaml:"log" toml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics" json:"metrics"`
	Feed      FeedConfig      `yaml:"feed" toml:"feed" json:"feed"`
}

type ServerConfig struct {
	URL string `yaml:"url" toml:"url" json:"url"`
	// APIURL is the REST base. Empty derives it from URL.
	APIURL string `yaml:"api_url" toml:"api_url" json:"api_url"`
}

type TransportConfig struct {
	ReconnectDelay Duration `yaml:"reconnect_delay" toml:"reconnect_delay" json:"reconnect_delay"`
	HistoryLimit   int      `yaml:"history_limit" toml:"history_limit" json:"history_limit"`
	// PingInterval of zero disables keepalive pings.
	PingInterval Duration `yaml:"ping_interval" toml:"ping_interval" json:"ping_interval"`
}

type GridConfig struct {
	CellRadius float64 `yaml:"cell_radius" toml:"cell_radius" json:"cell_radius"`
	Gap        float64 `yaml:"gap" toml:"gap" json:"gap"`
	MaxRadius  int     `yaml:"max_radius" toml:"max_radius" json:"max_radius"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	File   string `yaml:"file" toml:"file" json:"file"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr" toml:"addr" json:"addr"`
}

type FeedConfig struct {
	MaxEntries int `yaml:"max_entries" toml:"max_entries" json:"max_entries"`
}

// Duration is a time.Duration read from strings like "2s" in every
// supported format.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: DefaultServerURL,
		},
		Transport: TransportConfig{
			ReconnectDelay: Duration(2 * time.Second),
			HistoryLimit:   100,
			PingInterval:   Duration(30 * time.Second),
		},
		Grid: GridConfig{
			CellRadius: 3.5,
			Gap:        0.2,
			MaxRadius:  20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Feed: FeedConfig{
			MaxEntries: DefaultFeedSize,
		},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml/.yml, .toml, or .json/.jsonc (comments and trailing commas allowed).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Server.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server.url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("server.url: scheme must be ws or wss, got %q", u.Scheme))
	}
	if c.Transport.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("transport.reconnect_delay must be positive"))
	}
	if c.Transport.HistoryLimit <= 0 {
		errs = append(errs, errors.New("transport.history_limit must be positive"))
	}
	if c.Transport.PingInterval < 0 {
		errs = append(errs, errors.New("transport.ping_interval must not be negative"))
	}
	if c.Grid.CellRadius <= 0 {
		errs = append(errs, errors.New("grid.cell_radius must be positive"))
	}
	if c.Grid.Gap < 0 {
		errs = append(errs, errors.New("grid.gap must not be negative"))
	}
	if c.Grid.MaxRadius <= 0 {
		errs = append(errs, errors.New("grid.max_radius must be positive"))
	}
	if c.Feed.MaxEntries <= 0 {
		errs = append(errs, errors.New("feed.max_entries must be positive"))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// APIBase returns the REST base URL: server.api_url when set, otherwise
// the scheme and host of server.url (ws -> http, wss -> https).
func (c *Config) APIBase() string {
	if c.Server.APIURL != "" {
		return strings.TrimRight(c.Server.APIURL, "/")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// Pitch is the center distance between adjacent cells.
func (c *Config) Pitch() float64 {
	return c.Grid.CellRadius + c.Grid.Gap
}
