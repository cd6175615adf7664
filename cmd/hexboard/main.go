package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/agent-racer/hexboard/internal/app"
	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/config"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/agent-racer/hexboard/internal/logging"
	"github.com/agent-racer/hexboard/internal/metrics"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type flags struct {
	configPath  string
	url         string
	apiURL      string
	logLevel    string
	logFile     string
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "hexboard",
		Short: "Hex-grid dashboard for local coding-agent sessions",
		Long: `hexboard connects to an agent session backend and shows every session
as a zone on a hex grid, animating tool activity as it happens.

Configuration is read from --config (YAML, TOML or JSONC); flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	bindFlags(cmd.Flags(), &f)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, f *flags) {
	fs.StringVarP(&f.configPath, "config", "c", defaultConfigPath(), "Path to config file")
	fs.StringVar(&f.url, "url", config.DefaultServerURL, "WebSocket URL of the backend")
	fs.StringVar(&f.apiURL, "api-url", "", "REST base URL (derived from --url when empty)")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFile, "log-file", "", "Write logs to this file")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(fs *pflag.FlagSet, f flags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return nil, err
	}
	if fs.Changed("url") {
		cfg.Server.URL = f.url
	}
	if fs.Changed("api-url") {
		cfg.Server.APIURL = f.apiURL
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("log-file") {
		cfg.Log.File = f.logFile
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hexboard", "config.yaml")
}

func run(cfg *config.Config) error {
	// The terminal belongs to Bubble Tea: without a log file, logs go nowhere.
	opts := logging.Options{App: "hexboard", Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if cfg.Log.File == "" {
		opts.Out = io.Discard
	}
	log, closer, err := logging.New(opts)
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.Metrics.Addr != "" {
		serveMetrics(cfg.Metrics.Addr, log)
	}

	ping := cfg.Transport.PingInterval.Std()
	if ping == 0 {
		ping = -1
	}
	transport := client.NewTransport(client.TransportOptions{
		ReconnectDelay: cfg.Transport.ReconnectDelay.Std(),
		HistoryLimit:   cfg.Transport.HistoryLimit,
		PingInterval:   ping,
		Logger:         log,
	})

	m := app.New(app.Options{
		Transport:      transport,
		API:            client.NewAPIClient(cfg.APIBase()),
		Endpoint:       cfg.Server.URL,
		Layout:         hex.NewLayout(cfg.Grid.CellRadius, cfg.Grid.Gap),
		MaxRadius:      cfg.Grid.MaxRadius,
		FeedSize:       cfg.Feed.MaxEntries,
		HistoryLimit:   cfg.Transport.HistoryLimit,
		ReconnectDelay: cfg.Transport.ReconnectDelay.Std(),
		Logger:         log,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	detach := app.Attach(p, transport)
	defer detach()
	defer transport.Disconnect()

	log.Info().Str("url", cfg.Server.URL).Str("api", cfg.APIBase()).Msg("starting")
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func serveMetrics(addr string, log zerolog.Logger) {
	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		err := http.ListenAndServe(addr, mux)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
}
