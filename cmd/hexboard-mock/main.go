package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-racer/hexboard/internal/logging"
	"github.com/agent-racer/hexboard/internal/mock"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr        string
		tick        time.Duration
		throttle    time.Duration
		historySize int
		seed        int64
		empty       bool
		logLevel    string
		logFormat   string
	)

	cmd := &cobra.Command{
		Use:   "hexboard-mock",
		Short: "Serve synthetic agent sessions for hexboard development",
		Long: `hexboard-mock serves the session WebSocket and REST API with a set of
simulated sessions that cycle through statuses and emit tool events.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, closer, err := logging.New(logging.Options{App: "hexboard-mock", Level: logLevel, Format: logFormat})
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := mock.NewStore(historySize)
			hub := mock.NewHub(store, throttle, log)
			gen := mock.NewGenerator(store, hub, mock.GeneratorOptions{Interval: tick, Seed: seed, Logger: log})
			if !empty {
				gen.Seed()
			}
			gen.Start(ctx)

			srv := mock.NewServer(store, hub, gen, mock.ServerOptions{Version: version, Logger: log})
			httpSrv := &http.Server{Addr: addr, Handler: srv.Routes()}
			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			log.Info().Str("addr", addr).Int("sessions", store.Len()).Msg("mock backend listening")

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen %s: %w", addr, err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&addr, "addr", "a", "127.0.0.1:8080", "Listen address")
	f.DurationVar(&tick, "tick", mock.DefaultTickInterval, "Simulation step interval")
	f.DurationVar(&throttle, "throttle", 100*time.Millisecond, "Coalesce snapshot broadcasts over this window")
	f.IntVar(&historySize, "history", mock.DefaultHistorySize, "Events kept for get_history")
	f.Int64Var(&seed, "seed", 0, "Random seed (0 picks one)")
	f.BoolVar(&empty, "empty", false, "Start without demo sessions")
	f.StringVar(&logLevel, "log-level", "info", "Log level")
	f.StringVar(&logFormat, "log-format", "console", "Log format (console or json)")
	return cmd
}
