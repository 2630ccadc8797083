// File: cmd/wsrelay/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-wsrelay/server"
)

type rootOptions struct {
	cfg             *server.Config
	logLevel        string
	logFormat       string
	shutdownTimeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{
		cfg:             server.DefaultConfig(),
		logLevel:        "info",
		logFormat:       "console",
		shutdownTimeout: 10 * time.Second,
	}

	cmd := &cobra.Command{
		Use:           "wsrelay",
		Short:         "Relay raw TCP to a fixed downstream after a WebSocket upgrade handshake",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			if err := run(cmd.Context(), logger, opts); err != nil {
				logger.Error().Err(err).Msg("relay stopped")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.cfg.ListenPort, "port", opts.cfg.ListenPort, "port to listen on (all interfaces)")
	f.StringVar(&opts.cfg.Downstream, "downstream", opts.cfg.Downstream, "host:port relayed to after the handshake")
	f.DurationVar(&opts.cfg.DialTimeout, "dial-timeout", opts.cfg.DialTimeout, "downstream connect timeout")
	f.DurationVar(&opts.cfg.HandshakeTimeout, "handshake-timeout", opts.cfg.HandshakeTimeout, "deadline for the upgrade request (0 disables)")
	f.IntVar(&opts.cfg.CopyBufferSize, "buffer-size", opts.cfg.CopyBufferSize, "relay copy buffer size in bytes")
	f.IntVar(&opts.cfg.HistorySize, "history", opts.cfg.HistorySize, "finished sessions kept for /debug/state")
	f.StringVar(&opts.cfg.AdminAddr, "admin-addr", "", "optional listen address for /metrics and /debug/state")
	f.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", opts.logFormat, "log format (console or json)")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", opts.shutdownTimeout, "time allowed for sessions to drain on exit")

	return cmd
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("--log-level: %w", err)
	}
	switch format {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("--log-format: unknown format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func run(ctx context.Context, logger zerolog.Logger, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServer(opts.cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}

	if opts.cfg.AdminAddr != "" {
		admin := &http.Server{
			Addr:              opts.cfg.AdminAddr,
			Handler:           s.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", admin.Addr).Msg("admin endpoint listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("admin endpoint failed")
			}
		}()
		defer admin.Close()
	}

	logger.Info().Int("port", opts.cfg.ListenPort).Msg("websocket relay starting")
	serveErr := s.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete")
	}

	if errors.Is(serveErr, context.Canceled) || errors.Is(serveErr, server.ErrServerClosed) {
		logger.Info().Msg("relay stopped")
		return nil
	}
	return serveErr
}
