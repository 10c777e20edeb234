package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/tourneyhub/gamecore/internal/config"
	"github.com/tourneyhub/gamecore/internal/events"
	"github.com/tourneyhub/gamecore/internal/httpapi"
	"github.com/tourneyhub/gamecore/internal/result"
	"github.com/tourneyhub/gamecore/internal/session"
)

// ServerCmd runs the HTTP server. Environment variables cover the deployment
// surface; the HCL file carries game tuning.
type ServerCmd struct {
	Addr              string `kong:"env='LISTEN_ADDR',help='HTTP listen address (overrides config)'"`
	Config            string `kong:"type='path',help='Path to HCL tuning file'"`
	Debug             bool   `kong:"help='Enable debug logging'"`
	SignerURL         string `kong:"env='SIGNER_URL',help='Signing service base URL (overrides config)'"`
	ContractRelayURL  string `kong:"env='CONTRACT_RELAY_URL',help='Contract relay base URL (overrides config)'"`
	RetentionSeconds  int    `kong:"env='SESSION_RETENTION_SECONDS',help='Ended session retention (overrides config)'"`
	ArenaTickMs       int    `kong:"env='ARENA_TICK_MS',help='Arena tick period in milliseconds (overrides config)'"`
	ChessClockSeconds int    `kong:"env='CHESS_CLOCK_SECONDS',help='Per-side chess clock in seconds (overrides config)'"`
	Seed              *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := log.InfoLevel
	if c.Debug || cfg.Server.LogLevel == "debug" {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})

	clock := quartz.NewReal()
	feed := events.NewFeed(cfg.Server.EventBufferSize)
	signer := result.NewClient(
		cfg.Server.SignerURL,
		cfg.Server.ContractRelayURL,
		time.Duration(cfg.Server.SignerTimeoutMs)*time.Millisecond,
		cfg.Server.SignerRetries,
		logger,
	)
	registry := session.NewRegistry(cfg, clock, signer, feed, logger)
	defer registry.Close()

	api := httpapi.New(registry, feed, time.Duration(cfg.Server.RequestTimeoutMs)*time.Millisecond, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.Handler(),
	}

	logger.Info("starting gamecore server",
		"addr", cfg.Server.ListenAddr,
		"signer", cfg.Server.SignerURL,
		"relay", cfg.Server.ContractRelayURL,
		"retention_seconds", cfg.Server.RetentionSeconds,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunGC(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// applyOverrides layers env/flag values over the file config.
func (c *ServerCmd) applyOverrides(cfg *config.Config) {
	if c.Addr != "" {
		cfg.Server.ListenAddr = c.Addr
	}
	if c.SignerURL != "" {
		cfg.Server.SignerURL = c.SignerURL
	}
	if c.ContractRelayURL != "" {
		cfg.Server.ContractRelayURL = c.ContractRelayURL
	}
	if c.RetentionSeconds > 0 {
		cfg.Server.RetentionSeconds = c.RetentionSeconds
	}
	if c.ArenaTickMs > 0 {
		cfg.Arena.TickMs = c.ArenaTickMs
	}
	if c.ChessClockSeconds > 0 {
		cfg.Chess.ClockSeconds = c.ChessClockSeconds
	}
	if c.Seed != nil {
		cfg.Seed = *c.Seed
	}
}
