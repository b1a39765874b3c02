// Package app connects a client session from the configuration file. Both
// front-ends (terminal and MCP) go through Open.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/client"
	"github.com/peterkuimelis/colonia/internal/config"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/journal"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/net"
	"github.com/peterkuimelis/colonia/internal/store"
)

// History is the player-facing event log of a session.
type History interface {
	log.EventLogger
	Drain() []log.GameEvent
}

// App owns a connected session and the files it writes.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Conn    *net.Connection
	Session *client.Session
	History History

	journal *journal.Writer
	saves   *store.Store
	histf   *os.File
}

// Open dials cfg.Server and builds a session that talks to p. The session
// is not logged in yet.
func Open(ctx context.Context, cfg config.Config, p gui.Presenter, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.openFiles(); err != nil {
		_ = a.closeFiles()
		return nil, err
	}

	rwc, err := net.Dial(ctx, cfg.Server)
	if err != nil {
		_ = a.closeFiles()
		return nil, err
	}
	opts := net.Options{
		Name:      "server",
		Logger:    logger,
		RateLimit: cfg.RateLimit.PerSecond,
		Burst:     cfg.RateLimit.Burst,
	}
	if a.journal != nil {
		opts.Recorder = a.journal
	}
	a.Conn = net.NewConnection(rwc, opts)

	copts := client.Options{
		Name:        cfg.Name,
		Logger:      logger,
		Presenter:   p,
		Events:      a.History,
		AutoEndTurn: cfg.AutoEndTurn,
		IgnoreFor:   cfg.Messages.IgnoreFor,
		Suppress:    cfg.Messages.Suppress,
	}
	if a.saves != nil {
		copts.Autosave = a.saves
		copts.AutosaveEvery = cfg.Autosave.EveryTurns
		copts.AutosaveKeep = cfg.Autosave.Keep
	}
	a.Session = client.New(a.Conn, copts)
	a.Conn.Start()
	logger.Info("connected",
		zap.String("server", cfg.Server),
		zap.String("session", a.Session.ID()),
		zap.Bool("journal", a.journal != nil),
		zap.Bool("autosave", a.saves != nil))
	return a, nil
}

func (a *App) openFiles() error {
	cfg := a.Config
	if cfg.Journal.Path != "" {
		w, err := journal.Create(cfg.Journal.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.journal = w
	}
	if cfg.Autosave.EveryTurns > 0 {
		st, err := store.Open(cfg.Autosave.Path)
		if err != nil {
			return fmt.Errorf("open autosave store: %w", err)
		}
		a.saves = st
	}
	a.History = log.NewTextLogger(io.Discard)
	if cfg.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(cfg.History.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		a.histf = f
		a.History = log.NewTextLogger(f)
	}
	return nil
}

// Saves returns the autosave store, nil when autosave is off.
func (a *App) Saves() *store.Store { return a.saves }

// Close ends the session and flushes the journal.
func (a *App) Close() error {
	var errs []error
	if a.Session != nil {
		if err := a.Session.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeFiles())
	return errors.Join(errs...)
}

func (a *App) closeFiles() error {
	var errs []error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if a.saves != nil {
		errs = append(errs, a.saves.Close())
	}
	if a.histf != nil {
		errs = append(errs, a.histf.Close())
	}
	return errors.Join(errs...)
}
