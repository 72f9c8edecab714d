package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/auth"
	"github.com/harrisonrobin/taskboard/pkg/colors"
	"github.com/harrisonrobin/taskboard/pkg/config"
	"github.com/harrisonrobin/taskboard/pkg/google"
	"github.com/harrisonrobin/taskboard/pkg/index"
	"github.com/harrisonrobin/taskboard/pkg/sqlstore"
	"github.com/harrisonrobin/taskboard/pkg/store"
)

// backend is the configured fallback chain plus whatever must be closed
// when the command finishes.
type backend struct {
	chain   *store.Chain
	closers []func() error
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}
	var candidates []store.Candidate
	for _, name := range cfg.Backends {
		switch name {
		case config.BackendMemory:
			candidates = append(candidates, store.Candidate{Name: name, Store: store.NewMemory()})

		case config.BackendSQLite:
			db, err := sqlstore.Open(cfg.SQLite.Path)
			if err != nil {
				b.Close()
				return nil, err
			}
			b.closers = append(b.closers, db.Close)
			candidates = append(candidates, store.Candidate{Name: name, Store: db})

		case config.BackendGoogle:
			client, err := openGoogle(ctx, cfg, logger)
			if err != nil {
				// The rest of the chain and the pending queue still work.
				logger.Warn("google calendar backend disabled", zap.Error(err))
				continue
			}
			b.closers = append(b.closers, client.Close)
			candidates = append(candidates, store.Candidate{Name: name, Store: client})
		}
	}
	b.chain = store.NewChain(logger, candidates...)
	logger.Debug("backend chain ready", zap.Strings("candidates", b.chain.Names()))
	return b, nil
}

func openGoogle(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*google.CalendarClient, error) {
	credDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	// Without a cached token the OAuth flow would wait for a browser.
	if _, err := os.Stat(filepath.Join(credDir, auth.TokenFile)); err != nil {
		return nil, fmt.Errorf("not authorized, run 'taskboard auth': %w", err)
	}
	srv, err := auth.GetCalendarService(ctx, credDir, logger)
	if err != nil {
		return nil, err
	}

	cacheDir := filepath.Join(cfg.DataDir, "google")
	idx, err := index.Open(cacheDir)
	if err != nil {
		return nil, err
	}
	cc, err := colors.Open(cacheDir)
	if err != nil {
		return nil, err
	}
	return google.NewClient(ctx, srv, cfg.Calendar, idx, cc, logger)
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
