package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/config"
	"github.com/shishobooks/shelfscan/pkg/contentid"
	"github.com/shishobooks/shelfscan/pkg/database"
	"github.com/shishobooks/shelfscan/pkg/migrations"
	"github.com/shishobooks/shelfscan/pkg/pages"
	"github.com/shishobooks/shelfscan/pkg/registry"
	"github.com/shishobooks/shelfscan/pkg/scanner"
	"github.com/shishobooks/shelfscan/pkg/volumes"
	"github.com/uptrace/bun"
)

// app is everything a command needs, built from the config.
type app struct {
	config     *config.Config
	db         *bun.DB
	registry   *registry.Service
	identifier *volumes.Identifier
	scanner    *scanner.Scanner
}

// openDB loads the config and opens the catalog without migrating it.
func openDB() (*config.Config, *bun.DB, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newApp(ctx context.Context) (*app, error) {
	log := logger.FromContext(ctx)

	cfg, db, err := openDB()
	if err != nil {
		return nil, err
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrations error")
	}
	if group.ID != 0 {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	reg := registry.NewService(db)
	identifier := volumes.NewSystemIdentifier()
	if err := identifier.Refresh(ctx); err != nil {
		// Resolution refreshes again on demand.
		log.Err(err).Warn("initial volume enumeration failed")
	}
	calc := contentid.NewCalculator(pages.NewSource(), cfg.ThumbnailWidth, cfg.ThumbnailHeight)

	return &app{
		config:     cfg,
		db:         db,
		registry:   reg,
		identifier: identifier,
		scanner:    scanner.New(cfg, reg, identifier, calc),
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.db.Close(); err != nil {
		logger.FromContext(ctx).Err(err).Error("database close error")
	}
}

// roots returns the command line roots, or the configured ones.
func (a *app) roots(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(a.config.ScanRoots) == 0 {
		return nil, errors.New("no roots given and scan_roots is not configured")
	}
	return a.config.ScanRoots, nil
}
