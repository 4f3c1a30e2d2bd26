package main

import (
	"leadlynx/internal/database"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/locker"
	"leadlynx/internal/scoring"
	"leadlynx/internal/tracking"

	"gorm.io/gorm"
)

// app holds the components shared by every command
type app struct {
	db          *gorm.DB
	store       *repositories.Store
	locks       *locker.Keyed
	calc        *scoring.Calculator
	engine      *scoring.Engine
	registry    *tracking.Registry
	recorder    *tracking.Recorder
	blacklister *tracking.Blacklister
	rescorer    *tracking.Rescorer
}

func openApp() (*app, error) {
	db, err := database.NewConnection(cfg.DatabaseConnection(), logger)
	if err != nil {
		return nil, err
	}

	store := repositories.NewStore(db)
	locks := locker.NewKeyed()
	calc := scoring.NewCalculator(cfg.Scoring.Factors, cfg.Scoring.Deltas)
	engine := scoring.NewEngine(store, locks, logger)
	registry := tracking.NewRegistry(store, locks, calc, logger)

	return &app{
		db:          db,
		store:       store,
		locks:       locks,
		calc:        calc,
		engine:      engine,
		registry:    registry,
		recorder:    tracking.NewRecorder(store, engine, calc, registry, locks, logger),
		blacklister: tracking.NewBlacklister(store, locks, logger),
		rescorer:    tracking.NewRescorer(store, locks, calc, logger, 0, 0),
	}, nil
}

func (a *app) cleanupService() *database.CleanupService {
	return database.NewCleanupService(a.db, a.locks, logger,
		cfg.Cleanup.UnknownDays, cfg.Cleanup.Interval, cfg.Cleanup.Time, cfg.Cleanup.Vacuum)
}

func (a *app) Close() {
	if err := database.Close(a.db); err != nil {
		logger.Warn("Failed to close database", logger.Args("error", err))
	}
}
