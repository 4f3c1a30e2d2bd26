package tracking_test

import (
	"context"
	"testing"

	"leadlynx/internal/database/dbtest"
	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/locker"
	"leadlynx/internal/scoring"
	"leadlynx/internal/tracking"
)

type fixture struct {
	store       *repositories.Store
	locks       *locker.Keyed
	calc        *scoring.Calculator
	engine      *scoring.Engine
	registry    *tracking.Registry
	recorder    *tracking.Recorder
	blacklister *tracking.Blacklister
	rescorer    *tracking.Rescorer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := dbtest.Logger()
	store := repositories.NewStore(dbtest.Open(t))
	locks := locker.NewKeyed()
	calc := scoring.NewCalculator(scoring.DefaultFactors(), scoring.DefaultCategoryDeltas())
	engine := scoring.NewEngine(store, locks, logger)
	registry := tracking.NewRegistry(store, locks, calc, logger)

	return &fixture{
		store:       store,
		locks:       locks,
		calc:        calc,
		engine:      engine,
		registry:    registry,
		recorder:    tracking.NewRecorder(store, engine, calc, registry, locks, logger),
		blacklister: tracking.NewBlacklister(store, locks, logger),
		rescorer:    tracking.NewRescorer(store, locks, calc, logger, 2, 2),
	}
}

func (f *fixture) visitor(t *testing.T, fingerprint string) *models.Visitor {
	t.Helper()
	v, _, err := f.registry.ResolveOrCreate(context.Background(), fingerprint, "test-agent")
	if err != nil {
		t.Fatalf("Failed to resolve fingerprint %q: %v", fingerprint, err)
	}
	return v
}

func (f *fixture) category(t *testing.T, title string) *models.Category {
	t.Helper()
	c := &models.Category{Title: title}
	if err := f.store.Catalog.AddCategory(context.Background(), c); err != nil {
		t.Fatalf("Failed to add category: %v", err)
	}
	return c
}

func (f *fixture) page(t *testing.T, id uint, category *models.Category) *models.Page {
	t.Helper()
	p := &models.Page{ID: id, Title: "Page"}
	if category != nil {
		p.CategoryID = &category.ID
	}
	if err := f.store.Catalog.SavePage(context.Background(), p); err != nil {
		t.Fatalf("Failed to save page: %v", err)
	}
	return p
}

func (f *fixture) reload(t *testing.T, id uint) *models.Visitor {
	t.Helper()
	v, err := f.store.Visitors.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to reload visitor %d: %v", id, err)
	}
	return v
}
