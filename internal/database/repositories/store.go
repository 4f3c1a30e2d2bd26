package repositories

import (
	"context"

	"leadlynx/internal/errs"

	"gorm.io/gorm"
)

// Store bundles the repositories bound to one database handle,
// either the connection pool or an open transaction.
type Store struct {
	db *gorm.DB

	Visitors         VisitorRepository
	Fingerprints     FingerprintRepository
	Categoryscorings CategoryscoringRepository
	Facts            FactRepository
	Catalog          CatalogRepository
	IPLookups        IPLookupRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:               db,
		Visitors:         NewVisitorRepository(db),
		Fingerprints:     NewFingerprintRepository(db),
		Categoryscorings: NewCategoryscoringRepository(db),
		Facts:            NewFactRepository(db),
		Catalog:          NewCatalogRepository(db),
		IPLookups:        NewIPLookupRepository(db),
	}
}

// DB exposes the underlying handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to a single transaction.
// Everything inside fn must go through tx, never through the outer Store.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(NewStore(db))
	})
	if err == nil {
		return nil
	}
	// Typed errors from fn pass through untouched
	if errs.IsNotFound(err) || errs.IsConflict(err) || errs.IsValidation(err) || errs.IsPersistence(err) {
		return err
	}
	return errs.Persistence("transaction", err)
}
