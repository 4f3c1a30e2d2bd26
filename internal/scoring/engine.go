package scoring

import (
	"context"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"
	"leadlynx/internal/locker"

	"github.com/pterm/pterm"
)

// Change describes a category score movement caused by one operation
type Change struct {
	VisitorID  uint `json:"visitor_id"`
	CategoryID uint `json:"category_id"`
	Old        int  `json:"old"`
	New        int  `json:"new"`
}

// RankedScore pairs a score with its row
type RankedScore struct {
	Score           int                     `json:"score"`
	Categoryscoring *models.Categoryscoring `json:"categoryscoring"`
}

// Engine maintains per-visitor category scores together with the visitor total.
//
// The exported mutations lock the visitor and open their own transaction.
// The Apply variants run inside a caller's transaction and expect the caller
// to already hold the visitor lock.
type Engine struct {
	store  *repositories.Store
	locks  *locker.Keyed
	logger *pterm.Logger
}

func NewEngine(store *repositories.Store, locks *locker.Keyed, logger *pterm.Logger) *Engine {
	return &Engine{store: store, locks: locks, logger: logger}
}

// SetScore sets an absolute category score. Unknown visitors or categories are hard failures.
func (e *Engine) SetScore(ctx context.Context, visitorID, categoryID uint, value int) (*Change, error) {
	unlock := e.locks.Lock(visitorID)
	defer unlock()

	var change *Change
	err := e.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := e.checkTargets(ctx, tx, visitorID, categoryID); err != nil {
			return err
		}
		var err error
		change, err = e.ApplySet(ctx, tx, visitorID, categoryID, value)
		return err
	})
	if err != nil {
		e.logger.WithCaller().Error("Failed to set category score",
			e.logger.Args("visitor_id", visitorID, "category_id", categoryID, "error", err))
		return nil, err
	}
	return change, nil
}

// Increment adds delta (may be negative) to a category score
func (e *Engine) Increment(ctx context.Context, visitorID, categoryID uint, delta int) (*Change, error) {
	unlock := e.locks.Lock(visitorID)
	defer unlock()

	var change *Change
	err := e.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := e.checkTargets(ctx, tx, visitorID, categoryID); err != nil {
			return err
		}
		var err error
		change, err = e.ApplyIncrement(ctx, tx, visitorID, categoryID, delta)
		return err
	})
	if err != nil {
		e.logger.WithCaller().Error("Failed to increment category score",
			e.logger.Args("visitor_id", visitorID, "category_id", categoryID, "delta", delta, "error", err))
		return nil, err
	}
	return change, nil
}

// checkTargets rejects unknown visitors and categories, and blacklisted visitors,
// whose scoring stays at zero.
func (e *Engine) checkTargets(ctx context.Context, tx *repositories.Store, visitorID, categoryID uint) error {
	visitor, err := tx.Visitors.FindByID(ctx, visitorID)
	if err != nil {
		return err
	}
	if visitor.Blacklisted {
		return errs.Validation("visitor", "blacklisted")
	}
	_, err = tx.Catalog.FindCategory(ctx, categoryID)
	return err
}

// ApplySet looks the row up by exact (visitor, category) and overwrites or creates it.
// The visitor total moves by the difference.
func (e *Engine) ApplySet(ctx context.Context, tx *repositories.Store, visitorID, categoryID uint, value int) (*Change, error) {
	change := &Change{VisitorID: visitorID, CategoryID: categoryID, New: value}

	cs, err := tx.Categoryscorings.FindByVisitorAndCategory(ctx, visitorID, categoryID)
	switch {
	case err == nil:
		change.Old = cs.Scoring
		cs.Scoring = value
		if err := tx.Categoryscorings.Update(ctx, cs); err != nil {
			return nil, err
		}
	case errs.IsNotFound(err):
		cs = &models.Categoryscoring{VisitorID: visitorID, CategoryID: categoryID, Scoring: value}
		if err := tx.Categoryscorings.Add(ctx, cs); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := tx.Visitors.AddScoring(ctx, visitorID, change.New-change.Old); err != nil {
		return nil, err
	}

	e.logger.Trace("Category score set",
		e.logger.Args("visitor_id", visitorID, "category_id", categoryID, "old", change.Old, "new", change.New))
	return change, nil
}

// ApplyIncrement uses atomic increments for both the category row and the visitor total
func (e *Engine) ApplyIncrement(ctx context.Context, tx *repositories.Store, visitorID, categoryID uint, delta int) (*Change, error) {
	change := &Change{VisitorID: visitorID, CategoryID: categoryID}

	cs, err := tx.Categoryscorings.FindByVisitorAndCategory(ctx, visitorID, categoryID)
	switch {
	case err == nil:
		if err := tx.Categoryscorings.AddScoring(ctx, cs.ID, delta); err != nil {
			return nil, err
		}
	case errs.IsNotFound(err):
		cs = &models.Categoryscoring{VisitorID: visitorID, CategoryID: categoryID, Scoring: delta}
		err = tx.Categoryscorings.Add(ctx, cs)
		if errs.IsConflict(err) {
			// Another process created the row first
			existing, findErr := tx.Categoryscorings.FindByVisitorAndCategory(ctx, visitorID, categoryID)
			if findErr != nil {
				return nil, findErr
			}
			err = tx.Categoryscorings.AddScoring(ctx, existing.ID, delta)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	fresh, err := tx.Categoryscorings.FindByVisitorAndCategory(ctx, visitorID, categoryID)
	if err != nil {
		return nil, err
	}
	change.New = fresh.Scoring
	change.Old = fresh.Scoring - delta

	if err := tx.Visitors.AddScoring(ctx, visitorID, delta); err != nil {
		return nil, err
	}

	e.logger.Trace("Category score incremented",
		e.logger.Args("visitor_id", visitorID, "category_id", categoryID, "delta", delta, "new", change.New))
	return change, nil
}

// RankedScores orders the visitor's category scores descending. On equal
// scores the later-registered row comes first.
func (e *Engine) RankedScores(ctx context.Context, visitorID uint) ([]RankedScore, error) {
	scorings, err := e.store.Categoryscorings.ListByVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	ranked := make([]RankedScore, 0, len(scorings))
	for _, cs := range scorings {
		ranked = append(ranked, RankedScore{Score: cs.Scoring, Categoryscoring: cs})
	}
	return ranked, nil
}

// HottestCategory returns the first ranked entry, nil when the visitor has no scores
func (e *Engine) HottestCategory(ctx context.Context, visitorID uint) (*models.Categoryscoring, error) {
	ranked, err := e.RankedScores(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	return ranked[0].Categoryscoring, nil
}

// HottestLeads ranks visitors by the denormalized total
func (e *Engine) HottestLeads(ctx context.Context, limit int) ([]*models.Visitor, error) {
	return e.store.Visitors.HottestLeads(ctx, limit)
}

// HottestLead returns the top lead or nil for an empty population
func (e *Engine) HottestLead(ctx context.Context) (*models.Visitor, error) {
	leads, err := e.HottestLeads(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return leads[0], nil
}
