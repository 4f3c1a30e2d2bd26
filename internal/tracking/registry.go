package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"
	"leadlynx/internal/locker"
	"leadlynx/internal/scoring"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"golang.org/x/sync/singleflight"
)

const (
	maxFingerprintLength = 255
	resolveAttempts      = 3
)

// Registry maps fingerprints to visitors
type Registry struct {
	store  *repositories.Store
	locks  *locker.Keyed
	calc   *scoring.Calculator
	logger *pterm.Logger
	flight singleflight.Group
}

func NewRegistry(store *repositories.Store, locks *locker.Keyed, calc *scoring.Calculator, logger *pterm.Logger) *Registry {
	return &Registry{store: store, locks: locks, calc: calc, logger: logger}
}

type resolved struct {
	visitor *models.Visitor
	created bool
}

// ResolveOrCreate returns the visitor owning the fingerprint, creating both on first contact.
// Concurrent first contacts within the process share one lookup; across processes the unique
// index on the fingerprint value turns the losing insert into a retry.
func (r *Registry) ResolveOrCreate(ctx context.Context, value, userAgent string) (*models.Visitor, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, false, errs.Validation("fingerprint", "must not be empty")
	}
	if len(value) > maxFingerprintLength {
		return nil, false, errs.Validation("fingerprint", fmt.Sprintf("longer than %d characters", maxFingerprintLength))
	}

	// Waiters share one lookup, it must not inherit the first caller's cancellation
	flightCtx := context.WithoutCancel(ctx)
	result, err, _ := r.flight.Do(value, func() (interface{}, error) {
		return r.resolve(flightCtx, value, userAgent)
	})
	if err != nil {
		return nil, false, err
	}

	res := result.(*resolved)
	visitor := *res.visitor
	return &visitor, res.created, nil
}

func (r *Registry) resolve(ctx context.Context, value, userAgent string) (*resolved, error) {
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		visitor, err := r.store.Visitors.FindByFingerprint(ctx, value)
		if err == nil {
			return &resolved{visitor: visitor}, nil
		}
		if !errs.IsNotFound(err) {
			return nil, err
		}

		visitor, err = r.create(ctx, value, userAgent)
		if err == nil {
			r.logger.Debug("Created visitor for new fingerprint",
				r.logger.Args("visitor_id", visitor.ID))
			return &resolved{visitor: visitor, created: true}, nil
		}
		if !errs.IsConflict(err) {
			return nil, err
		}

		r.logger.Trace("Fingerprint created concurrently, retrying lookup",
			r.logger.Args("attempt", attempt))
	}
	return nil, errs.Persistence("resolve fingerprint", fmt.Errorf("gave up after %d conflicting attempts", resolveAttempts))
}

func (r *Registry) create(ctx context.Context, value, userAgent string) (*models.Visitor, error) {
	visitor := &models.Visitor{}
	err := r.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Visitors.Add(ctx, visitor); err != nil {
			return err
		}
		fingerprint := &models.Fingerprint{VisitorID: visitor.ID, Value: value, UserAgent: userAgent}
		if err := tx.Fingerprints.Add(ctx, fingerprint); err != nil {
			return err
		}
		return tx.Facts.AddLog(ctx, &models.Log{VisitorID: visitor.ID, Status: models.LogStatusNewVisitor})
	})
	if err != nil {
		return nil, err
	}
	return visitor, nil
}

// FingerprintsSorted returns the visitor's fingerprints, newest first
func (r *Registry) FingerprintsSorted(ctx context.Context, visitorID uint) ([]*models.Fingerprint, error) {
	return r.store.Fingerprints.ListByVisitor(ctx, visitorID)
}

// MergeFingerprints folds source into target: fingerprints and facts are
// reattached, category scores summed per category and the target totals
// recomputed. The source row is removed afterwards.
func (r *Registry) MergeFingerprints(ctx context.Context, sourceID, targetID uint) (*models.Visitor, error) {
	if sourceID == targetID {
		return nil, errs.Validation("target", "source and target visitor are the same")
	}

	unlock := r.locks.LockMany(sourceID, targetID)
	defer unlock()

	var merged *models.Visitor
	err := r.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		merged, err = mergeVisitors(ctx, tx, r.calc, sourceID, targetID)
		return err
	})
	if err != nil {
		r.logger.WithCaller().Error("Failed to merge visitors",
			r.logger.Args("source_id", sourceID, "target_id", targetID, "error", err))
		return nil, err
	}

	r.logger.Info("Merged visitors", r.logger.Args("source_id", sourceID, "target_id", targetID))
	return merged, nil
}

// mergeVisitors runs inside a transaction with both visitors locked
func mergeVisitors(ctx context.Context, tx *repositories.Store, calc *scoring.Calculator, sourceID, targetID uint) (*models.Visitor, error) {
	source, err := tx.Visitors.FindByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := tx.Visitors.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if source.Blacklisted || target.Blacklisted {
		return nil, errs.Validation("visitor", "blacklisted visitors cannot be merged")
	}

	moved, err := tx.Fingerprints.Reassign(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	if err := tx.Facts.ReassignAll(ctx, sourceID, targetID); err != nil {
		return nil, err
	}

	scorings, err := tx.Categoryscorings.ListByVisitor(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	for _, cs := range scorings {
		existing, err := tx.Categoryscorings.FindByVisitorAndCategory(ctx, targetID, cs.CategoryID)
		switch {
		case err == nil:
			if err := tx.Categoryscorings.AddScoring(ctx, existing.ID, cs.Scoring); err != nil {
				return nil, err
			}
		case errs.IsNotFound(err):
			if err := tx.Categoryscorings.Reassign(ctx, cs.ID, targetID); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	if target.Email == "" && source.Email != "" {
		target.Email = source.Email
	}
	target.Identified = target.Identified || source.Identified
	if target.IPAddress == "" {
		target.IPAddress = source.IPAddress
	}
	if err := tx.Visitors.Update(ctx, target); err != nil {
		return nil, err
	}

	// Drops the leftover category rows that were summed into the target
	if err := tx.Visitors.Delete(ctx, sourceID); err != nil {
		return nil, err
	}

	properties, _ := json.Marshal(map[string]interface{}{
		"source_id":    sourceID,
		"fingerprints": moved,
		"merged_at":    time.Now().Format(time.RFC3339),
	})
	if err := tx.Facts.AddLog(ctx, &models.Log{VisitorID: targetID, Status: models.LogStatusMerged, Properties: string(properties)}); err != nil {
		return nil, err
	}

	if _, err := recompute(ctx, tx, calc, targetID); err != nil {
		return nil, err
	}
	return tx.Visitors.FindByID(ctx, targetID)
}
