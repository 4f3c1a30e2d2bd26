package tracking

import (
	"context"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/locker"

	"github.com/pterm/pterm"
)

// Blacklister performs the one-way erasure of a visitor
type Blacklister struct {
	store  *repositories.Store
	locks  *locker.Keyed
	logger *pterm.Logger
	now    func() time.Time
}

func NewBlacklister(store *repositories.Store, locks *locker.Keyed, logger *pterm.Logger) *Blacklister {
	return &Blacklister{store: store, locks: locks, logger: logger, now: time.Now}
}

// Blacklist scrubs the visitor in one transaction and swaps agg's state only
// after the commit. On failure agg is left untouched.
func (b *Blacklister) Blacklist(ctx context.Context, agg *Aggregate) error {
	visitorID := agg.Visitor.ID
	unlock := b.locks.Lock(visitorID)
	defer unlock()

	var erased *models.Visitor
	err := b.store.Transaction(ctx, func(tx *repositories.Store) error {
		current, err := tx.Visitors.FindByID(ctx, visitorID)
		if err != nil {
			return err
		}
		if err := tx.Visitors.RemoveAllRelatedByVisitor(ctx, visitorID); err != nil {
			return err
		}

		scrubbed := *current
		scrubbed.Scoring = 0
		scrubbed.Email = ""
		scrubbed.Identified = false
		scrubbed.Visits = 0
		scrubbed.IPAddress = ""
		scrubbed.Description = "Blacklisted (" + b.now().Format("2006-01-02 15:04:05") + ")"
		scrubbed.Blacklisted = true
		if err := tx.Visitors.Update(ctx, &scrubbed); err != nil {
			return err
		}
		erased = &scrubbed
		return nil
	})
	if err != nil {
		b.logger.WithCaller().Error("Failed to blacklist visitor",
			b.logger.Args("visitor_id", visitorID, "error", err))
		return err
	}

	fingerprints := agg.Fingerprints
	*agg = Aggregate{Visitor: erased, Fingerprints: fingerprints}

	b.logger.Info("Visitor blacklisted", b.logger.Args("visitor_id", visitorID))
	return nil
}

// BlacklistByID loads the visitor and blacklists it
func (b *Blacklister) BlacklistByID(ctx context.Context, visitorID uint) (*Aggregate, error) {
	visitor, err := b.store.Visitors.FindByID(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	fingerprints, err := b.store.Fingerprints.ListByVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	agg := &Aggregate{Visitor: visitor, Fingerprints: fingerprints}
	if err := b.Blacklist(ctx, agg); err != nil {
		return nil, err
	}
	return agg, nil
}
