package tracking

import (
	"context"
	"sync"
	"time"

	"leadlynx/internal/database/repositories"
	"leadlynx/internal/locker"
	"leadlynx/internal/scoring"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
)

// recompute derives visits and scoring from the stored facts and overwrites the visitor totals
func recompute(ctx context.Context, tx *repositories.Store, calc *scoring.Calculator, visitorID uint) (int, error) {
	times, err := tx.Facts.PagevisitTimes(ctx, visitorID)
	if err != nil {
		return 0, err
	}
	counts, err := tx.Facts.Count(ctx, visitorID)
	if err != nil {
		return 0, err
	}
	categorySum, err := tx.Categoryscorings.SumByVisitor(ctx, visitorID)
	if err != nil {
		return 0, err
	}

	sessions := sessionsFor(times)
	total := calc.Total(scoring.Activity{
		Sessions:    sessions,
		Pagevisits:  counts.Pagevisits,
		Newsvisits:  counts.Newsvisits,
		Downloads:   counts.Downloads,
		Linkclicks:  counts.Linkclicks,
		CategorySum: categorySum,
	})

	if err := tx.Visitors.SetTotals(ctx, visitorID, total, sessions); err != nil {
		return 0, err
	}
	return total, nil
}

// ItemError reports a visitor the batch could not rescore
type ItemError struct {
	VisitorID uint   `json:"visitor_id"`
	Error     string `json:"error"`
}

// RescoreReport summarizes a rescoring run. LastID is the highest visitor ID
// of the last fully processed page and can be passed back to resume.
type RescoreReport struct {
	Processed int           `json:"processed"`
	Changed   int           `json:"changed"`
	Failed    []ItemError   `json:"failed"`
	LastID    uint          `json:"last_id"`
	Duration  time.Duration `json:"duration"`
}

// Rescorer recomputes visitor totals outside the request path
type Rescorer struct {
	store     *repositories.Store
	locks     *locker.Keyed
	calc      *scoring.Calculator
	logger    *pterm.Logger
	batchSize int
	workers   int
}

func NewRescorer(store *repositories.Store, locks *locker.Keyed, calc *scoring.Calculator, logger *pterm.Logger, batchSize, workers int) *Rescorer {
	if batchSize <= 0 {
		batchSize = 200
	}
	if workers <= 0 {
		workers = 4
	}
	return &Rescorer{
		store:     store,
		locks:     locks,
		calc:      calc,
		logger:    logger,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Run rescores every non-blacklisted visitor with an ID above afterID.
// Each visitor is its own transaction; a failure is reported and the batch moves on.
func (r *Rescorer) Run(ctx context.Context, afterID uint) (*RescoreReport, error) {
	start := time.Now()
	report := &RescoreReport{LastID: afterID}
	var mu sync.Mutex

	for {
		ids, err := r.store.Visitors.IDsAfter(ctx, report.LastID, r.batchSize)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				changed, err := r.RescoreOne(gctx, id)
				mu.Lock()
				defer mu.Unlock()
				report.Processed++
				if err != nil {
					report.Failed = append(report.Failed, ItemError{VisitorID: id, Error: err.Error()})
					return nil
				}
				if changed {
					report.Changed++
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		report.LastID = ids[len(ids)-1]
		r.logger.Debug("Rescored page",
			r.logger.Args("last_id", report.LastID, "processed", report.Processed, "failed", len(report.Failed)))
	}

	report.Duration = time.Since(start)
	r.logger.Info("Rescoring completed",
		r.logger.Args(
			"processed", report.Processed,
			"changed", report.Changed,
			"failed", len(report.Failed),
			"duration", report.Duration.Round(time.Millisecond),
		))
	return report, nil
}

// RescoreOne recomputes a single visitor and reports whether the stored total changed
func (r *Rescorer) RescoreOne(ctx context.Context, visitorID uint) (bool, error) {
	unlock := r.locks.Lock(visitorID)
	defer unlock()

	changed := false
	err := r.store.Transaction(ctx, func(tx *repositories.Store) error {
		before, err := tx.Visitors.FindByID(ctx, visitorID)
		if err != nil {
			return err
		}
		total, err := recompute(ctx, tx, r.calc, visitorID)
		if err != nil {
			return err
		}
		changed = total != before.Scoring
		return nil
	})
	if err != nil {
		r.logger.WithCaller().Error("Failed to rescore visitor",
			r.logger.Args("visitor_id", visitorID, "error", err))
		return false, err
	}
	return changed, nil
}
