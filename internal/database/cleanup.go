package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leadlynx/internal/database/repositories"
	"leadlynx/internal/locker"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// CleanupService removes anonymous visitors that have been inactive for longer than the retention window
type CleanupService struct {
	db              *gorm.DB
	store           *repositories.Store
	locks           *locker.Keyed
	logger          *pterm.Logger
	retentionDays   int
	cleanupInterval time.Duration
	cleanupTime     string
	vacuumEnabled   bool
	stopChan        chan struct{}
	running         bool
	// Stats tracking
	statsMu         sync.RWMutex
	lastRunTime     time.Time
	visitorsDeleted int64
	cleanupDuration time.Duration
}

// CleanupStats holds statistics about cleanup operations
type CleanupStats struct {
	LastRunTime      time.Time     `json:"last_run_time"`
	VisitorsDeleted  int64         `json:"visitors_deleted"`
	CleanupDuration  time.Duration `json:"cleanup_duration"`
	NextScheduledRun time.Time     `json:"next_scheduled_run"`
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db *gorm.DB, locks *locker.Keyed, logger *pterm.Logger, retentionDays int, cleanupInterval time.Duration, cleanupTime string, vacuumEnabled bool) *CleanupService {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &CleanupService{
		db:              db,
		store:           repositories.NewStore(db),
		locks:           locks,
		logger:          logger,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		cleanupTime:     cleanupTime,
		vacuumEnabled:   vacuumEnabled,
		stopChan:        make(chan struct{}),
		running:         false,
	}
}

// Start begins the cleanup service
func (s *CleanupService) Start() {
	if s.retentionDays <= 0 {
		s.logger.Info("Unknown visitor cleanup disabled (CLEANUP_UNKNOWN_DAYS=0), cleanup service not started")
		return
	}

	s.running = true
	s.logger.Info("Starting unknown visitor cleanup service",
		s.logger.Args(
			"retention_days", s.retentionDays,
			"cleanup_time", s.cleanupTime,
			"vacuum_enabled", s.vacuumEnabled,
		))

	go s.scheduledCleanupLoop()
}

// Stop stops the cleanup service
func (s *CleanupService) Stop() {
	if !s.running {
		return
	}

	s.logger.Info("Stopping unknown visitor cleanup service")
	close(s.stopChan)
	s.running = false
}

// scheduledCleanupLoop runs cleanup at scheduled time daily
func (s *CleanupService) scheduledCleanupLoop() {
	for {
		now := time.Now()
		targetTime := s.parseCleanupTime(now)

		// If target time has passed today, schedule for tomorrow
		if now.After(targetTime) {
			targetTime = targetTime.Add(24 * time.Hour)
		}

		waitDuration := time.Until(targetTime)
		s.logger.Debug("Next cleanup scheduled",
			s.logger.Args("next_run", targetTime.Format("2006-01-02 15:04:05"), "wait_duration", waitDuration.Round(time.Minute)))

		select {
		case <-s.stopChan:
			return
		case <-time.After(min(waitDuration, s.cleanupInterval)):
			if time.Now().After(targetTime.Add(-1 * time.Minute)) {
				if _, err := s.RunOnce(context.Background()); err != nil {
					s.logger.WithCaller().Error("Scheduled cleanup failed", s.logger.Args("error", err))
				}
			}
		}
	}
}

// parseCleanupTime parses the cleanup time string (HH:MM) and returns today's time
func (s *CleanupService) parseCleanupTime(baseTime time.Time) time.Time {
	cleanupTime, err := time.Parse("15:04", s.cleanupTime)
	if err != nil {
		s.logger.Warn("Invalid cleanup time format, using 02:00",
			s.logger.Args("configured", s.cleanupTime, "error", err))
		cleanupTime, _ = time.Parse("15:04", "02:00")
	}

	return time.Date(
		baseTime.Year(), baseTime.Month(), baseTime.Day(),
		cleanupTime.Hour(), cleanupTime.Minute(), 0, 0,
		baseTime.Location(),
	)
}

// RunOnce deletes every anonymous visitor without activity since the retention cutoff
func (s *CleanupService) RunOnce(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, fmt.Errorf("cleanup disabled (CLEANUP_UNKNOWN_DAYS=0)")
	}

	s.logger.Info("Starting unknown visitor cleanup",
		s.logger.Args("retention_days", s.retentionDays))

	startTime := time.Now()
	cutoffDate := startTime.AddDate(0, 0, -s.retentionDays)

	totalDeleted, err := s.deleteInactiveVisitors(ctx, cutoffDate)
	if err != nil {
		s.logger.WithCaller().Error("Failed to delete inactive visitors",
			s.logger.Args("error", err, "cutoff_date", cutoffDate.Format("2006-01-02")))
		return totalDeleted, err
	}

	cleanupDuration := time.Since(startTime)

	s.statsMu.Lock()
	s.lastRunTime = startTime
	s.visitorsDeleted = totalDeleted
	s.cleanupDuration = cleanupDuration
	s.statsMu.Unlock()

	s.logger.Info("Cleanup completed",
		s.logger.Args(
			"visitors_deleted", totalDeleted,
			"duration", cleanupDuration.Round(time.Millisecond),
			"cutoff_date", cutoffDate.Format("2006-01-02"),
		))

	if s.vacuumEnabled && totalDeleted > 0 {
		s.runVacuum()
	}
	return totalDeleted, nil
}

// deleteInactiveVisitors deletes visitors in batches, one transaction per visitor
func (s *CleanupService) deleteInactiveVisitors(ctx context.Context, cutoffDate time.Time) (int64, error) {
	const batchSize = 500
	totalDeleted := int64(0)

	for {
		ids, err := s.store.Visitors.InactiveAnonymous(ctx, cutoffDate, batchSize)
		if err != nil {
			return totalDeleted, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := s.deleteVisitor(ctx, id); err != nil {
				return totalDeleted, err
			}
			totalDeleted++
		}

		s.logger.Trace("Deleted batch",
			s.logger.Args("batch_deleted", len(ids), "total_deleted", totalDeleted))

		if len(ids) < batchSize {
			break
		}
	}

	return totalDeleted, nil
}

func (s *CleanupService) deleteVisitor(ctx context.Context, id uint) error {
	if s.locks != nil {
		unlock := s.locks.Lock(id)
		defer unlock()
	}
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		return tx.Visitors.Delete(ctx, id)
	})
}

// runVacuum runs VACUUM to reclaim space
func (s *CleanupService) runVacuum() {
	s.logger.Info("Running VACUUM to reclaim disk space (database will be briefly unavailable)")

	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		s.logger.WithCaller().Error("Failed to run VACUUM",
			s.logger.Args("error", err))
		return
	}

	s.logger.Info("VACUUM completed",
		s.logger.Args("duration", time.Since(startTime).Round(time.Second)))
}

// GetStats returns cleanup statistics
func (s *CleanupService) GetStats() *CleanupStats {
	now := time.Now()
	targetTime := s.parseCleanupTime(now)

	if now.After(targetTime) {
		targetTime = targetTime.Add(24 * time.Hour)
	}

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	return &CleanupStats{
		LastRunTime:      s.lastRunTime,
		VisitorsDeleted:  s.visitorsDeleted,
		CleanupDuration:  s.cleanupDuration,
		NextScheduledRun: targetTime,
	}
}

// ManualCleanup triggers cleanup in the background
func (s *CleanupService) ManualCleanup() error {
	if s.retentionDays <= 0 {
		return fmt.Errorf("cleanup disabled (CLEANUP_UNKNOWN_DAYS=0)")
	}

	s.logger.Info("Manual cleanup triggered")
	go func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithCaller().Error("Manual cleanup failed", s.logger.Args("error", err))
		}
	}()
	return nil
}
