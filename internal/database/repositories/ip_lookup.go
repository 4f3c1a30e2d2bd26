package repositories

import (
	"context"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// IPLookupRepository persists GeoIP lookups so the memory cache survives restarts
type IPLookupRepository interface {
	FindByIP(ctx context.Context, ip string) (*models.IPLookup, error)
	Save(ctx context.Context, lookup *models.IPLookup) error
	Recent(ctx context.Context, limit int) ([]*models.IPLookup, error)
}

type ipLookupRepo struct {
	db *gorm.DB
}

func NewIPLookupRepository(db *gorm.DB) IPLookupRepository {
	return &ipLookupRepo{db: db}
}

func (r *ipLookupRepo) FindByIP(ctx context.Context, ip string) (*models.IPLookup, error) {
	var lookup models.IPLookup
	if err := r.db.WithContext(ctx).Where("ip_address = ?", ip).First(&lookup).Error; err != nil {
		return nil, errs.FromStore("find ip lookup", "ip_lookup", ip, err)
	}
	return &lookup, nil
}

// Save upserts by address and bumps the lookup counter.
// Runs in a silent session since concurrent inserts for the same IP are expected.
func (r *ipLookupRepo) Save(ctx context.Context, lookup *models.IPLookup) error {
	if lookup.LastSeen.IsZero() {
		lookup.LastSeen = time.Now()
	}
	err := r.db.Session(&gorm.Session{Logger: logger.Default.LogMode(logger.Silent)}).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip_address"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_seen":    lookup.LastSeen,
				"lookup_count": gorm.Expr("lookup_count + 1"),
			}),
		}).Create(lookup).Error
	return errs.Persistence("save ip lookup", err)
}

func (r *ipLookupRepo) Recent(ctx context.Context, limit int) ([]*models.IPLookup, error) {
	var lookups []*models.IPLookup
	err := r.db.WithContext(ctx).Order("last_seen DESC").Limit(limit).Find(&lookups).Error
	return lookups, errs.Persistence("recent ip lookups", err)
}
