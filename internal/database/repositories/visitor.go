package repositories

import (
	"context"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"

	"gorm.io/gorm"
)

// VisitorRepository handles the visitor aggregate root
type VisitorRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Visitor, error)
	FindByFingerprint(ctx context.Context, value string) (*models.Visitor, error)
	FindIdentifiedByEmail(ctx context.Context, email string) ([]*models.Visitor, error)
	Add(ctx context.Context, visitor *models.Visitor) error
	Update(ctx context.Context, visitor *models.Visitor) error
	AddScoring(ctx context.Context, id uint, delta int) error
	SetTotals(ctx context.Context, id uint, scoring, visits int) error
	UpdateColumns(ctx context.Context, id uint, values map[string]interface{}) error
	HottestLeads(ctx context.Context, limit int) ([]*models.Visitor, error)
	IDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error)
	InactiveAnonymous(ctx context.Context, before time.Time, limit int) ([]uint, error)
	Count(ctx context.Context) (int64, error)
	RemoveAllRelatedByVisitor(ctx context.Context, id uint) error
	Delete(ctx context.Context, id uint) error
}

type visitorRepo struct {
	db *gorm.DB
}

func NewVisitorRepository(db *gorm.DB) VisitorRepository {
	return &visitorRepo{db: db}
}

func (r *visitorRepo) FindByID(ctx context.Context, id uint) (*models.Visitor, error) {
	var visitor models.Visitor
	err := r.db.WithContext(ctx).First(&visitor, id).Error
	if err != nil {
		return nil, errs.FromStore("find visitor", "visitor", id, err)
	}
	return &visitor, nil
}

func (r *visitorRepo) FindByFingerprint(ctx context.Context, value string) (*models.Visitor, error) {
	var visitor models.Visitor
	err := r.db.WithContext(ctx).
		Joins("JOIN fingerprints ON fingerprints.visitor_id = visitors.id").
		Where("fingerprints.value = ?", value).
		First(&visitor).Error
	if err != nil {
		return nil, errs.FromStore("find visitor by fingerprint", "fingerprint", value, err)
	}
	return &visitor, nil
}

// FindIdentifiedByEmail returns identified visitors with the address, oldest first
func (r *visitorRepo) FindIdentifiedByEmail(ctx context.Context, email string) ([]*models.Visitor, error) {
	var visitors []*models.Visitor
	err := r.db.WithContext(ctx).
		Where("email = ? AND identified = ? AND blacklisted = ?", email, true, false).
		Order("id ASC").
		Find(&visitors).Error
	if err != nil {
		return nil, errs.Persistence("find visitors by email", err)
	}
	return visitors, nil
}

func (r *visitorRepo) Add(ctx context.Context, visitor *models.Visitor) error {
	return errs.Persistence("add visitor", r.db.WithContext(ctx).Create(visitor).Error)
}

func (r *visitorRepo) Update(ctx context.Context, visitor *models.Visitor) error {
	return errs.Persistence("update visitor", r.db.WithContext(ctx).Save(visitor).Error)
}

// AddScoring moves the denormalized total atomically
func (r *visitorRepo) AddScoring(ctx context.Context, id uint, delta int) error {
	if delta == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"scoring":    gorm.Expr("scoring + ?", delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return errs.Persistence("add visitor scoring", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("visitor", id)
	}
	return nil
}

// SetTotals overwrites the recomputed scoring and session counter
func (r *visitorRepo) SetTotals(ctx context.Context, id uint, scoring, visits int) error {
	result := r.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"scoring":    scoring,
			"visits":     visits,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return errs.Persistence("set visitor totals", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("visitor", id)
	}
	return nil
}

// UpdateColumns writes only the given columns, leaving the scoring untouched
func (r *visitorRepo) UpdateColumns(ctx context.Context, id uint, values map[string]interface{}) error {
	values["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Visitor{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return errs.Persistence("update visitor columns", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("visitor", id)
	}
	return nil
}

// HottestLeads ranks non-blacklisted visitors by the denormalized scoring, newer visitor first on ties
func (r *visitorRepo) HottestLeads(ctx context.Context, limit int) ([]*models.Visitor, error) {
	var visitors []*models.Visitor
	query := r.db.WithContext(ctx).
		Where("blacklisted = ?", false).
		Order("scoring DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&visitors).Error; err != nil {
		return nil, errs.Persistence("hottest leads", err)
	}
	return visitors, nil
}

// IDsAfter pages through visitor IDs in ascending order for batch jobs
func (r *visitorRepo) IDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("id > ? AND blacklisted = ?", afterID, false).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errs.Persistence("page visitor ids", err)
	}
	return ids, nil
}

// InactiveAnonymous returns anonymous, non-blacklisted visitors without any log since before
func (r *visitorRepo) InactiveAnonymous(ctx context.Context, before time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("identified = ? AND blacklisted = ? AND created_at < ?", false, false, before).
		Where("NOT EXISTS (SELECT 1 FROM logs WHERE logs.visitor_id = visitors.id AND logs.created_at >= ?)", before).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errs.Persistence("find inactive visitors", err)
	}
	return ids, nil
}

func (r *visitorRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Visitor{}).Count(&count).Error
	return count, errs.Persistence("count visitors", err)
}

// ownedTables lists every table keyed by visitor_id that is purged on erasure.
// Fingerprints are not part of it.
var ownedTables = []interface{}{
	&models.Categoryscoring{},
	&models.Pagevisit{},
	&models.Newsvisit{},
	&models.Linkclick{},
	&models.Attribute{},
	&models.Ipinformation{},
	&models.Download{},
	&models.Log{},
}

func (r *visitorRepo) RemoveAllRelatedByVisitor(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	for _, model := range ownedTables {
		if err := db.Where("visitor_id = ?", id).Delete(model).Error; err != nil {
			return errs.Persistence("remove related visitor data", err)
		}
	}
	return nil
}

// Delete removes the visitor row together with its fingerprints and owned data
func (r *visitorRepo) Delete(ctx context.Context, id uint) error {
	if err := r.RemoveAllRelatedByVisitor(ctx, id); err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("visitor_id = ?", id).Delete(&models.Fingerprint{}).Error; err != nil {
		return errs.Persistence("delete fingerprints", err)
	}
	if err := db.Delete(&models.Visitor{}, id).Error; err != nil {
		return errs.Persistence("delete visitor", err)
	}
	return nil
}
