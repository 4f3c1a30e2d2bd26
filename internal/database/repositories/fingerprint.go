package repositories

import (
	"context"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"

	"gorm.io/gorm"
)

type FingerprintRepository interface {
	FindByValue(ctx context.Context, value string) (*models.Fingerprint, error)
	Add(ctx context.Context, fingerprint *models.Fingerprint) error
	ListByVisitor(ctx context.Context, visitorID uint) ([]*models.Fingerprint, error)
	Reassign(ctx context.Context, fromVisitorID, toVisitorID uint) (int64, error)
}

type fingerprintRepo struct {
	db *gorm.DB
}

func NewFingerprintRepository(db *gorm.DB) FingerprintRepository {
	return &fingerprintRepo{db: db}
}

func (r *fingerprintRepo) FindByValue(ctx context.Context, value string) (*models.Fingerprint, error) {
	var fingerprint models.Fingerprint
	err := r.db.WithContext(ctx).Where("value = ?", value).First(&fingerprint).Error
	if err != nil {
		return nil, errs.FromStore("find fingerprint", "fingerprint", value, err)
	}
	return &fingerprint, nil
}

// Add inserts the fingerprint, a duplicate value surfaces as ConflictError
func (r *fingerprintRepo) Add(ctx context.Context, fingerprint *models.Fingerprint) error {
	err := r.db.WithContext(ctx).Create(fingerprint).Error
	return errs.FromStore("add fingerprint", "fingerprint", fingerprint.Value, err)
}

// ListByVisitor returns the visitor's fingerprints, newest first
func (r *fingerprintRepo) ListByVisitor(ctx context.Context, visitorID uint) ([]*models.Fingerprint, error) {
	var fingerprints []*models.Fingerprint
	err := r.db.WithContext(ctx).
		Where("visitor_id = ?", visitorID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&fingerprints).Error
	if err != nil {
		return nil, errs.Persistence("list fingerprints", err)
	}
	return fingerprints, nil
}

func (r *fingerprintRepo) Reassign(ctx context.Context, fromVisitorID, toVisitorID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Fingerprint{}).
		Where("visitor_id = ?", fromVisitorID).
		Update("visitor_id", toVisitorID)
	if result.Error != nil {
		return 0, errs.Persistence("reassign fingerprints", result.Error)
	}
	return result.RowsAffected, nil
}
