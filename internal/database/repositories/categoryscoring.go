package repositories

import (
	"context"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"

	"gorm.io/gorm"
)

// CategoryscoringRepository keeps one row per (visitor, category)
type CategoryscoringRepository interface {
	FindByVisitorAndCategory(ctx context.Context, visitorID, categoryID uint) (*models.Categoryscoring, error)
	Add(ctx context.Context, cs *models.Categoryscoring) error
	Update(ctx context.Context, cs *models.Categoryscoring) error
	AddScoring(ctx context.Context, id uint, delta int) error
	ListByVisitor(ctx context.Context, visitorID uint) ([]*models.Categoryscoring, error)
	SumByVisitor(ctx context.Context, visitorID uint) (int, error)
	Reassign(ctx context.Context, id uint, toVisitorID uint) error
	DeleteByVisitor(ctx context.Context, visitorID uint) error
}

type categoryscoringRepo struct {
	db *gorm.DB
}

func NewCategoryscoringRepository(db *gorm.DB) CategoryscoringRepository {
	return &categoryscoringRepo{db: db}
}

func (r *categoryscoringRepo) FindByVisitorAndCategory(ctx context.Context, visitorID, categoryID uint) (*models.Categoryscoring, error) {
	var cs models.Categoryscoring
	err := r.db.WithContext(ctx).
		Where("visitor_id = ? AND category_id = ?", visitorID, categoryID).
		First(&cs).Error
	if err != nil {
		return nil, errs.FromStore("find categoryscoring", "categoryscoring", [2]uint{visitorID, categoryID}, err)
	}
	return &cs, nil
}

func (r *categoryscoringRepo) Add(ctx context.Context, cs *models.Categoryscoring) error {
	err := r.db.WithContext(ctx).Omit("Category").Create(cs).Error
	return errs.FromStore("add categoryscoring", "categoryscoring", [2]uint{cs.VisitorID, cs.CategoryID}, err)
}

func (r *categoryscoringRepo) Update(ctx context.Context, cs *models.Categoryscoring) error {
	err := r.db.WithContext(ctx).Model(cs).
		Updates(map[string]interface{}{"scoring": cs.Scoring, "updated_at": time.Now()}).Error
	return errs.Persistence("update categoryscoring", err)
}

func (r *categoryscoringRepo) AddScoring(ctx context.Context, id uint, delta int) error {
	err := r.db.WithContext(ctx).Model(&models.Categoryscoring{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"scoring":    gorm.Expr("scoring + ?", delta),
			"updated_at": time.Now(),
		}).Error
	return errs.Persistence("add categoryscoring", err)
}

// ListByVisitor returns the scores ranked: highest first, later-registered row first on ties
func (r *categoryscoringRepo) ListByVisitor(ctx context.Context, visitorID uint) ([]*models.Categoryscoring, error) {
	var scorings []*models.Categoryscoring
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("visitor_id = ?", visitorID).
		Order("scoring DESC").
		Order("id DESC").
		Find(&scorings).Error
	if err != nil {
		return nil, errs.Persistence("list categoryscorings", err)
	}
	return scorings, nil
}

func (r *categoryscoringRepo) SumByVisitor(ctx context.Context, visitorID uint) (int, error) {
	var sum int
	err := r.db.WithContext(ctx).Model(&models.Categoryscoring{}).
		Select("COALESCE(SUM(scoring), 0)").
		Where("visitor_id = ?", visitorID).
		Scan(&sum).Error
	if err != nil {
		return 0, errs.Persistence("sum categoryscorings", err)
	}
	return sum, nil
}

func (r *categoryscoringRepo) Reassign(ctx context.Context, id uint, toVisitorID uint) error {
	err := r.db.WithContext(ctx).Model(&models.Categoryscoring{}).
		Where("id = ?", id).
		Update("visitor_id", toVisitorID).Error
	return errs.FromStore("reassign categoryscoring", "categoryscoring", id, err)
}

func (r *categoryscoringRepo) DeleteByVisitor(ctx context.Context, visitorID uint) error {
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Delete(&models.Categoryscoring{}).Error
	return errs.Persistence("delete categoryscorings", err)
}
