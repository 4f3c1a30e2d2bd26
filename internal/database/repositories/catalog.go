package repositories

import (
	"context"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository covers the externally managed reference content that tags facts with categories
type CatalogRepository interface {
	FindCategory(ctx context.Context, id uint) (*models.Category, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
	AddCategory(ctx context.Context, category *models.Category) error

	FindPage(ctx context.Context, id uint) (*models.Page, error)
	SavePage(ctx context.Context, page *models.Page) error
	FindNews(ctx context.Context, id uint) (*models.News, error)
	SaveNews(ctx context.Context, news *models.News) error
	FindFileByHref(ctx context.Context, href string) (*models.File, error)
	SaveFile(ctx context.Context, file *models.File) error
	FindLinklistener(ctx context.Context, id uint) (*models.Linklistener, error)
	SaveLinklistener(ctx context.Context, listener *models.Linklistener) error
	FindRedirectByHash(ctx context.Context, hash string) (*models.Redirect, error)
	SaveRedirect(ctx context.Context, redirect *models.Redirect) error

	ListIPCompanies(ctx context.Context) ([]*models.IPCompany, error)
	SaveIPCompany(ctx context.Context, company *models.IPCompany) error
}

type catalogRepo struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) FindCategory(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, errs.FromStore("find category", "category", id, err)
	}
	return &category, nil
}

func (r *catalogRepo) ListCategories(ctx context.Context) ([]*models.Category, error) {
	var categories []*models.Category
	err := r.db.WithContext(ctx).Order("id ASC").Find(&categories).Error
	return categories, errs.Persistence("list categories", err)
}

func (r *catalogRepo) AddCategory(ctx context.Context, category *models.Category) error {
	return errs.Persistence("add category", r.db.WithContext(ctx).Create(category).Error)
}

func (r *catalogRepo) FindPage(ctx context.Context, id uint) (*models.Page, error) {
	var page models.Page
	if err := r.db.WithContext(ctx).First(&page, id).Error; err != nil {
		return nil, errs.FromStore("find page", "page", id, err)
	}
	return &page, nil
}

func (r *catalogRepo) SavePage(ctx context.Context, page *models.Page) error {
	return errs.Persistence("save page", r.db.WithContext(ctx).Save(page).Error)
}

func (r *catalogRepo) FindNews(ctx context.Context, id uint) (*models.News, error) {
	var news models.News
	if err := r.db.WithContext(ctx).First(&news, id).Error; err != nil {
		return nil, errs.FromStore("find news", "news", id, err)
	}
	return &news, nil
}

func (r *catalogRepo) SaveNews(ctx context.Context, news *models.News) error {
	return errs.Persistence("save news", r.db.WithContext(ctx).Save(news).Error)
}

func (r *catalogRepo) FindFileByHref(ctx context.Context, href string) (*models.File, error) {
	var file models.File
	if err := r.db.WithContext(ctx).Where("href = ?", href).First(&file).Error; err != nil {
		return nil, errs.FromStore("find file", "file", href, err)
	}
	return &file, nil
}

// SaveFile upserts by href
func (r *catalogRepo) SaveFile(ctx context.Context, file *models.File) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "href"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "category_id"}),
	}).Create(file).Error
	return errs.Persistence("save file", err)
}

func (r *catalogRepo) FindLinklistener(ctx context.Context, id uint) (*models.Linklistener, error) {
	var listener models.Linklistener
	if err := r.db.WithContext(ctx).First(&listener, id).Error; err != nil {
		return nil, errs.FromStore("find linklistener", "linklistener", id, err)
	}
	return &listener, nil
}

func (r *catalogRepo) SaveLinklistener(ctx context.Context, listener *models.Linklistener) error {
	return errs.Persistence("save linklistener", r.db.WithContext(ctx).Save(listener).Error)
}

func (r *catalogRepo) FindRedirectByHash(ctx context.Context, hash string) (*models.Redirect, error) {
	var redirect models.Redirect
	if err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&redirect).Error; err != nil {
		return nil, errs.FromStore("find redirect", "redirect", hash, err)
	}
	return &redirect, nil
}

// SaveRedirect upserts by hash
func (r *catalogRepo) SaveRedirect(ctx context.Context, redirect *models.Redirect) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"target", "category_id"}),
	}).Create(redirect).Error
	return errs.Persistence("save redirect", err)
}

func (r *catalogRepo) ListIPCompanies(ctx context.Context) ([]*models.IPCompany, error) {
	var companies []*models.IPCompany
	err := r.db.WithContext(ctx).Order("id ASC").Find(&companies).Error
	return companies, errs.Persistence("list ip companies", err)
}

// SaveIPCompany upserts by CIDR
func (r *catalogRepo) SaveIPCompany(ctx context.Context, company *models.IPCompany) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cidr"}},
		DoUpdates: clause.AssignmentColumns([]string{"company"}),
	}).Create(company).Error
	return errs.Persistence("save ip company", err)
}
