package repositories

import (
	"context"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"

	"gorm.io/gorm"
)

// FactRepository appends and loads the visitor's append-only facts.
// Loaders return explicit ordered slices; there is no lazy loading.
type FactRepository interface {
	AddPagevisit(ctx context.Context, visit *models.Pagevisit) error
	AddNewsvisit(ctx context.Context, visit *models.Newsvisit) error
	AddLinkclick(ctx context.Context, click *models.Linkclick) error
	AddDownload(ctx context.Context, download *models.Download) error
	AddAttribute(ctx context.Context, attribute *models.Attribute) error
	AddIpinformations(ctx context.Context, infos []*models.Ipinformation) error
	AddLog(ctx context.Context, log *models.Log) error

	LoadPagevisits(ctx context.Context, visitorID uint) ([]*models.Pagevisit, error)
	LoadNewsvisits(ctx context.Context, visitorID uint) ([]*models.Newsvisit, error)
	LoadLinkclicks(ctx context.Context, visitorID uint) ([]*models.Linkclick, error)
	LoadDownloads(ctx context.Context, visitorID uint) ([]*models.Download, error)
	LoadAttributes(ctx context.Context, visitorID uint) ([]*models.Attribute, error)
	LoadIpinformations(ctx context.Context, visitorID uint) ([]*models.Ipinformation, error)
	LoadLogs(ctx context.Context, visitorID uint, limit int) ([]*models.Log, error)

	LastPagevisit(ctx context.Context, visitorID uint) (*models.Pagevisit, error)
	LastActivity(ctx context.Context, visitorID uint) (time.Time, error)
	PagevisitTimes(ctx context.Context, visitorID uint) ([]time.Time, error)
	Count(ctx context.Context, visitorID uint) (*FactCounts, error)
	ReassignAll(ctx context.Context, fromVisitorID, toVisitorID uint) error
}

// FactCounts are the per-visitor fact totals used by the lead score
type FactCounts struct {
	Pagevisits int64
	Newsvisits int64
	Linkclicks int64
	Downloads  int64
}

type factRepo struct {
	db *gorm.DB
}

func NewFactRepository(db *gorm.DB) FactRepository {
	return &factRepo{db: db}
}

func (r *factRepo) AddPagevisit(ctx context.Context, visit *models.Pagevisit) error {
	return errs.Persistence("add pagevisit", r.db.WithContext(ctx).Create(visit).Error)
}

func (r *factRepo) AddNewsvisit(ctx context.Context, visit *models.Newsvisit) error {
	return errs.Persistence("add newsvisit", r.db.WithContext(ctx).Create(visit).Error)
}

func (r *factRepo) AddLinkclick(ctx context.Context, click *models.Linkclick) error {
	return errs.Persistence("add linkclick", r.db.WithContext(ctx).Create(click).Error)
}

func (r *factRepo) AddDownload(ctx context.Context, download *models.Download) error {
	return errs.Persistence("add download", r.db.WithContext(ctx).Create(download).Error)
}

func (r *factRepo) AddAttribute(ctx context.Context, attribute *models.Attribute) error {
	return errs.Persistence("add attribute", r.db.WithContext(ctx).Create(attribute).Error)
}

func (r *factRepo) AddIpinformations(ctx context.Context, infos []*models.Ipinformation) error {
	if len(infos) == 0 {
		return nil
	}
	return errs.Persistence("add ipinformations", r.db.WithContext(ctx).Create(&infos).Error)
}

func (r *factRepo) AddLog(ctx context.Context, log *models.Log) error {
	return errs.Persistence("add log", r.db.WithContext(ctx).Create(log).Error)
}

func (r *factRepo) LoadPagevisits(ctx context.Context, visitorID uint) ([]*models.Pagevisit, error) {
	var visits []*models.Pagevisit
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at ASC, id ASC").Find(&visits).Error
	return visits, errs.Persistence("load pagevisits", err)
}

func (r *factRepo) LoadNewsvisits(ctx context.Context, visitorID uint) ([]*models.Newsvisit, error) {
	var visits []*models.Newsvisit
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at ASC, id ASC").Find(&visits).Error
	return visits, errs.Persistence("load newsvisits", err)
}

func (r *factRepo) LoadLinkclicks(ctx context.Context, visitorID uint) ([]*models.Linkclick, error) {
	var clicks []*models.Linkclick
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at ASC, id ASC").Find(&clicks).Error
	return clicks, errs.Persistence("load linkclicks", err)
}

func (r *factRepo) LoadDownloads(ctx context.Context, visitorID uint) ([]*models.Download, error) {
	var downloads []*models.Download
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at ASC, id ASC").Find(&downloads).Error
	return downloads, errs.Persistence("load downloads", err)
}

// LoadAttributes returns attributes in insertion order
func (r *factRepo) LoadAttributes(ctx context.Context, visitorID uint) ([]*models.Attribute, error) {
	var attributes []*models.Attribute
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("id ASC").Find(&attributes).Error
	return attributes, errs.Persistence("load attributes", err)
}

func (r *factRepo) LoadIpinformations(ctx context.Context, visitorID uint) ([]*models.Ipinformation, error) {
	var infos []*models.Ipinformation
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("id ASC").Find(&infos).Error
	return infos, errs.Persistence("load ipinformations", err)
}

// LoadLogs returns the newest logs first
func (r *factRepo) LoadLogs(ctx context.Context, visitorID uint, limit int) ([]*models.Log, error) {
	var logs []*models.Log
	query := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&logs).Error
	return logs, errs.Persistence("load logs", err)
}

func (r *factRepo) LastPagevisit(ctx context.Context, visitorID uint) (*models.Pagevisit, error) {
	var visit models.Pagevisit
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at DESC, id DESC").First(&visit).Error
	if err != nil {
		return nil, errs.FromStore("last pagevisit", "pagevisit", visitorID, err)
	}
	return &visit, nil
}

// LastActivity is the time of the newest log entry, zero when there is none
func (r *factRepo) LastActivity(ctx context.Context, visitorID uint) (time.Time, error) {
	var log models.Log
	err := r.db.WithContext(ctx).Where("visitor_id = ?", visitorID).Order("created_at DESC, id DESC").Limit(1).Find(&log).Error
	if err != nil {
		return time.Time{}, errs.Persistence("last activity", err)
	}
	return log.CreatedAt, nil
}

func (r *factRepo) PagevisitTimes(ctx context.Context, visitorID uint) ([]time.Time, error) {
	var times []time.Time
	err := r.db.WithContext(ctx).Model(&models.Pagevisit{}).
		Where("visitor_id = ?", visitorID).
		Order("created_at ASC").
		Pluck("created_at", &times).Error
	return times, errs.Persistence("load pagevisit times", err)
}

func (r *factRepo) Count(ctx context.Context, visitorID uint) (*FactCounts, error) {
	counts := &FactCounts{}
	db := r.db.WithContext(ctx)
	targets := []struct {
		model interface{}
		dest  *int64
	}{
		{&models.Pagevisit{}, &counts.Pagevisits},
		{&models.Newsvisit{}, &counts.Newsvisits},
		{&models.Linkclick{}, &counts.Linkclicks},
		{&models.Download{}, &counts.Downloads},
	}
	for _, target := range targets {
		if err := db.Model(target.model).Where("visitor_id = ?", visitorID).Count(target.dest).Error; err != nil {
			return nil, errs.Persistence("count facts", err)
		}
	}
	return counts, nil
}

// ReassignAll moves every append-only fact from one visitor to another.
// Category scores are not moved here since they need summing.
func (r *factRepo) ReassignAll(ctx context.Context, fromVisitorID, toVisitorID uint) error {
	db := r.db.WithContext(ctx)
	for _, model := range []interface{}{
		&models.Pagevisit{},
		&models.Newsvisit{},
		&models.Linkclick{},
		&models.Download{},
		&models.Attribute{},
		&models.Ipinformation{},
		&models.Log{},
	} {
		err := db.Model(model).Where("visitor_id = ?", fromVisitorID).Update("visitor_id", toVisitorID).Error
		if err != nil {
			return errs.Persistence("reassign facts", err)
		}
	}
	return nil
}
