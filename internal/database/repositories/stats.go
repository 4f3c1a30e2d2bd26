// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package repositories

import (
	"context"
	"time"

	"leadlynx/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const (
	// DefaultQueryTimeout is the default timeout for dashboard queries (30 seconds)
	DefaultQueryTimeout = 30 * time.Second
	// SQLiteTimeFormat is the format used by SQLite for timestamps
	SQLiteTimeFormat = "2006-01-02 15:04:05.999999999-07:00"
	// DefaultLookbackDays is the default time range for dashboard widgets
	DefaultLookbackDays = 30
)

// StatsRepository provides the dashboard widgets
type StatsRepository interface {
	GetSummary(days int) (*StatsSummary, error)
	GetPagevisitTimeline(days int) ([]*TimelineData, error)
	GetPagevisitsPerWeek(weeks int) ([]*TimelineData, error)
	GetDownloadTimeline(days int) ([]*TimelineData, error)
	GetIdentifiedPerMonth(months int) ([]*TimelineData, error)
	GetTopPages(days int, limit int) ([]*PageStats, error)
	GetTopDownloads(days int, limit int) ([]*DownloadStats, error)
	GetTopReferrers(days int, limit int) ([]*ReferrerStats, error)
	GetTopBrowsers(days int, limit int) ([]*BrowserStats, error)
	GetTopCategories(limit int) ([]*CategoryStats, error)

	// System statistics
	CountLogsOlderThan(cutoffDate time.Time) (int64, error)
	GetLogTimeRange() (oldest time.Time, newest time.Time, err error)
}

type statsRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *gorm.DB, logger *pterm.Logger) StatsRepository {
	return &statsRepo{
		db:     db,
		logger: logger,
	}
}

// withTimeout creates a context with default query timeout
func (r *statsRepo) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultQueryTimeout)
}

func since(days int) time.Time {
	if days <= 0 {
		days = DefaultLookbackDays
	}
	return time.Now().AddDate(0, 0, -days)
}

type StatsSummary struct {
	Visitors            int64 `json:"visitors"`
	IdentifiedVisitors  int64 `json:"identified_visitors"`
	RecurringVisitors   int64 `json:"recurring_visitors"`
	BlacklistedVisitors int64 `json:"blacklisted_visitors"`
	Pagevisits          int64 `json:"pagevisits"`
	Downloads           int64 `json:"downloads"`
	Linkclicks          int64 `json:"linkclicks"`
	NewVisitors         int64 `json:"new_visitors"`
}

type TimelineData struct {
	Period string `json:"period"`
	Count  int64  `json:"count"`
}

type PageStats struct {
	PageID         uint   `json:"page_id"`
	Title          string `json:"title"`
	Hits           int64  `json:"hits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

type DownloadStats struct {
	Href           string `json:"href"`
	Hits           int64  `json:"hits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

type ReferrerStats struct {
	Referrer       string `json:"referrer"`
	Hits           int64  `json:"hits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

type BrowserStats struct {
	Browser string `json:"browser"`
	Count   int64  `json:"count"`
}

type CategoryStats struct {
	CategoryID uint   `json:"category_id"`
	Title      string `json:"title"`
	Scoring    int64  `json:"scoring"`
	Visitors   int64  `json:"visitors"`
}

// GetSummary returns the headline counters. Pagevisits, downloads, linkclicks
// and new visitors are restricted to the window; the visitor totals are not.
func (r *statsRepo) GetSummary(days int) (*StatsSummary, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	db := r.db.WithContext(ctx)
	from := since(days)
	summary := &StatsSummary{}

	queries := []struct {
		name  string
		query *gorm.DB
		dest  *int64
	}{
		{"visitors", db.Model(&models.Visitor{}).Where("blacklisted = ?", false), &summary.Visitors},
		{"identified", db.Model(&models.Visitor{}).Where("identified = ? AND blacklisted = ?", true, false), &summary.IdentifiedVisitors},
		{"recurring", db.Model(&models.Visitor{}).Where("visits > 1 AND blacklisted = ?", false), &summary.RecurringVisitors},
		{"blacklisted", db.Model(&models.Visitor{}).Where("blacklisted = ?", true), &summary.BlacklistedVisitors},
		{"pagevisits", db.Model(&models.Pagevisit{}).Where("created_at > ?", from), &summary.Pagevisits},
		{"downloads", db.Model(&models.Download{}).Where("created_at > ?", from), &summary.Downloads},
		{"linkclicks", db.Model(&models.Linkclick{}).Where("created_at > ?", from), &summary.Linkclicks},
		{"new_visitors", db.Model(&models.Visitor{}).Where("created_at > ?", from), &summary.NewVisitors},
	}

	for _, q := range queries {
		if err := q.query.Count(q.dest).Error; err != nil {
			r.logger.WithCaller().Error("Failed to get summary counter", r.logger.Args("counter", q.name, "error", err))
			return nil, err
		}
	}

	r.logger.Trace("Generated summary", r.logger.Args("days", days, "visitors", summary.Visitors))
	return summary, nil
}

func (r *statsRepo) timeline(model interface{}, groupBy string, from time.Time, extra string) ([]*TimelineData, error) {
	var timeline []*TimelineData

	ctx, cancel := r.withTimeout()
	defer cancel()

	query := r.db.WithContext(ctx).Model(model).
		Select(groupBy+" as period, COUNT(*) as count").
		Where("created_at > ?", from)
	if extra != "" {
		query = query.Where(extra)
	}

	err := query.Group(groupBy).Order("period").Scan(&timeline).Error
	return timeline, err
}

// GetPagevisitTimeline returns page visits per day
func (r *statsRepo) GetPagevisitTimeline(days int) ([]*TimelineData, error) {
	timeline, err := r.timeline(&models.Pagevisit{}, "substr(created_at, 1, 10)", since(days), "")
	if err != nil {
		r.logger.WithCaller().Error("Failed to get pagevisit timeline", r.logger.Args("error", err))
		return nil, err
	}
	r.logger.Trace("Generated pagevisit timeline", r.logger.Args("days", days, "data_points", len(timeline)))
	return timeline, nil
}

// GetPagevisitsPerWeek returns page visits grouped by ISO-like week
func (r *statsRepo) GetPagevisitsPerWeek(weeks int) ([]*TimelineData, error) {
	if weeks <= 0 {
		weeks = 6
	}
	timeline, err := r.timeline(&models.Pagevisit{}, "strftime('%Y-W%W', created_at)", time.Now().AddDate(0, 0, -7*weeks), "")
	if err != nil {
		r.logger.WithCaller().Error("Failed to get weekly pagevisits", r.logger.Args("error", err))
		return nil, err
	}
	return timeline, nil
}

func (r *statsRepo) GetDownloadTimeline(days int) ([]*TimelineData, error) {
	timeline, err := r.timeline(&models.Download{}, "substr(created_at, 1, 10)", since(days), "")
	if err != nil {
		r.logger.WithCaller().Error("Failed to get download timeline", r.logger.Args("error", err))
		return nil, err
	}
	return timeline, nil
}

// GetIdentifiedPerMonth counts identification events per month
func (r *statsRepo) GetIdentifiedPerMonth(months int) ([]*TimelineData, error) {
	if months <= 0 {
		months = 6
	}
	timeline, err := r.timeline(&models.Log{}, "substr(created_at, 1, 7)", time.Now().AddDate(0, -months, 0),
		"status = '"+string(models.LogStatusIdentified)+"'")
	if err != nil {
		r.logger.WithCaller().Error("Failed to get identified per month", r.logger.Args("error", err))
		return nil, err
	}
	return timeline, nil
}

func (r *statsRepo) GetTopPages(days int, limit int) ([]*PageStats, error) {
	var pages []*PageStats

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Table("pagevisits").
		Select("pagevisits.page_id as page_id, COALESCE(pages.title, '') as title, COUNT(*) as hits, COUNT(DISTINCT pagevisits.visitor_id) as unique_visitors").
		Joins("LEFT JOIN pages ON pages.id = pagevisits.page_id").
		Where("pagevisits.created_at > ?", since(days)).
		Group("pagevisits.page_id").
		Order("hits DESC").
		Limit(limit).
		Scan(&pages).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to get top pages", r.logger.Args("error", err))
		return nil, err
	}
	return pages, nil
}

func (r *statsRepo) GetTopDownloads(days int, limit int) ([]*DownloadStats, error) {
	var downloads []*DownloadStats

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Model(&models.Download{}).
		Select("href, COUNT(*) as hits, COUNT(DISTINCT visitor_id) as unique_visitors").
		Where("created_at > ?", since(days)).
		Group("href").
		Order("hits DESC").
		Limit(limit).
		Scan(&downloads).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to get top downloads", r.logger.Args("error", err))
		return nil, err
	}
	return downloads, nil
}

func (r *statsRepo) GetTopReferrers(days int, limit int) ([]*ReferrerStats, error) {
	var referrers []*ReferrerStats

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Model(&models.Pagevisit{}).
		Select("referrer, COUNT(*) as hits, COUNT(DISTINCT visitor_id) as unique_visitors").
		Where("referrer != ''").
		Where("created_at > ?", since(days)).
		Group("referrer").
		Order("hits DESC").
		Limit(limit).
		Scan(&referrers).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to get top referrers", r.logger.Args("error", err))
		return nil, err
	}
	return referrers, nil
}

func (r *statsRepo) GetTopBrowsers(days int, limit int) ([]*BrowserStats, error) {
	var browsers []*BrowserStats

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Model(&models.Pagevisit{}).
		Select("browser, COUNT(DISTINCT visitor_id) as count").
		Where("browser != '' AND browser != 'Unknown'").
		Where("created_at > ?", since(days)).
		Group("browser").
		Order("count DESC").
		Limit(limit).
		Scan(&browsers).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to get top browsers", r.logger.Args("error", err))
		return nil, err
	}
	return browsers, nil
}

// GetTopCategories sums category scores across non-blacklisted visitors
func (r *statsRepo) GetTopCategories(limit int) ([]*CategoryStats, error) {
	var categories []*CategoryStats

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Table("categoryscorings").
		Select("categoryscorings.category_id as category_id, categories.title as title, SUM(categoryscorings.scoring) as scoring, COUNT(DISTINCT categoryscorings.visitor_id) as visitors").
		Joins("JOIN categories ON categories.id = categoryscorings.category_id").
		Joins("JOIN visitors ON visitors.id = categoryscorings.visitor_id AND visitors.blacklisted = ?", false).
		Group("categoryscorings.category_id").
		Order("scoring DESC").
		Limit(limit).
		Scan(&categories).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to get top categories", r.logger.Args("error", err))
		return nil, err
	}
	return categories, nil
}

// CountLogsOlderThan counts log entries older than the cutoff date
func (r *statsRepo) CountLogsOlderThan(cutoffDate time.Time) (int64, error) {
	var count int64

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Model(&models.Log{}).
		Where("created_at < ?", cutoffDate).
		Count(&count).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to count logs older than cutoff", r.logger.Args("error", err, "cutoff", cutoffDate))
		return 0, err
	}

	r.logger.Trace("Counted logs older than cutoff", r.logger.Args("count", count, "cutoff", cutoffDate))
	return count, nil
}

// GetLogTimeRange returns the oldest and newest log timestamps
func (r *statsRepo) GetLogTimeRange() (oldest time.Time, newest time.Time, err error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	var result struct {
		Oldest string
		Newest string
	}

	err = r.db.WithContext(ctx).Model(&models.Log{}).
		Select("MIN(created_at) as oldest, MAX(created_at) as newest").
		Scan(&result).Error

	if err != nil {
		r.logger.WithCaller().Error("Failed to get log time range", r.logger.Args("error", err))
		return time.Time{}, time.Time{}, err
	}

	oldest = parseSQLiteTime(r.logger, result.Oldest)
	newest = parseSQLiteTime(r.logger, result.Newest)

	r.logger.Trace("Got log time range", r.logger.Args("oldest", oldest, "newest", newest))
	return oldest, newest, nil
}

func parseSQLiteTime(logger *pterm.Logger, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return parsed
	}
	// Try alternative parsing if RFC3339 fails
	parsed, err = time.Parse(SQLiteTimeFormat, value)
	if err != nil {
		logger.WithCaller().Warn("Failed to parse timestamp", logger.Args("value", value, "error", err))
		return time.Time{}
	}
	return parsed
}
