package tracking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"
	"leadlynx/internal/locker"
	"leadlynx/internal/scoring"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// ErrBlacklisted is returned for events of blacklisted visitors, which are dropped
var ErrBlacklisted = errors.New("visitor is blacklisted")

const maxAttributeKeyLength = 255

// Outcome describes what one recorded event did to the visitor
type Outcome struct {
	Visitor       *models.Visitor
	ScoringBefore int
	ScoringAfter  int
	Categories    []*scoring.Change
	Identified    bool // the visitor became identified during this event
	Merged        bool // the visitor was folded into an older one with the same email
}

func (o *Outcome) combine(next *Outcome) *Outcome {
	if o == nil {
		return next
	}
	o.Visitor = next.Visitor
	o.ScoringAfter = next.ScoringAfter
	o.Categories = append(o.Categories, next.Categories...)
	o.Identified = o.Identified || next.Identified
	o.Merged = o.Merged || next.Merged
	return o
}

// PageVisit is the input of RecordPageVisit
type PageVisit struct {
	PageID     uint
	NewsID     uint
	Language   int
	Referrer   string
	URL        string
	Browser    string
	OS         string
	DeviceType string
	At         time.Time
}

// Recorder appends facts to visitors and keeps scores in step.
// Every operation locks the visitor and runs in a single transaction.
type Recorder struct {
	store    *repositories.Store
	engine   *scoring.Engine
	calc     *scoring.Calculator
	registry *Registry
	locks    *locker.Keyed
	validate *validator.Validate
	logger   *pterm.Logger
}

func NewRecorder(store *repositories.Store, engine *scoring.Engine, calc *scoring.Calculator, registry *Registry, locks *locker.Keyed, logger *pterm.Logger) *Recorder {
	return &Recorder{
		store:    store,
		engine:   engine,
		calc:     calc,
		registry: registry,
		locks:    locks,
		validate: validator.New(),
		logger:   logger,
	}
}

type mutation func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error

func (r *Recorder) mutate(ctx context.Context, visitorID uint, fn mutation) (*Outcome, error) {
	unlock := r.locks.Lock(visitorID)
	defer unlock()

	out := &Outcome{}
	err := r.store.Transaction(ctx, func(tx *repositories.Store) error {
		visitor, err := tx.Visitors.FindByID(ctx, visitorID)
		if err != nil {
			return err
		}
		if visitor.Blacklisted {
			return ErrBlacklisted
		}
		out.ScoringBefore = visitor.Scoring

		if err := fn(tx, visitor, out); err != nil {
			return err
		}

		after, err := tx.Visitors.FindByID(ctx, visitorID)
		if err != nil {
			return err
		}
		out.Visitor = after
		out.ScoringAfter = after.Scoring
		return nil
	})
	if errors.Is(err, ErrBlacklisted) {
		return nil, ErrBlacklisted
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Recorder) log(ctx context.Context, tx *repositories.Store, visitorID uint, status models.LogStatus, properties map[string]interface{}) error {
	entry := &models.Log{VisitorID: visitorID, Status: status}
	if len(properties) > 0 {
		encoded, err := json.Marshal(properties)
		if err != nil {
			return errs.Persistence("encode log properties", err)
		}
		entry.Properties = string(encoded)
	}
	return tx.Facts.AddLog(ctx, entry)
}

// tag applies the category delta of a fact tagged with categoryID
func (r *Recorder) tag(ctx context.Context, tx *repositories.Store, visitorID uint, categoryID *uint, kind scoring.EventKind, out *Outcome) error {
	if categoryID == nil || *categoryID == 0 {
		return nil
	}
	delta := r.calc.CategoryDelta(kind)
	if delta == 0 {
		return nil
	}
	change, err := r.engine.ApplyIncrement(ctx, tx, visitorID, *categoryID, delta)
	if err != nil {
		return err
	}
	out.Categories = append(out.Categories, change)
	return nil
}

func at(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// RecordPageVisit appends a page visit, advances the session counter when
// the visit opens a new session, and scores the page's category.
// A NewsID additionally records a news visit.
func (r *Recorder) RecordPageVisit(ctx context.Context, visitorID uint, pv PageVisit) (*Outcome, error) {
	return r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		when := at(pv.At)

		newSession := true
		last, err := tx.Facts.LastPagevisit(ctx, visitorID)
		switch {
		case err == nil:
			newSession = StartsNewSession(last.CreatedAt, when)
		case !errs.IsNotFound(err):
			return err
		}

		visit := &models.Pagevisit{
			VisitorID:  visitorID,
			PageID:     pv.PageID,
			Language:   pv.Language,
			Referrer:   pv.Referrer,
			URL:        pv.URL,
			Browser:    pv.Browser,
			OS:         pv.OS,
			DeviceType: pv.DeviceType,
			CreatedAt:  when,
		}
		if err := tx.Facts.AddPagevisit(ctx, visit); err != nil {
			return err
		}

		if newSession {
			if err := tx.Visitors.UpdateColumns(ctx, visitorID, map[string]interface{}{"visits": gorm.Expr("visits + 1")}); err != nil {
				return err
			}
		}
		if err := tx.Visitors.AddScoring(ctx, visitorID, r.calc.EventDelta(scoring.EventPagevisit, newSession)); err != nil {
			return err
		}

		page, err := tx.Catalog.FindPage(ctx, pv.PageID)
		switch {
		case err == nil:
			if err := r.tag(ctx, tx, visitorID, page.CategoryID, scoring.EventPagevisit, out); err != nil {
				return err
			}
		case !errs.IsNotFound(err):
			return err
		}

		if err := r.log(ctx, tx, visitorID, models.LogStatusPagevisit, map[string]interface{}{
			"page_id":     pv.PageID,
			"new_session": newSession,
		}); err != nil {
			return err
		}

		if pv.NewsID > 0 {
			return r.recordNewsVisit(ctx, tx, visitorID, pv.NewsID, pv.Language, when, out)
		}
		return nil
	})
}

// RecordNewsVisit appends a news visit and scores the news category
func (r *Recorder) RecordNewsVisit(ctx context.Context, visitorID, newsID uint, language int, when time.Time) (*Outcome, error) {
	return r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		return r.recordNewsVisit(ctx, tx, visitorID, newsID, language, at(when), out)
	})
}

func (r *Recorder) recordNewsVisit(ctx context.Context, tx *repositories.Store, visitorID, newsID uint, language int, when time.Time, out *Outcome) error {
	visit := &models.Newsvisit{VisitorID: visitorID, NewsID: newsID, Language: language, CreatedAt: when}
	if err := tx.Facts.AddNewsvisit(ctx, visit); err != nil {
		return err
	}
	if err := tx.Visitors.AddScoring(ctx, visitorID, r.calc.EventDelta(scoring.EventNewsvisit, false)); err != nil {
		return err
	}

	news, err := tx.Catalog.FindNews(ctx, newsID)
	switch {
	case err == nil:
		if err := r.tag(ctx, tx, visitorID, news.CategoryID, scoring.EventNewsvisit, out); err != nil {
			return err
		}
	case !errs.IsNotFound(err):
		return err
	}

	return r.log(ctx, tx, visitorID, models.LogStatusNewsvisit, map[string]interface{}{"news_id": newsID})
}

// RecordDownload appends a download; a registered file contributes its category
func (r *Recorder) RecordDownload(ctx context.Context, visitorID uint, href string, when time.Time) (*Outcome, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil, errs.Validation("href", "must not be empty")
	}
	return r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		return r.recordDownload(ctx, tx, visitorID, href, at(when), out)
	})
}

func (r *Recorder) recordDownload(ctx context.Context, tx *repositories.Store, visitorID uint, href string, when time.Time, out *Outcome) error {
	download := &models.Download{VisitorID: visitorID, Href: href, CreatedAt: when}

	file, err := tx.Catalog.FindFileByHref(ctx, href)
	switch {
	case err == nil:
		download.FileID = &file.ID
	case !errs.IsNotFound(err):
		return err
	}

	if err := tx.Facts.AddDownload(ctx, download); err != nil {
		return err
	}
	if err := tx.Visitors.AddScoring(ctx, visitorID, r.calc.EventDelta(scoring.EventDownload, false)); err != nil {
		return err
	}
	if file != nil {
		if err := r.tag(ctx, tx, visitorID, file.CategoryID, scoring.EventDownload, out); err != nil {
			return err
		}
	}
	return r.log(ctx, tx, visitorID, models.LogStatusDownload, map[string]interface{}{"href": href})
}

// RecordLinkClick appends a click on a link listener
func (r *Recorder) RecordLinkClick(ctx context.Context, visitorID, linklistenerID, pageID uint, when time.Time) (*Outcome, error) {
	return r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		click := &models.Linkclick{VisitorID: visitorID, PageID: pageID, CreatedAt: at(when)}

		listener, err := tx.Catalog.FindLinklistener(ctx, linklistenerID)
		switch {
		case err == nil:
			click.LinklistenerID = &listener.ID
		case !errs.IsNotFound(err):
			return err
		}

		if err := tx.Facts.AddLinkclick(ctx, click); err != nil {
			return err
		}
		if err := tx.Visitors.AddScoring(ctx, visitorID, r.calc.EventDelta(scoring.EventLinkclick, false)); err != nil {
			return err
		}
		if listener != nil {
			if err := r.tag(ctx, tx, visitorID, listener.CategoryID, scoring.EventLinkclick, out); err != nil {
				return err
			}
		}
		return r.log(ctx, tx, visitorID, models.LogStatusLinkclick, map[string]interface{}{
			"linklistener_id": linklistenerID,
			"page_id":         pageID,
		})
	})
}

// RecordRedirect scores the redirect's category for a known visitor
func (r *Recorder) RecordRedirect(ctx context.Context, visitorID uint, redirect *models.Redirect) (*Outcome, error) {
	return r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		if err := r.tag(ctx, tx, visitorID, redirect.CategoryID, scoring.EventRedirect, out); err != nil {
			return err
		}
		return r.log(ctx, tx, visitorID, models.LogStatusRedirect, map[string]interface{}{
			"hash":   redirect.Hash,
			"target": redirect.Target,
		})
	})
}

// SetAttribute appends a key/value fact. A valid "email" identifies the
// visitor and folds other visitors with the same address into the oldest one.
func (r *Recorder) SetAttribute(ctx context.Context, visitorID uint, key, value string) (*Outcome, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errs.Validation("key", "must not be empty")
	}
	if len(key) > maxAttributeKeyLength {
		return nil, errs.Validation("key", "too long")
	}
	value = strings.TrimSpace(value)

	email := ""
	if key == "email" {
		candidate := strings.ToLower(value)
		if r.validate.Var(candidate, "required,email") == nil {
			email = candidate
		}
	}

	out, err := r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		if err := tx.Facts.AddAttribute(ctx, &models.Attribute{VisitorID: visitorID, Name: key, Value: value}); err != nil {
			return err
		}
		if err := r.log(ctx, tx, visitorID, models.LogStatusAttribute, map[string]interface{}{"key": key}); err != nil {
			return err
		}

		if email == "" || (visitor.Identified && visitor.Email == email) {
			return nil
		}
		if err := tx.Visitors.UpdateColumns(ctx, visitorID, map[string]interface{}{
			"email":      email,
			"identified": true,
		}); err != nil {
			return err
		}
		out.Identified = !visitor.Identified
		return r.log(ctx, tx, visitorID, models.LogStatusIdentified, map[string]interface{}{"email": email})
	})
	if err != nil {
		return nil, err
	}

	if email != "" {
		if err := r.mergeByEmail(ctx, email, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetAttributes records several attributes, in key order, following merges
func (r *Recorder) SetAttributes(ctx context.Context, visitorID uint, values map[string]string) (*Outcome, error) {
	if len(values) == 0 {
		return nil, errs.Validation("values", "must not be empty")
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var combined *Outcome
	for _, key := range keys {
		out, err := r.SetAttribute(ctx, visitorID, key, values[key])
		if err != nil {
			return nil, err
		}
		combined = combined.combine(out)
		visitorID = out.Visitor.ID
	}
	return combined, nil
}

// Email4Link identifies the visitor by email and records the requested download
func (r *Recorder) Email4Link(ctx context.Context, visitorID uint, email, href string) (*Outcome, error) {
	out, err := r.SetAttribute(ctx, visitorID, "email", email)
	if err != nil {
		return nil, err
	}
	visitorID = out.Visitor.ID

	next, err := r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, o *Outcome) error {
		if err := r.log(ctx, tx, visitorID, models.LogStatusEmail4Link, map[string]interface{}{"href": href}); err != nil {
			return err
		}
		if strings.TrimSpace(href) == "" {
			return nil
		}
		return r.recordDownload(ctx, tx, visitorID, strings.TrimSpace(href), time.Now(), o)
	})
	if err != nil {
		return nil, err
	}
	return out.combine(next), nil
}

// AddIpinformations stores the visitor's address and GeoIP facts
func (r *Recorder) AddIpinformations(ctx context.Context, visitorID uint, ip string, infos map[string]string) error {
	_, err := r.mutate(ctx, visitorID, func(tx *repositories.Store, visitor *models.Visitor, out *Outcome) error {
		if ip != "" {
			if err := tx.Visitors.UpdateColumns(ctx, visitorID, map[string]interface{}{"ip_address": ip}); err != nil {
				return err
			}
		}
		keys := make([]string, 0, len(infos))
		for key := range infos {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		rows := make([]*models.Ipinformation, 0, len(infos))
		for _, key := range keys {
			if infos[key] == "" {
				continue
			}
			rows = append(rows, &models.Ipinformation{VisitorID: visitorID, Name: key, Value: infos[key]})
		}
		return tx.Facts.AddIpinformations(ctx, rows)
	})
	return err
}

// mergeByEmail folds every visitor identified by email into the oldest one
func (r *Recorder) mergeByEmail(ctx context.Context, email string, out *Outcome) error {
	visitors, err := r.store.Visitors.FindIdentifiedByEmail(ctx, email)
	if err != nil {
		return err
	}
	if len(visitors) < 2 {
		return nil
	}

	oldest := visitors[0]
	var merged *models.Visitor
	for _, other := range visitors[1:] {
		merged, err = r.registry.MergeFingerprints(ctx, other.ID, oldest.ID)
		if err != nil {
			return err
		}
	}

	if merged != nil && out.Visitor.ID != merged.ID {
		// The event continues on the survivor, so thresholds compare against its own total
		out.Merged = true
		out.ScoringBefore = oldest.Scoring
	}
	if merged != nil {
		out.Visitor = merged
		out.ScoringAfter = merged.Scoring
	}
	r.logger.Debug("Merged visitors by email",
		r.logger.Args("target_id", oldest.ID, "merged", len(visitors)-1))
	return nil
}
