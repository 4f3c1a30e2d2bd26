package tracking

import (
	"context"
	"strconv"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
)

// Aggregate is a visitor with its owned collections loaded explicitly
type Aggregate struct {
	Visitor          *models.Visitor
	Fingerprints     []*models.Fingerprint // newest first
	Categoryscorings []*models.Categoryscoring
	Pagevisits       []*models.Pagevisit // oldest first
	Newsvisits       []*models.Newsvisit
	Linkclicks       []*models.Linkclick
	Downloads        []*models.Download
	Attributes       []*models.Attribute
	Ipinformations   []*models.Ipinformation
	Logs             []*models.Log // newest first
}

// LoadAggregate reads the visitor and every owned collection
func LoadAggregate(ctx context.Context, store *repositories.Store, visitorID uint) (*Aggregate, error) {
	visitor, err := store.Visitors.FindByID(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	agg := &Aggregate{Visitor: visitor}

	if agg.Fingerprints, err = store.Fingerprints.ListByVisitor(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Categoryscorings, err = store.Categoryscorings.ListByVisitor(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Pagevisits, err = store.Facts.LoadPagevisits(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Newsvisits, err = store.Facts.LoadNewsvisits(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Linkclicks, err = store.Facts.LoadLinkclicks(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Downloads, err = store.Facts.LoadDownloads(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Attributes, err = store.Facts.LoadAttributes(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Ipinformations, err = store.Facts.LoadIpinformations(ctx, visitorID); err != nil {
		return nil, err
	}
	if agg.Logs, err = store.Facts.LoadLogs(ctx, visitorID, 0); err != nil {
		return nil, err
	}
	return agg, nil
}

// Attribute returns the most recent value stored under key
func (a *Aggregate) Attribute(key string) string {
	for i := len(a.Attributes) - 1; i >= 0; i-- {
		if a.Attributes[i].Name == key {
			return a.Attributes[i].Value
		}
	}
	return ""
}

// Ipinformation returns the most recent value stored under key
func (a *Aggregate) Ipinformation(key string) string {
	for i := len(a.Ipinformations) - 1; i >= 0; i-- {
		if a.Ipinformations[i].Name == key {
			return a.Ipinformations[i].Value
		}
	}
	return ""
}

// ImportantAttributes returns the latest value of each allow-listed attribute
func (a *Aggregate) ImportantAttributes() []*models.Attribute {
	return latestImportant(a.Attributes, func(attr *models.Attribute) (string, bool) {
		return attr.Name, attr.IsImportant()
	})
}

func (a *Aggregate) ImportantIpinformations() []*models.Ipinformation {
	return latestImportant(a.Ipinformations, func(info *models.Ipinformation) (string, bool) {
		return info.Name, info.IsImportant()
	})
}

// latestImportant keeps the newest entry per important key, in first-seen key order
func latestImportant[T any](items []T, key func(T) (string, bool)) []T {
	index := make(map[string]int)
	var result []T
	for _, item := range items {
		name, important := key(item)
		if !important {
			continue
		}
		if i, ok := index[name]; ok {
			result[i] = item
			continue
		}
		index[name] = len(result)
		result = append(result, item)
	}
	return result
}

func (a *Aggregate) LatestFingerprint() *models.Fingerprint {
	if len(a.Fingerprints) == 0 {
		return nil
	}
	return a.Fingerprints[0]
}

// DateOfLastVisit is the time of the newest log entry. The visitor's
// updated_at is not used since maintenance jobs touch it too.
func (a *Aggregate) DateOfLastVisit() time.Time {
	if len(a.Logs) == 0 {
		return time.Time{}
	}
	return a.Logs[0].CreatedAt
}

func (a *Aggregate) FirstPagevisit() *models.Pagevisit {
	if len(a.Pagevisits) == 0 {
		return nil
	}
	return a.Pagevisits[0]
}

func (a *Aggregate) LastPagevisit() *models.Pagevisit {
	if len(a.Pagevisits) == 0 {
		return nil
	}
	return a.Pagevisits[len(a.Pagevisits)-1]
}

func (a *Aggregate) LastDownload() *models.Download {
	if len(a.Downloads) == 0 {
		return nil
	}
	return a.Downloads[len(a.Downloads)-1]
}

func (a *Aggregate) PagevisitsOfPage(pageID uint) []*models.Pagevisit {
	var visits []*models.Pagevisit
	for _, visit := range a.Pagevisits {
		if visit.PageID == pageID {
			visits = append(visits, visit)
		}
	}
	return visits
}

// CountUniqueVisits applies the session rule to the loaded page visits
func (a *Aggregate) CountUniqueVisits() int {
	times := make([]time.Time, len(a.Pagevisits))
	for i, visit := range a.Pagevisits {
		times[i] = visit.CreatedAt
	}
	return CountUniqueVisits(times)
}

// HottestCategoryscoring is the first of the ranked category scores
func (a *Aggregate) HottestCategoryscoring() *models.Categoryscoring {
	if len(a.Categoryscorings) == 0 {
		return nil
	}
	return a.Categoryscorings[0]
}

func (a *Aggregate) Latitude() float64 {
	return a.coordinate("latitude")
}

func (a *Aggregate) Longitude() float64 {
	return a.coordinate("longitude")
}

func (a *Aggregate) coordinate(key string) float64 {
	value, err := strconv.ParseFloat(a.Ipinformation(key), 64)
	if err != nil {
		return 0
	}
	return value
}
