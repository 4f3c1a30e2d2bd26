package scoring

import (
	"time"
)

// EventKind identifies the tracked facts that contribute to the lead score
type EventKind string

const (
	EventPagevisit EventKind = "pagevisit"
	EventNewsvisit EventKind = "newsvisit"
	EventDownload  EventKind = "download"
	EventLinkclick EventKind = "linkclick"
	EventRedirect  EventKind = "redirect"
)

// Factors weight each fact in the visitor's lead score
type Factors struct {
	Session   int
	Pagevisit int
	Newsvisit int
	Download  int
	Linkclick int
	// DecayDays removes one point per DecayDays days since the last activity, 0 disables decay
	DecayDays int
}

// CategoryDeltas are added to a category when a fact tagged with it is recorded
type CategoryDeltas struct {
	Pagevisit int
	Newsvisit int
	Download  int
	Linkclick int
	Redirect  int
}

func DefaultFactors() Factors {
	return Factors{
		Session:   10,
		Pagevisit: 1,
		Newsvisit: 1,
		Download:  20,
		Linkclick: 5,
		DecayDays: 3,
	}
}

func DefaultCategoryDeltas() CategoryDeltas {
	return CategoryDeltas{
		Pagevisit: 10,
		Newsvisit: 10,
		Download:  20,
		Linkclick: 20,
		Redirect:  20,
	}
}

// Activity is the per-visitor input of a full recomputation
type Activity struct {
	Sessions    int
	Pagevisits  int64
	Newsvisits  int64
	Downloads   int64
	Linkclicks  int64
	CategorySum int
}

// Calculator turns facts into scoring
type Calculator struct {
	Factors Factors
	Deltas  CategoryDeltas
}

func NewCalculator(factors Factors, deltas CategoryDeltas) *Calculator {
	return &Calculator{Factors: factors, Deltas: deltas}
}

// Total is the undecayed lead score. It equals the sum of every EventDelta
// and category delta applied incrementally for the same facts.
func (c *Calculator) Total(a Activity) int {
	f := c.Factors
	return f.Session*a.Sessions +
		f.Pagevisit*int(a.Pagevisits) +
		f.Newsvisit*int(a.Newsvisits) +
		f.Download*int(a.Downloads) +
		f.Linkclick*int(a.Linkclicks) +
		a.CategorySum
}

// EventDelta is the visitor-level increment for a single recorded fact
func (c *Calculator) EventDelta(kind EventKind, newSession bool) int {
	f := c.Factors
	delta := 0
	switch kind {
	case EventPagevisit:
		delta = f.Pagevisit
		if newSession {
			delta += f.Session
		}
	case EventNewsvisit:
		delta = f.Newsvisit
	case EventDownload:
		delta = f.Download
	case EventLinkclick:
		delta = f.Linkclick
	}
	return delta
}

// CategoryDelta is the category increment for a fact tagged with a category
func (c *Calculator) CategoryDelta(kind EventKind) int {
	d := c.Deltas
	switch kind {
	case EventPagevisit:
		return d.Pagevisit
	case EventNewsvisit:
		return d.Newsvisit
	case EventDownload:
		return d.Download
	case EventLinkclick:
		return d.Linkclick
	case EventRedirect:
		return d.Redirect
	}
	return 0
}

// ScoreAt applies decay to a stored total. Never negative.
func (c *Calculator) ScoreAt(total int, lastActivity, now time.Time) int {
	if c.Factors.DecayDays <= 0 || lastActivity.IsZero() || !now.After(lastActivity) {
		return max(total, 0)
	}
	days := int(now.Sub(lastActivity).Hours() / 24)
	return max(total-days/c.Factors.DecayDays, 0)
}
