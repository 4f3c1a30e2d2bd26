package models

import (
	"time"
)

// Visitor is the tracked person behind one or more browser fingerprints.
// Owned facts live in their own tables keyed by visitor_id and are loaded
// explicitly through the repositories.
type Visitor struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Scoring     int       `gorm:"not null;default:0;index:idx_visitor_scoring"` // denormalized lead score
	Email       string    `gorm:"size:255;index:idx_visitor_email"`
	Identified  bool      `gorm:"not null;default:false"`
	Visits      int       `gorm:"not null;default:0"` // number of sessions
	IPAddress   string    `gorm:"size:64"`
	Description string    `gorm:"type:text"`
	Blacklisted bool      `gorm:"not null;default:false;index:idx_visitor_blacklisted"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (Visitor) TableName() string {
	return "visitors"
}

// Fingerprint is an opaque client generated identifier. The value is unique
// across all visitors, which is what keeps first-contact races from creating
// two visitors for one browser.
type Fingerprint struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID uint      `gorm:"not null;index:idx_fingerprint_visitor"`
	Value     string    `gorm:"size:255;not null;uniqueIndex:idx_fingerprint_value"`
	UserAgent string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Fingerprint) TableName() string {
	return "fingerprints"
}

// Category is managed outside of the tracker. Scoring only references it.
type Category struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Category) TableName() string {
	return "categories"
}

// Categoryscoring is the interest weight of one visitor for one category.
type Categoryscoring struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID  uint      `gorm:"not null;uniqueIndex:idx_cs_visitor_category,priority:1"`
	CategoryID uint      `gorm:"not null;uniqueIndex:idx_cs_visitor_category,priority:2;index:idx_cs_category"`
	Scoring    int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`

	Category Category `gorm:"foreignKey:CategoryID"`
}

func (Categoryscoring) TableName() string {
	return "categoryscorings"
}
