package models

import (
	"time"
)

// Pagevisit is one tracked page view
type Pagevisit struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID  uint      `gorm:"not null;index:idx_pagevisit_visitor"`
	PageID     uint      `gorm:"index:idx_pagevisit_page"`
	Language   int       `gorm:"default:0"`
	Referrer   string    `gorm:"type:text"`
	URL        string    `gorm:"type:text"`
	Browser    string    `gorm:"size:64"`
	OS         string    `gorm:"size:64"`
	DeviceType string    `gorm:"size:16"`
	CreatedAt  time.Time `gorm:"not null;index:idx_pagevisit_created"`
}

func (Pagevisit) TableName() string {
	return "pagevisits"
}

type Newsvisit struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID uint      `gorm:"not null;index:idx_newsvisit_visitor"`
	NewsID    uint      `gorm:"not null"`
	Language  int       `gorm:"default:0"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Newsvisit) TableName() string {
	return "newsvisits"
}

// Linkclick references a Linklistener when the clicked link was registered.
type Linkclick struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID      uint      `gorm:"not null;index:idx_linkclick_visitor"`
	LinklistenerID *uint     `gorm:"index:idx_linkclick_listener"`
	PageID         uint      `gorm:"default:0"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Linkclick) TableName() string {
	return "linkclicks"
}

type Download struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID uint      `gorm:"not null;index:idx_download_visitor"`
	Href      string    `gorm:"type:text;not null"`
	FileID    *uint     `gorm:"index:idx_download_file"`
	CreatedAt time.Time `gorm:"not null;index:idx_download_created"`
}

func (Download) TableName() string {
	return "downloads"
}

// LogStatus names the event a Log entry records
type LogStatus string

const (
	LogStatusNewVisitor   LogStatus = "new_visitor"
	LogStatusPagevisit    LogStatus = "pagevisit"
	LogStatusNewsvisit    LogStatus = "newsvisit"
	LogStatusDownload     LogStatus = "download"
	LogStatusLinkclick    LogStatus = "linkclick"
	LogStatusAttribute    LogStatus = "attribute"
	LogStatusIdentified   LogStatus = "identified"
	LogStatusEmail4Link   LogStatus = "email4link"
	LogStatusRedirect     LogStatus = "redirect"
	LogStatusMerged       LogStatus = "merged"
	LogStatusScoringReset LogStatus = "scoring_reset"
)

// Log is the audit trail of a visitor. The newest entry is the date of the last
// visit; visitors.updated_at also moves on maintenance and must not be used for it.
type Log struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID  uint      `gorm:"not null;index:idx_log_visitor"`
	Status     LogStatus `gorm:"size:32;not null"`
	Properties string    `gorm:"type:text"` // JSON encoded details
	CreatedAt  time.Time `gorm:"not null;index:idx_log_created"`
}

func (Log) TableName() string {
	return "logs"
}
