package models

import (
	"time"
)

// Page, News, File, Linklistener and Redirect mirror content owned by the CMS.
// They only exist here so tracked facts can be tagged with a category.

type Page struct {
	ID         uint   `gorm:"primaryKey;autoIncrement:false"`
	Title      string `gorm:"size:255"`
	CategoryID *uint  `gorm:"index"`
}

func (Page) TableName() string {
	return "pages"
}

type News struct {
	ID         uint   `gorm:"primaryKey;autoIncrement:false"`
	Title      string `gorm:"size:255"`
	CategoryID *uint  `gorm:"index"`
}

func (News) TableName() string {
	return "news"
}

// File is a downloadable asset, matched by its href
type File struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Href       string `gorm:"size:1024;not null;uniqueIndex:idx_file_href"`
	Title      string `gorm:"size:255"`
	CategoryID *uint  `gorm:"index"`
}

func (File) TableName() string {
	return "files"
}

type Linklistener struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Title      string    `gorm:"size:255"`
	Link       string    `gorm:"type:text"`
	CategoryID *uint     `gorm:"index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (Linklistener) TableName() string {
	return "linklisteners"
}

// Redirect resolves a short hash embedded in a page to its target URI
type Redirect struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Hash       string    `gorm:"size:64;not null;uniqueIndex:idx_redirect_hash"`
	Target     string    `gorm:"type:text;not null"`
	CategoryID *uint     `gorm:"index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (Redirect) TableName() string {
	return "redirects"
}
