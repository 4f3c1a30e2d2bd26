package models

import (
	"time"
)

// ImportantAttributes are the attribute keys shown as contact details
var ImportantAttributes = []string{
	"email",
	"firstname",
	"lastname",
	"company",
	"username",
}

// ImportantIpinformations are the geolocation keys shown as contact details
var ImportantIpinformations = []string{
	"org",
	"country",
	"city",
}

// Attribute is a key/value fact collected from form fields. Keys may repeat;
// the newest value wins on read.
type Attribute struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID uint      `gorm:"not null;index:idx_attribute_visitor"`
	Name      string    `gorm:"size:255;not null;index:idx_attribute_name"`
	Value     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Attribute) TableName() string {
	return "attributes"
}

// IsImportant reports whether the attribute key is on the contact allow-list
func (a Attribute) IsImportant() bool {
	return contains(ImportantAttributes, a.Name)
}

// Ipinformation is a geolocation fact derived from the visitor IP address
type Ipinformation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID uint      `gorm:"not null;index:idx_ipinformation_visitor"`
	Name      string    `gorm:"size:64;not null"`
	Value     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Ipinformation) TableName() string {
	return "ipinformations"
}

func (i Ipinformation) IsImportant() bool {
	return contains(ImportantIpinformations, i.Name)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
