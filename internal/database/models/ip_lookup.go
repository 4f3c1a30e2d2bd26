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
package models

import (
	"time"
)

// IPLookup caches GeoIP results per address so repeat visitors from the same
// network do not hit the MaxMind readers again.
type IPLookup struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	IPAddress string `gorm:"uniqueIndex;not null;size:64"`

	// GeoIP data
	CountryCode string
	CountryName string
	City        string
	Latitude    float64
	Longitude   float64

	// ASN data
	ASN int
	ISP string

	LastSeen    time.Time `gorm:"not null;index"`
	LookupCount int64     `gorm:"default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (IPLookup) TableName() string {
	return "ip_lookups"
}

// IPCompany maps a network range to the company operating it
type IPCompany struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	CIDR      string    `gorm:"column:cidr;size:64;not null;uniqueIndex:idx_ip_company_cidr"`
	Company   string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (IPCompany) TableName() string {
	return "ip_companies"
}
