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
package enrichment

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
)

// GeoIPEnricher resolves visitor addresses to location and network facts.
// Results are kept in memory and persisted to ip_lookups.
type GeoIPEnricher struct {
	cityDB    *geoip2.Reader
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
	lookups   repositories.IPLookupRepository
	logger    *pterm.Logger
	cache     map[string]*models.IPLookup
	cacheMu   sync.RWMutex
	enabled   bool
	cacheSize int
}

// NewGeoIPEnricher opens whichever of the City, Country and ASN databases exist.
// A missing database only disables the data it would provide.
func NewGeoIPEnricher(cityDBPath, countryDBPath, asnDBPath string, lookups repositories.IPLookupRepository, logger *pterm.Logger, cacheSize int) (*GeoIPEnricher, error) {
	if cacheSize <= 0 {
		cacheSize = 10000
	}

	enricher := &GeoIPEnricher{
		lookups:   lookups,
		logger:    logger,
		cache:     make(map[string]*models.IPLookup, cacheSize),
		cacheSize: cacheSize,
	}

	open := func(kind, path string) *geoip2.Reader {
		if path == "" {
			return nil
		}
		reader, err := geoip2.Open(path)
		if err != nil {
			logger.Warn("GeoIP database not available",
				logger.Args("kind", kind, "path", path, "error", err))
			return nil
		}
		logger.Info("Loaded GeoIP database", logger.Args("kind", kind, "path", path))
		return reader
	}

	enricher.cityDB = open("city", cityDBPath)
	enricher.countryDB = open("country", countryDBPath)
	enricher.asnDB = open("asn", asnDBPath)
	enricher.enabled = enricher.cityDB != nil || enricher.countryDB != nil || enricher.asnDB != nil

	if !enricher.enabled {
		logger.Warn("GeoIP enrichment disabled - no databases available")
	}
	return enricher, nil
}

// Lookup returns the cached or freshly resolved record for ip.
// A disabled enricher returns nil without error.
func (g *GeoIPEnricher) Lookup(ctx context.Context, ip string) (*models.IPLookup, error) {
	if !g.enabled || ip == "" {
		return nil, nil
	}

	g.cacheMu.RLock()
	cached, exists := g.cache[ip]
	g.cacheMu.RUnlock()
	if exists {
		g.logger.Trace("GeoIP cache hit", g.logger.Args("ip", ip))
		return cached, nil
	}

	stored, err := g.lookups.FindByIP(ctx, ip)
	switch {
	case err == nil:
		g.remember(stored)
		return stored, nil
	case !errs.IsNotFound(err):
		g.logger.Debug("Failed to read stored GeoIP lookup", g.logger.Args("ip", ip, "error", err))
	}

	lookup, err := g.resolve(ip)
	if err != nil {
		return nil, err
	}
	g.remember(lookup)

	if err := g.lookups.Save(ctx, lookup); err != nil {
		// The memory cache already has the record
		g.logger.Debug("Failed to persist GeoIP lookup", g.logger.Args("ip", ip, "error", err))
	}
	return lookup, nil
}

func (g *GeoIPEnricher) resolve(ip string) (*models.IPLookup, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, errs.Validation("ip", fmt.Sprintf("invalid address %q", ip))
	}

	lookup := &models.IPLookup{IPAddress: ip, LastSeen: time.Now()}

	cityFound := false
	if g.cityDB != nil {
		record, err := g.cityDB.City(parsed)
		if err == nil {
			lookup.CountryCode = record.Country.IsoCode
			lookup.CountryName = record.Country.Names["en"]
			lookup.City = record.City.Names["en"]
			lookup.Latitude = record.Location.Latitude
			lookup.Longitude = record.Location.Longitude
			cityFound = true
		} else {
			g.logger.Debug("GeoIP City lookup failed", g.logger.Args("ip", ip, "error", err))
		}
	}

	if !cityFound && g.countryDB != nil {
		record, err := g.countryDB.Country(parsed)
		if err == nil {
			lookup.CountryCode = record.Country.IsoCode
			lookup.CountryName = record.Country.Names["en"]
		} else {
			g.logger.Debug("GeoIP Country lookup failed", g.logger.Args("ip", ip, "error", err))
		}
	}

	if g.asnDB != nil {
		record, err := g.asnDB.ASN(parsed)
		if err == nil {
			lookup.ASN = int(record.AutonomousSystemNumber)
			lookup.ISP = record.AutonomousSystemOrganization
		} else {
			g.logger.Debug("GeoIP ASN lookup failed", g.logger.Args("ip", ip, "error", err))
		}
	}

	g.logger.Debug("GeoIP lookup completed",
		g.logger.Args("ip", ip, "country", lookup.CountryCode, "city", lookup.City, "asn", lookup.ASN))
	return lookup, nil
}

// remember stores the lookup, evicting the oldest tenth when the cache is full
func (g *GeoIPEnricher) remember(lookup *models.IPLookup) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()

	if len(g.cache) >= g.cacheSize {
		type ipAge struct {
			ip       string
			lastSeen time.Time
		}
		ages := make([]ipAge, 0, len(g.cache))
		for ip, cached := range g.cache {
			ages = append(ages, ipAge{ip: ip, lastSeen: cached.LastSeen})
		}
		sort.Slice(ages, func(i, j int) bool { return ages[i].lastSeen.Before(ages[j].lastSeen) })

		evict := max(g.cacheSize/10, 1)
		for i := 0; i < evict && i < len(ages); i++ {
			delete(g.cache, ages[i].ip)
		}
		g.logger.Debug("GeoIP cache eviction performed",
			g.logger.Args("evicted", evict, "cache_size", len(g.cache), "max_size", g.cacheSize))
	}
	g.cache[lookup.IPAddress] = lookup
}

// Ipinformations flattens a lookup into the visitor's ipinformation facts
func Ipinformations(lookup *models.IPLookup) map[string]string {
	if lookup == nil {
		return nil
	}
	infos := map[string]string{
		"country":     lookup.CountryName,
		"countryCode": lookup.CountryCode,
		"city":        lookup.City,
		"isp":         lookup.ISP,
		"org":         lookup.ISP,
	}
	if lookup.ASN > 0 {
		infos["asn"] = strconv.Itoa(lookup.ASN)
	}
	if lookup.Latitude != 0 || lookup.Longitude != 0 {
		infos["latitude"] = strconv.FormatFloat(lookup.Latitude, 'f', 4, 64)
		infos["longitude"] = strconv.FormatFloat(lookup.Longitude, 'f', 4, 64)
	}
	return infos
}

// LoadCache warms the memory cache with the most recently seen addresses
func (g *GeoIPEnricher) LoadCache(ctx context.Context) error {
	if !g.enabled {
		return nil
	}

	g.cacheMu.RLock()
	currentSize := len(g.cache)
	g.cacheMu.RUnlock()
	if currentSize > g.cacheSize/2 {
		g.logger.Info("GeoIP cache already populated, skipping load",
			g.logger.Args("entries", currentSize, "max_size", g.cacheSize))
		return nil
	}

	recent, err := g.lookups.Recent(ctx, g.cacheSize)
	if err != nil {
		g.logger.WithCaller().Error("Failed to load GeoIP cache", g.logger.Args("error", err))
		return err
	}

	g.cacheMu.Lock()
	for _, lookup := range recent {
		g.cache[lookup.IPAddress] = lookup
	}
	g.cacheMu.Unlock()

	g.logger.Info("Loaded GeoIP cache", g.logger.Args("entries", len(recent)))
	return nil
}

// Close closes the GeoIP databases
func (g *GeoIPEnricher) Close() error {
	for _, reader := range []*geoip2.Reader{g.cityDB, g.countryDB, g.asnDB} {
		if reader != nil {
			reader.Close()
		}
	}
	g.logger.Info("Closed GeoIP databases")
	return nil
}

// IsEnabled returns whether GeoIP enrichment is available
func (g *GeoIPEnricher) IsEnabled() bool {
	return g.enabled
}

// GetCacheSize returns the number of entries in memory cache
func (g *GeoIPEnricher) GetCacheSize() int {
	g.cacheMu.RLock()
	defer g.cacheMu.RUnlock()
	return len(g.cache)
}
