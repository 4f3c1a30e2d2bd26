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
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"leadlynx/internal/database"
	"leadlynx/internal/scoring"
	"leadlynx/internal/tracking"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	GeoIP      GeoIPConfig
	Enrichment EnrichmentConfig
	Scoring    ScoringConfig
	Cleanup    CleanupConfig
	Labels     tracking.Labels
	LogLevel   string
}

type ServerConfig struct {
	Host    string
	Port    int
	GinMode string
}

type DatabaseConfig struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	AutoTuning   bool
}

type GeoIPConfig struct {
	CityDB    string
	CountryDB string
	ASNDB     string
	CacheSize int
}

type EnrichmentConfig struct {
	TelecomProviderList string
	WorkflowFile        string
}

type ScoringConfig struct {
	Factors scoring.Factors
	Deltas  scoring.CategoryDeltas
}

type CleanupConfig struct {
	UnknownDays int
	Time        string
	Interval    time.Duration
	Vacuum      bool
}

// Load reads the environment, after merging the optional env file into it.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	factors := scoring.DefaultFactors()
	deltas := scoring.DefaultCategoryDeltas()
	labels := tracking.DefaultLabels()

	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			GinMode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Path:         getEnv("DB_PATH", "leadlynx.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 3),
			ConnMaxLife:  getEnvDuration("DB_CONN_MAX_LIFE", time.Hour),
			AutoTuning:   getEnvBool("DB_AUTO_TUNING", true),
		},
		GeoIP: GeoIPConfig{
			CityDB:    getEnv("GEOIP_CITY_DB", "geoip/GeoLite2-City.mmdb"),
			CountryDB: getEnv("GEOIP_COUNTRY_DB", "geoip/GeoLite2-Country.mmdb"),
			ASNDB:     getEnv("GEOIP_ASN_DB", "geoip/GeoLite2-ASN.mmdb"),
			CacheSize: getEnvInt("GEOIP_CACHE_SIZE", 10000),
		},
		Enrichment: EnrichmentConfig{
			TelecomProviderList: getEnv("TELECOM_PROVIDER_LIST", ""),
			WorkflowFile:        getEnv("WORKFLOW_FILE", ""),
		},
		Scoring: ScoringConfig{
			Factors: scoring.Factors{
				Session:   getEnvInt("SCORING_SESSION", factors.Session),
				Pagevisit: getEnvInt("SCORING_PAGEVISIT", factors.Pagevisit),
				Newsvisit: getEnvInt("SCORING_NEWSVISIT", factors.Newsvisit),
				Download:  getEnvInt("SCORING_DOWNLOAD", factors.Download),
				Linkclick: getEnvInt("SCORING_LINKCLICK", factors.Linkclick),
				DecayDays: getEnvInt("SCORING_DECAY_DAYS", factors.DecayDays),
			},
			Deltas: scoring.CategoryDeltas{
				Pagevisit: getEnvInt("CATEGORY_SCORING_PAGEVISIT", deltas.Pagevisit),
				Newsvisit: getEnvInt("CATEGORY_SCORING_NEWSVISIT", deltas.Newsvisit),
				Download:  getEnvInt("CATEGORY_SCORING_DOWNLOAD", deltas.Download),
				Linkclick: getEnvInt("CATEGORY_SCORING_LINKCLICK", deltas.Linkclick),
				Redirect:  getEnvInt("CATEGORY_SCORING_REDIRECT", deltas.Redirect),
			},
		},
		Cleanup: CleanupConfig{
			UnknownDays: getEnvInt("CLEANUP_UNKNOWN_DAYS", 30),
			Time:        getEnv("CLEANUP_TIME", "02:00"),
			Interval:    getEnvDuration("CLEANUP_INTERVAL", time.Hour),
			Vacuum:      getEnvBool("CLEANUP_VACUUM", true),
		},
		Labels: tracking.Labels{
			Unknown:       getEnv("LABEL_UNKNOWN", labels.Unknown),
			Anonymous:     getEnv("LABEL_ANONYMOUS", labels.Anonymous),
			NotIdentified: getEnv("LABEL_NOT_IDENTIFIED", labels.NotIdentified),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the service misbehave silently
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.Server.GinMode)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Scoring.Factors.DecayDays < 0 {
		return fmt.Errorf("SCORING_DECAY_DAYS must not be negative")
	}
	if c.Cleanup.UnknownDays < 0 {
		return fmt.Errorf("CLEANUP_UNKNOWN_DAYS must not be negative")
	}
	if _, err := time.Parse("15:04", c.Cleanup.Time); err != nil {
		return fmt.Errorf("CLEANUP_TIME must be HH:MM, got %q", c.Cleanup.Time)
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DatabaseConnection converts the database section for database.NewConnection
func (c *Config) DatabaseConnection() *database.Config {
	return &database.Config{
		Path:         c.Database.Path,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		ConnMaxLife:  c.Database.ConnMaxLife,
		AutoTuning:   c.Database.AutoTuning,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
