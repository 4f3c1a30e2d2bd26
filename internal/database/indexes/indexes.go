package indexes

import (
	"strings"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// Definition describes a performance index that is not expressed in the model tags.
type Definition struct {
	Name  string
	Table string
	SQL   string
}

// expectedDefinitions are the covering indexes used by the dashboard and ranking queries.
var expectedDefinitions = []Definition{
	// ===== RANKING =====
	{Name: "idx_hot_leads", Table: "visitors", SQL: `CREATE INDEX IF NOT EXISTS idx_hot_leads ON visitors(blacklisted, scoring DESC, id DESC)`},
	{Name: "idx_cs_ranking", Table: "categoryscorings", SQL: `CREATE INDEX IF NOT EXISTS idx_cs_ranking ON categoryscorings(visitor_id, scoring DESC, id DESC)`},

	// ===== TIMELINES =====
	{Name: "idx_pagevisit_visitor_time", Table: "pagevisits", SQL: `CREATE INDEX IF NOT EXISTS idx_pagevisit_visitor_time ON pagevisits(visitor_id, created_at)`},
	{Name: "idx_pagevisit_referrer_agg", Table: "pagevisits", SQL: `CREATE INDEX IF NOT EXISTS idx_pagevisit_referrer_agg ON pagevisits(referrer, created_at) WHERE referrer != ''`},
	{Name: "idx_pagevisit_browser_agg", Table: "pagevisits", SQL: `CREATE INDEX IF NOT EXISTS idx_pagevisit_browser_agg ON pagevisits(browser, created_at) WHERE browser != ''`},
	{Name: "idx_log_visitor_time", Table: "logs", SQL: `CREATE INDEX IF NOT EXISTS idx_log_visitor_time ON logs(visitor_id, created_at DESC)`},
	{Name: "idx_log_status_time", Table: "logs", SQL: `CREATE INDEX IF NOT EXISTS idx_log_status_time ON logs(status, created_at)`},
}

// legacyIndexes were replaced by the definitions above and are dropped when reconciling.
var legacyIndexes = []string{
	"idx_visitor_scoring_desc",
	"idx_pagevisit_time_visitor",
}

// Ensure reconciles expected indexes against SQLite, dropping obsolete ones and creating missing ones.
func Ensure(db *gorm.DB, logger *pterm.Logger) (created int, dropped int, err error) {
	existingIndexes, err := fetchExistingIndexes(db, tables())
	if err != nil {
		return 0, 0, err
	}

	existingSet := make(map[string]struct{}, len(existingIndexes))
	for _, name := range existingIndexes {
		existingSet[name] = struct{}{}
	}

	for _, name := range legacyIndexes {
		if _, ok := existingSet[name]; !ok {
			continue
		}
		if err := db.Exec("DROP INDEX IF EXISTS " + name).Error; err != nil {
			logger.Warn("Failed to drop index", logger.Args("index", name, "error", err))
			continue
		}
		dropped++
	}

	for _, def := range expectedDefinitions {
		if err := db.Exec(def.SQL).Error; err != nil {
			logger.Warn("Failed to create index", logger.Args("index", def.Name, "error", err))
			return created, dropped, err
		}
		if _, ok := existingSet[def.Name]; !ok {
			created++
		}
	}

	return created, dropped, nil
}

// Names returns the names of all managed indexes
func Names() []string {
	names := make([]string, len(expectedDefinitions))
	for i, def := range expectedDefinitions {
		names[i] = def.Name
	}
	return names
}

func tables() []string {
	return uniqueNames(func() []string {
		out := make([]string, len(expectedDefinitions))
		for i, def := range expectedDefinitions {
			out[i] = def.Table
		}
		return out
	}())
}

func fetchExistingIndexes(db *gorm.DB, tables []string) ([]string, error) {
	var names []string
	rows, err := db.Raw(`SELECT name FROM sqlite_master WHERE type='index' AND tbl_name IN ? AND name NOT LIKE 'sqlite_%'`, tables).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}
