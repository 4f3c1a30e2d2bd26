package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"leadlynx/internal/api"
	"leadlynx/internal/api/handlers"
	"leadlynx/internal/database"
	"leadlynx/internal/database/dbtest"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/enrichment"
	"leadlynx/internal/ingestion"
	"leadlynx/internal/locker"
	"leadlynx/internal/realtime"
	"leadlynx/internal/scoring"
	"leadlynx/internal/tracking"
	"leadlynx/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type apiFixture struct {
	store    *repositories.Store
	registry *tracking.Registry
	router   *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := dbtest.Logger()
	db := dbtest.Open(t)
	store := repositories.NewStore(db)
	locks := locker.NewKeyed()
	calc := scoring.NewCalculator(scoring.DefaultFactors(), scoring.DefaultCategoryDeltas())
	engine := scoring.NewEngine(store, locks, logger)
	registry := tracking.NewRegistry(store, locks, calc, logger)
	recorder := tracking.NewRecorder(store, engine, calc, registry, locks, logger)
	blacklister := tracking.NewBlacklister(store, locks, logger)
	rescorer := tracking.NewRescorer(store, locks, calc, logger, 10, 2)
	metrics := realtime.NewMetricsCollector(logger)
	companies := enrichment.NewCompanyDirectory(store.Catalog, logger)
	statsRepo := repositories.NewStatsRepository(db, logger)
	cleanup := database.NewCleanupService(db, locks, logger, 30, 0, "02:00", false)

	gateway := ingestion.NewGateway(registry, recorder, store.Catalog, workflow.NewEvaluator(nil, logger), nil, nil, metrics, logger)

	router := api.NewRouter(api.Handlers{
		Track: handlers.NewTrackHandler(gateway, logger),
		Leads: handlers.NewLeadHandler(handlers.LeadDeps{
			Store:       store,
			Engine:      engine,
			Calculator:  calc,
			Registry:    registry,
			Blacklister: blacklister,
			Rescorer:    rescorer,
			Companies:   companies,
			Labels:      tracking.DefaultLabels(),
		}, logger),
		Catalog:   handlers.NewCatalogHandler(store.Catalog, companies, logger),
		Dashboard: handlers.NewDashboardHandler(statsRepo, logger),
		System:    handlers.NewSystemHandler(statsRepo, store.Visitors, cleanup, rescorer, metrics, logger, "", 30),
	}, logger)

	return &apiFixture{store: store, registry: registry, router: router}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func (f *apiFixture) category(t *testing.T, title string) uint {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/catalog/categories", map[string]string{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating category, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID uint `json:"id"`
	}
	decode(t, w, &created)
	return created.ID
}

func (f *apiFixture) visitorID(t *testing.T, fingerprint string) uint {
	t.Helper()
	v, err := f.store.Visitors.FindByFingerprint(context.Background(), fingerprint)
	if err != nil {
		t.Fatalf("Failed to find visitor for %q: %v", fingerprint, err)
	}
	return v.ID
}

func pageEvent(fingerprint string, pageUID int) map[string]interface{} {
	return map[string]interface{}{
		"dispatchAction": "pageRequest",
		"arguments": map[string]interface{}{
			"fingerprint": fingerprint,
			"pageUid":     pageUID,
			"referrer":    "https://search.example/",
		},
	}
}

func TestTrack(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("Expected empty directive list, got %s", body)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected CORS header on tracking response")
	}

	v, err := f.store.Visitors.FindByID(context.Background(), f.visitorID(t, "fp-1"))
	if err != nil {
		t.Fatalf("Failed to load visitor: %v", err)
	}
	if v.Scoring != 11 {
		t.Errorf("Expected scoring 11, got %d", v.Scoring)
	}
}

func TestTrack_RejectsInvalidRequests(t *testing.T) {
	f := newAPIFixture(t)

	tests := map[string]interface{}{
		"malformed json":  "{not json",
		"unknown action":  map[string]interface{}{"dispatchAction": "deleteEverything", "arguments": map[string]string{}},
		"missing page id": map[string]interface{}{"dispatchAction": "pageRequest", "arguments": map[string]string{"fingerprint": "fp"}},
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/track", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp map[string]string
			decode(t, w, &resp)
			if resp["error"] != "invalid tracking request" {
				t.Errorf("Expected generic error body, got %q", resp["error"])
			}
		})
	}
}

func TestTrack_Preflight(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodOptions, "/track", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
}

func TestTrackBatch(t *testing.T) {
	f := newAPIFixture(t)

	batch := []interface{}{
		pageEvent("fp-1", 1),
		pageEvent("fp-2", 1),
		map[string]interface{}{"dispatchAction": "downloadRequest", "arguments": map[string]string{"fingerprint": "fp-1"}},
	}
	w := f.do(t, http.MethodPost, "/track/batch", batch)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result ingestion.BatchResult
	decode(t, w, &result)
	if result.Accepted != 2 || result.Rejected != 1 {
		t.Errorf("Expected 2 accepted and 1 rejected, got %+v", result)
	}
}

func TestVisitorProfile(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	categoryID := f.category(t, "Products")
	w := f.do(t, http.MethodPut, "/api/catalog/pages/7", map[string]interface{}{"title": "Pricing", "category_id": categoryID})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 saving page, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPut, "/api/catalog/ip-companies", map[string]string{"cidr": "192.0.2.0/24", "company": "Example Corp"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 saving ip company, got %d: %s", w.Code, w.Body.String())
	}

	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 7))
	f.do(t, http.MethodPost, "/track", map[string]interface{}{
		"dispatchAction": "formListeningRequest",
		"arguments": map[string]interface{}{
			"fingerprint": "fp-1",
			"values":      map[string]string{"firstname": "Ada", "lastname": "Lovelace"},
		},
	})

	id := f.visitorID(t, "fp-1")
	w = f.do(t, http.MethodGet, "/api/visitors/"+itoa(id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var profile handlers.VisitorProfile
	decode(t, w, &profile)
	if profile.Name != "Lovelace, Ada [not identified]" {
		t.Errorf("Expected anonymous name combination, got %q", profile.Name)
	}
	if profile.Company != "Example Corp" {
		t.Errorf("Expected company from ip range, got %q", profile.Company)
	}
	if profile.Scoring != 21 {
		t.Errorf("Expected scoring 21, got %d", profile.Scoring)
	}
	if profile.HottestCategory == nil || profile.HottestCategory.Category != "Products" {
		t.Errorf("Expected hottest category Products, got %+v", profile.HottestCategory)
	}
	if len(profile.Fingerprints) != 1 || profile.Fingerprints[0] != "fp-1" {
		t.Errorf("Expected fingerprint fp-1, got %v", profile.Fingerprints)
	}

	if _, err := f.store.Visitors.FindByID(ctx, id); err != nil {
		t.Fatalf("Visitor disappeared: %v", err)
	}
}

func TestVisitorProfile_Errors(t *testing.T) {
	f := newAPIFixture(t)

	if w := f.do(t, http.MethodGet, "/api/visitors/999", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown visitor, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/visitors/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid id, got %d", w.Code)
	}
}

func TestScores(t *testing.T) {
	f := newAPIFixture(t)

	categoryA := f.category(t, "A")
	categoryB := f.category(t, "B")
	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))
	id := itoa(f.visitorID(t, "fp-1"))

	if w := f.do(t, http.MethodGet, "/api/visitors/"+id+"/hottest-category", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 without scores, got %d", w.Code)
	}

	w := f.do(t, http.MethodPut, "/api/visitors/"+id+"/scores/"+itoa(categoryA), map[string]int{"value": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 setting score, got %d: %s", w.Code, w.Body.String())
	}
	var change scoring.Change
	decode(t, w, &change)
	if change.Old != 0 || change.New != 5 {
		t.Errorf("Expected change 0 -> 5, got %+v", change)
	}

	w = f.do(t, http.MethodPost, "/api/visitors/"+id+"/scores/"+itoa(categoryB)+"/increment", map[string]int{"delta": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 incrementing score, got %d: %s", w.Code, w.Body.String())
	}

	// Tie at 5: the later-registered row wins
	w = f.do(t, http.MethodGet, "/api/visitors/"+id+"/hottest-category", nil)
	var hottest handlers.ScoreView
	decode(t, w, &hottest)
	if hottest.CategoryID != categoryB {
		t.Errorf("Expected category B to win the tie, got %+v", hottest)
	}

	w = f.do(t, http.MethodGet, "/api/visitors/"+id+"/scores", nil)
	var ranked []handlers.ScoreView
	decode(t, w, &ranked)
	if len(ranked) != 2 || ranked[0].CategoryID != categoryB {
		t.Errorf("Expected B ranked first, got %+v", ranked)
	}

	if w := f.do(t, http.MethodPut, "/api/visitors/"+id+"/scores/999", map[string]int{"value": 1}); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown category, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/api/visitors/"+id+"/scores/"+itoa(categoryA), map[string]int{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without value, got %d", w.Code)
	}
}

func TestBlacklist(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))
	id := itoa(f.visitorID(t, "fp-1"))

	w := f.do(t, http.MethodPost, "/api/visitors/"+id+"/blacklist", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var profile handlers.VisitorProfile
	decode(t, w, &profile)
	if !profile.Blacklisted || profile.Scoring != 0 || profile.Email != "" {
		t.Errorf("Expected scrubbed visitor, got %+v", profile.LeadSummary)
	}

	// Further tracking of the blacklisted fingerprint is dropped
	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))
	w = f.do(t, http.MethodGet, "/api/visitors/"+id, nil)
	decode(t, w, &profile)
	if profile.Pagevisits != 0 {
		t.Errorf("Expected no page visits after blacklisting, got %d", profile.Pagevisits)
	}

	category := itoa(f.category(t, "Products"))
	if w := f.do(t, http.MethodPut, "/api/visitors/"+id+"/scores/"+category, map[string]int{"value": 5}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 scoring a blacklisted visitor, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/visitors/"+id+"/scores/"+category+"/increment", map[string]int{"delta": 5}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 incrementing a blacklisted visitor, got %d", w.Code)
	}
}

func TestMerge(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))
	f.do(t, http.MethodPost, "/track", pageEvent("fp-2", 1))
	source := f.visitorID(t, "fp-2")
	target := f.visitorID(t, "fp-1")

	w := f.do(t, http.MethodPost, "/api/visitors/"+itoa(source)+"/merge/"+itoa(target), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var profile handlers.VisitorProfile
	decode(t, w, &profile)
	if profile.ID != target || len(profile.Fingerprints) != 2 {
		t.Errorf("Expected target with both fingerprints, got id %d fingerprints %v", profile.ID, profile.Fingerprints)
	}

	if w := f.do(t, http.MethodPost, "/api/visitors/"+itoa(target)+"/merge/"+itoa(target), nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 merging into itself, got %d", w.Code)
	}
}

func TestHottestLeads(t *testing.T) {
	f := newAPIFixture(t)

	if w := f.do(t, http.MethodGet, "/api/leads/top", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for empty population, got %d", w.Code)
	}

	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))
	f.do(t, http.MethodPost, "/track", pageEvent("fp-2", 1))
	f.do(t, http.MethodPost, "/track", map[string]interface{}{
		"dispatchAction": "downloadRequest",
		"arguments":      map[string]string{"fingerprint": "fp-2", "href": "/files/brochure.pdf"},
	})

	w := f.do(t, http.MethodGet, "/api/leads/hottest?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var leads []handlers.LeadSummary
	decode(t, w, &leads)
	if len(leads) != 2 {
		t.Fatalf("Expected 2 leads, got %d", len(leads))
	}
	if leads[0].ID != f.visitorID(t, "fp-2") || leads[0].Scoring != 31 {
		t.Errorf("Expected fp-2 first with scoring 31, got %+v", leads[0])
	}
	if leads[0].Name != "Anonymous" {
		t.Errorf("Expected anonymous label, got %q", leads[0].Name)
	}
}

func TestCatalog_Validation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"category without title", http.MethodPost, "/api/catalog/categories", map[string]string{}},
		{"page with unknown category", http.MethodPut, "/api/catalog/pages/1", map[string]interface{}{"category_id": 42}},
		{"redirect without target", http.MethodPut, "/api/catalog/redirects", map[string]string{"hash": "abc"}},
		{"invalid ip range", http.MethodPut, "/api/catalog/ip-companies", map[string]string{"cidr": "not-an-ip", "company": "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.path, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRedirectFlow(t *testing.T) {
	f := newAPIFixture(t)

	categoryID := f.category(t, "Campaign")
	w := f.do(t, http.MethodPut, "/api/catalog/redirects", map[string]interface{}{
		"hash": "spring", "target": "https://example.com/spring", "category_id": categoryID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 saving redirect, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/track", map[string]interface{}{
		"dispatchAction": "redirectRequest",
		"arguments":      map[string]string{"fingerprint": "fp-1", "redirectHash": "spring"},
	})
	var directives []workflow.Directive
	decode(t, w, &directives)
	if len(directives) != 1 || directives[0].Action != workflow.ActionRedirect {
		t.Fatalf("Expected one redirect directive, got %+v", directives)
	}
	if directives[0].Configuration["uri"] != "https://example.com/spring" {
		t.Errorf("Expected redirect target, got %v", directives[0].Configuration["uri"])
	}
}

func TestDashboardAndSystem(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/track", pageEvent("fp-1", 1))

	w := f.do(t, http.MethodGet, "/api/dashboard/summary?days=7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var summary map[string]interface{}
	decode(t, w, &summary)
	if summary["status"] != "ok" || summary["visitors"] != float64(1) || summary["pagevisits"] != float64(1) {
		t.Errorf("Unexpected summary: %v", summary)
	}

	w = f.do(t, http.MethodGet, "/api/system/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var stats handlers.SystemStats
	decode(t, w, &stats)
	if stats.TotalVisitors != 1 {
		t.Errorf("Expected 1 visitor, got %d", stats.TotalVisitors)
	}
	if stats.Ingestion == nil || stats.Ingestion.Totals.Accepted != 1 {
		t.Errorf("Expected one accepted event in ingestion metrics, got %+v", stats.Ingestion)
	}

	w = f.do(t, http.MethodPost, "/api/system/rescore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report tracking.RescoreReport
	decode(t, w, &report)
	if report.Processed != 1 || report.Changed != 0 {
		t.Errorf("Expected 1 processed and 0 changed, got %+v", report)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
