package ingestion_test

import (
	"context"
	"sync"
	"testing"

	"leadlynx/internal/database/dbtest"
	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"
	"leadlynx/internal/ingestion"
	"leadlynx/internal/locker"
	"leadlynx/internal/realtime"
	"leadlynx/internal/scoring"
	"leadlynx/internal/tracking"
	"leadlynx/internal/workflow"

	"github.com/goccy/go-json"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const testRules = `
rules:
  - name: hot lead
    trigger: {type: scoring, threshold: 30}
    action: {type: lightboxContent, params: {contentElement: 5, delay: 0}}
  - name: identified
    trigger: {type: identified}
    action: {type: ajaxContent, params: {contentElement: 9, domselection: "#thanks"}}
`

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) SendAsset(ctx context.Context, email, href string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email+" "+href)
	return nil
}

type gatewayFixture struct {
	store       *repositories.Store
	gateway     *ingestion.Gateway
	blacklister *tracking.Blacklister
	metrics     *realtime.MetricsCollector
	mailer      *recordingMailer
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	logger := dbtest.Logger()
	store := repositories.NewStore(dbtest.Open(t))
	locks := locker.NewKeyed()
	calc := scoring.NewCalculator(scoring.DefaultFactors(), scoring.DefaultCategoryDeltas())
	engine := scoring.NewEngine(store, locks, logger)
	registry := tracking.NewRegistry(store, locks, calc, logger)
	recorder := tracking.NewRecorder(store, engine, calc, registry, locks, logger)

	rules, err := workflow.Parse([]byte(testRules))
	if err != nil {
		t.Fatalf("Failed to parse rules: %v", err)
	}
	metrics := realtime.NewMetricsCollector(logger)
	mailer := &recordingMailer{}

	return &gatewayFixture{
		store:       store,
		gateway:     ingestion.NewGateway(registry, recorder, store.Catalog, workflow.NewEvaluator(rules, logger), nil, mailer, metrics, logger),
		blacklister: tracking.NewBlacklister(store, locks, logger),
		metrics:     metrics,
		mailer:      mailer,
	}
}

func request(t *testing.T, action string, args interface{}) ingestion.Request {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("Failed to encode arguments: %v", err)
	}
	return ingestion.Request{DispatchAction: action, Arguments: raw}
}

func (f *gatewayFixture) visitorFor(t *testing.T, fingerprint string) *models.Visitor {
	t.Helper()
	v, err := f.store.Visitors.FindByFingerprint(context.Background(), fingerprint)
	if err != nil {
		t.Fatalf("Failed to find visitor for %q: %v", fingerprint, err)
	}
	return v
}

func TestGateway_PageRequestCreatesVisitor(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	meta := ingestion.Meta{UserAgent: browserUA, ClientIP: "203.0.113.9"}

	directives, err := f.gateway.Handle(ctx, request(t, ingestion.ActionPage, map[string]interface{}{
		"fingerprint": "abc",
		"pageUid":     "12",
		"languageUid": 0,
		"referrer":    "https://search.example/",
		"currentUrl":  "https://example.com/products",
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if directives == nil || len(directives) != 0 {
		t.Errorf("Expected an empty directive list, got %v", directives)
	}

	v := f.visitorFor(t, "abc")
	if v.Scoring != 11 || v.Visits != 1 {
		t.Errorf("Expected scoring 11 and 1 visit, got %d and %d", v.Scoring, v.Visits)
	}
	if v.IPAddress != "203.0.113.9" {
		t.Errorf("Expected the client address to be stored, got %q", v.IPAddress)
	}

	agg, err := tracking.LoadAggregate(ctx, f.store, v.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(agg.Pagevisits) != 1 || agg.Pagevisits[0].Browser != "Chrome" || agg.Pagevisits[0].PageID != 12 {
		t.Errorf("Expected one Chrome visit of page 12, got %+v", agg.Pagevisits)
	}
}

func TestGateway_ValidationFailures(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	meta := ingestion.Meta{UserAgent: browserUA}

	tests := map[string]ingestion.Request{
		"unknown action":      {DispatchAction: "deleteEverything", Arguments: json.RawMessage(`{}`)},
		"missing arguments":   {DispatchAction: ingestion.ActionPage},
		"missing fingerprint": request(t, ingestion.ActionPage, map[string]interface{}{"pageUid": 1}),
		"bad page uid":        request(t, ingestion.ActionPage, map[string]interface{}{"fingerprint": "x", "pageUid": "abc"}),
		"invalid email":       request(t, ingestion.ActionEmail4Link, map[string]interface{}{"fingerprint": "x", "email": "nope", "href": "/a.pdf"}),
		"form not an object":  request(t, ingestion.ActionFormListening, map[string]interface{}{"fingerprint": "x", "values": "[1,2]"}),
	}

	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := f.gateway.Handle(ctx, req, meta); !errs.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	var count int64
	f.store.DB().Model(&models.Visitor{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no visitors to be created, got %d", count)
	}
}

func TestGateway_BotsAreIgnored(t *testing.T) {
	f := newGatewayFixture(t)
	meta := ingestion.Meta{UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"}

	directives, err := f.gateway.Handle(context.Background(), request(t, ingestion.ActionPage, map[string]interface{}{
		"fingerprint": "bot", "pageUid": 1,
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(directives) != 0 {
		t.Errorf("Expected no directives, got %v", directives)
	}

	var count int64
	f.store.DB().Model(&models.Visitor{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected bots not to create visitors, got %d", count)
	}
}

func TestGateway_BlacklistedVisitorIsIgnored(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	meta := ingestion.Meta{UserAgent: browserUA}
	page := request(t, ingestion.ActionPage, map[string]interface{}{"fingerprint": "gone", "pageUid": 1})

	if _, err := f.gateway.Handle(ctx, page, meta); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	v := f.visitorFor(t, "gone")
	if _, err := f.blacklister.BlacklistByID(ctx, v.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := f.gateway.Handle(ctx, page, meta); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := f.visitorFor(t, "gone").Scoring; got != 0 {
		t.Errorf("Expected scoring to stay 0, got %d", got)
	}
}

func TestGateway_WorkflowDirectives(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	meta := ingestion.Meta{UserAgent: browserUA}

	directives, err := f.gateway.Handle(ctx, request(t, ingestion.ActionDownload, map[string]interface{}{
		"fingerprint": "dl", "href": "/files/a.pdf",
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(directives) != 0 {
		t.Fatalf("Expected no directive below threshold, got %v", directives)
	}

	directives, err = f.gateway.Handle(ctx, request(t, ingestion.ActionDownload, map[string]interface{}{
		"fingerprint": "dl", "href": "/files/b.pdf",
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(directives) != 1 || directives[0].Action != workflow.ActionLightboxContent {
		t.Fatalf("Expected a lightbox directive when crossing 30, got %v", directives)
	}

	directives, err = f.gateway.Handle(ctx, request(t, ingestion.ActionFormListening, map[string]interface{}{
		"fingerprint": "dl",
		"values":      `{"email":"lead@example.com","firstname":"Jane"}`,
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(directives) != 1 || directives[0].Action != workflow.ActionAjaxContent {
		t.Errorf("Expected an ajax directive on identification, got %v", directives)
	}
	if !f.visitorFor(t, "dl").Identified {
		t.Error("Expected the visitor to be identified")
	}
}

func TestGateway_Email4LinkSendsMail(t *testing.T) {
	f := newGatewayFixture(t)
	meta := ingestion.Meta{UserAgent: browserUA}

	_, err := f.gateway.Handle(context.Background(), request(t, ingestion.ActionEmail4Link, map[string]interface{}{
		"fingerprint": "e4l",
		"email":       "Buyer@Example.com",
		"sendEmail":   "true",
		"href":        "/files/catalog.pdf",
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0] != "buyer@example.com /files/catalog.pdf" {
		t.Errorf("Expected one mail to buyer@example.com, got %v", f.mailer.sent)
	}
}

func TestGateway_RedirectAlwaysAnswers(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	meta := ingestion.Meta{UserAgent: browserUA}

	campaign := &models.Category{Title: "Campaign"}
	if err := f.store.Catalog.AddCategory(ctx, campaign); err != nil {
		t.Fatalf("Failed to add category: %v", err)
	}
	if err := f.store.Catalog.SaveRedirect(ctx, &models.Redirect{Hash: "h1", Target: "https://example.com/offer", CategoryID: &campaign.ID}); err != nil {
		t.Fatalf("Failed to save redirect: %v", err)
	}

	// Opt-out: no fingerprint, nothing recorded
	directives, err := f.gateway.Handle(ctx, request(t, ingestion.ActionRedirect, map[string]interface{}{
		"fingerprint": "", "redirectHash": "h1",
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(directives) != 1 || directives[0].Configuration["uri"] != "https://example.com/offer" {
		t.Fatalf("Expected a redirect directive, got %v", directives)
	}
	var count int64
	f.store.DB().Model(&models.Visitor{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no visitor for an opted-out redirect, got %d", count)
	}

	directives, err = f.gateway.Handle(ctx, request(t, ingestion.ActionRedirect, map[string]interface{}{
		"fingerprint": "tracked", "redirectHash": "h1",
	}), meta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(directives) == 0 || directives[0].Action != workflow.ActionRedirect {
		t.Fatalf("Expected the redirect directive first, got %v", directives)
	}
	if got := f.visitorFor(t, "tracked").Scoring; got != 20 {
		t.Errorf("Expected redirect category scoring 20, got %d", got)
	}

	if _, err := f.gateway.Handle(ctx, request(t, ingestion.ActionRedirect, map[string]interface{}{
		"redirectHash": "missing",
	}), meta); !errs.IsValidation(err) {
		t.Errorf("Expected validation error for an unknown hash, got %v", err)
	}
}

func TestGateway_HandleBatch(t *testing.T) {
	f := newGatewayFixture(t)
	meta := ingestion.Meta{UserAgent: browserUA}

	result := f.gateway.HandleBatch(context.Background(), []ingestion.Request{
		request(t, ingestion.ActionPage, map[string]interface{}{"fingerprint": "batch", "pageUid": 1}),
		request(t, ingestion.ActionFieldListening, map[string]interface{}{"fingerprint": "batch", "key": "company", "value": "ACME"}),
		request(t, ingestion.ActionLinkClick, map[string]interface{}{"fingerprint": "batch"}),
		{DispatchAction: "bogus"},
	}, meta)

	if result.Accepted != 2 || result.Rejected != 2 || result.Failed != 0 {
		t.Errorf("Expected 2 accepted and 2 rejected, got %+v", result)
	}

	metrics := f.metrics.GetMetrics()
	if metrics.Totals.Accepted != 2 || metrics.Totals.Rejected != 2 {
		t.Errorf("Expected metrics to count the batch, got %+v", metrics.Totals)
	}
}
