package tracking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"
	"leadlynx/internal/tracking"
)

func TestRecorder_PageVisitsScoreSessionsAndCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	products := f.category(t, "Products")
	f.page(t, 7, products)
	v := f.visitor(t, "pv")

	start := time.Now().Add(-2 * time.Hour)
	out, err := f.recorder.RecordPageVisit(ctx, v.ID, tracking.PageVisit{PageID: 7, At: start})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.ScoringBefore != 0 || out.ScoringAfter != 21 {
		t.Errorf("Expected scoring 0 -> 21, got %d -> %d", out.ScoringBefore, out.ScoringAfter)
	}
	if len(out.Categories) != 1 || out.Categories[0].New != 10 {
		t.Errorf("Expected one category change to 10, got %+v", out.Categories)
	}

	if _, err := f.recorder.RecordPageVisit(ctx, v.ID, tracking.PageVisit{PageID: 7, At: start.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out, err = f.recorder.RecordPageVisit(ctx, v.ID, tracking.PageVisit{PageID: 7, At: start.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 2 sessions, 3 page visits, 3 category hits
	expected := 2*10 + 3*1 + 3*10
	if out.ScoringAfter != expected {
		t.Errorf("Expected scoring %d, got %d", expected, out.ScoringAfter)
	}
	if out.Visitor.Visits != 2 {
		t.Errorf("Expected 2 visits, got %d", out.Visitor.Visits)
	}

	changed, err := f.rescorer.RescoreOne(ctx, v.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if changed {
		t.Error("Expected a recompute to agree with the incremental total")
	}
}

func TestRecorder_UntaggedPageOnlyScoresVisitor(t *testing.T) {
	f := newFixture(t)
	v := f.visitor(t, "untagged")

	out, err := f.recorder.RecordPageVisit(context.Background(), v.ID, tracking.PageVisit{PageID: 404})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Categories) != 0 {
		t.Errorf("Expected no category changes, got %d", len(out.Categories))
	}
	if out.ScoringAfter != 11 {
		t.Errorf("Expected scoring 11, got %d", out.ScoringAfter)
	}
}

func TestRecorder_DownloadOfRegisteredFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	whitepapers := f.category(t, "Whitepapers")
	if err := f.store.Catalog.SaveFile(ctx, &models.File{Href: "/files/guide.pdf", CategoryID: &whitepapers.ID}); err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	v := f.visitor(t, "dl")

	out, err := f.recorder.RecordDownload(ctx, v.ID, "/files/guide.pdf", time.Time{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.ScoringAfter != 40 {
		t.Errorf("Expected scoring 40, got %d", out.ScoringAfter)
	}

	if _, err := f.recorder.RecordDownload(ctx, v.ID, " ", time.Time{}); !errs.IsValidation(err) {
		t.Errorf("Expected validation error for empty href, got %v", err)
	}
}

func TestRecorder_BlacklistedVisitorIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.visitor(t, "blocked")

	if _, err := f.blacklister.BlacklistByID(ctx, v.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err := f.recorder.RecordPageVisit(ctx, v.ID, tracking.PageVisit{PageID: 1})
	if !errors.Is(err, tracking.ErrBlacklisted) {
		t.Errorf("Expected ErrBlacklisted, got %v", err)
	}
	if got := f.reload(t, v.ID).Scoring; got != 0 {
		t.Errorf("Expected scoring to stay 0, got %d", got)
	}
}

func TestRecorder_EmailIdentifiesVisitor(t *testing.T) {
	f := newFixture(t)
	v := f.visitor(t, "mail")

	out, err := f.recorder.SetAttribute(context.Background(), v.ID, "email", "  Jane.Doe@Example.com ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !out.Identified {
		t.Error("Expected visitor to become identified")
	}
	if out.Visitor.Email != "jane.doe@example.com" {
		t.Errorf("Expected normalized email, got %q", out.Visitor.Email)
	}
}

func TestRecorder_InvalidEmailIsKeptAsAttributeOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.visitor(t, "bad-mail")

	out, err := f.recorder.SetAttribute(ctx, v.ID, "email", "not-an-address")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Identified || out.Visitor.Identified {
		t.Error("Expected visitor to stay anonymous")
	}

	agg, err := tracking.LoadAggregate(ctx, f.store, v.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if agg.Attribute("email") != "not-an-address" {
		t.Errorf("Expected attribute to be stored, got %q", agg.Attribute("email"))
	}
}

func TestRecorder_SameEmailMergesIntoOldestVisitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.visitor(t, "laptop")
	second := f.visitor(t, "phone")

	if _, err := f.recorder.SetAttribute(ctx, first.ID, "email", "lead@example.com"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := f.recorder.RecordPageVisit(ctx, second.ID, tracking.PageVisit{PageID: 3}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	survivorBefore := f.reload(t, first.ID).Scoring

	out, err := f.recorder.SetAttribute(ctx, second.ID, "email", "LEAD@example.com")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !out.Merged {
		t.Error("Expected the outcome to report a merge")
	}
	if out.Visitor.ID != first.ID {
		t.Errorf("Expected survivor %d, got %d", first.ID, out.Visitor.ID)
	}
	if out.Visitor.Scoring != 11 {
		t.Errorf("Expected merged scoring 11, got %d", out.Visitor.Scoring)
	}
	if out.ScoringBefore != survivorBefore {
		t.Errorf("Expected scoring before %d from the survivor, got %d", survivorBefore, out.ScoringBefore)
	}
	if out.ScoringAfter != 11 {
		t.Errorf("Expected scoring after 11, got %d", out.ScoringAfter)
	}
	if _, err := f.store.Visitors.FindByID(ctx, second.ID); !errs.IsNotFound(err) {
		t.Errorf("Expected newer visitor to be removed, got %v", err)
	}
}

func TestRecorder_SetAttributesFollowsMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.visitor(t, "a")
	second := f.visitor(t, "b")

	if _, err := f.recorder.SetAttribute(ctx, first.ID, "email", "x@example.com"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out, err := f.recorder.SetAttributes(ctx, second.ID, map[string]string{
		"email":     "x@example.com",
		"firstname": "Jane",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Visitor.ID != first.ID {
		t.Errorf("Expected survivor %d, got %d", first.ID, out.Visitor.ID)
	}

	agg, err := tracking.LoadAggregate(ctx, f.store, first.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if agg.Attribute("firstname") != "Jane" {
		t.Errorf("Expected firstname on the survivor, got %q", agg.Attribute("firstname"))
	}
}

func TestRecorder_Email4Link(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.visitor(t, "e4l")

	out, err := f.recorder.Email4Link(ctx, v.ID, "buyer@example.com", "/files/price-list.pdf")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !out.Identified {
		t.Error("Expected visitor to become identified")
	}
	if out.ScoringAfter != 20 {
		t.Errorf("Expected download scoring 20, got %d", out.ScoringAfter)
	}

	agg, err := tracking.LoadAggregate(ctx, f.store, v.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(agg.Downloads) != 1 || agg.Downloads[0].Href != "/files/price-list.pdf" {
		t.Errorf("Expected one recorded download, got %+v", agg.Downloads)
	}
}

func TestRecorder_RedirectScoresCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	campaign := f.category(t, "Campaign")
	v := f.visitor(t, "redir")

	out, err := f.recorder.RecordRedirect(ctx, v.ID, &models.Redirect{Hash: "abc", Target: "https://example.com", CategoryID: &campaign.ID})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.ScoringAfter != 20 {
		t.Errorf("Expected scoring 20, got %d", out.ScoringAfter)
	}
}

func TestRecorder_AddIpinformations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.visitor(t, "geo")

	err := f.recorder.AddIpinformations(ctx, v.ID, "203.0.113.5", map[string]string{
		"city":    "Berlin",
		"country": "Germany",
		"isp":     "",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	agg, err := tracking.LoadAggregate(ctx, f.store, v.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if agg.Visitor.IPAddress != "203.0.113.5" {
		t.Errorf("Expected IP address to be stored, got %q", agg.Visitor.IPAddress)
	}
	if len(agg.Ipinformations) != 2 {
		t.Errorf("Expected 2 ipinformations, got %d", len(agg.Ipinformations))
	}
	if agg.Location() != "Berlin / Germany" {
		t.Errorf("Expected location 'Berlin / Germany', got %q", agg.Location())
	}
}
