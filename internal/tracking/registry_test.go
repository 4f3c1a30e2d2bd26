package tracking_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"leadlynx/internal/database/models"
	"leadlynx/internal/errs"
)

func TestRegistry_ResolveOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.registry.ResolveOrCreate(ctx, "fp-1", "agent")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !created {
		t.Error("Expected first contact to create a visitor")
	}

	second, created, err := f.registry.ResolveOrCreate(ctx, "fp-1", "agent")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if created {
		t.Error("Expected second contact to reuse the visitor")
	}
	if first.ID != second.ID {
		t.Errorf("Expected visitor %d, got %d", first.ID, second.ID)
	}
}

func TestRegistry_RejectsInvalidFingerprints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, value := range []string{"", "   ", strings.Repeat("x", 256)} {
		if _, _, err := f.registry.ResolveOrCreate(ctx, value, ""); !errs.IsValidation(err) {
			t.Errorf("Expected validation error for %q, got %v", value, err)
		}
	}
}

func TestRegistry_ConcurrentFirstContactCreatesOneVisitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	ids := make([]uint, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := f.registry.ResolveOrCreate(ctx, "shared", "agent")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			ids[i] = v.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("Expected all callers to get visitor %d, got %d", ids[0], id)
		}
	}

	var visitors, fingerprints int64
	f.store.DB().Model(&models.Visitor{}).Count(&visitors)
	f.store.DB().Model(&models.Fingerprint{}).Count(&fingerprints)
	if visitors != 1 || fingerprints != 1 {
		t.Errorf("Expected 1 visitor and 1 fingerprint, got %d and %d", visitors, fingerprints)
	}
}

func TestRegistry_ResolveIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	visitor, created, err := f.registry.ResolveOrCreate(ctx, "fp-cancelled", "agent")
	if err != nil {
		t.Fatalf("Expected the shared lookup to finish, got %v", err)
	}
	if !created || visitor.ID == 0 {
		t.Errorf("Expected a new visitor, got %+v (created=%v)", visitor, created)
	}

	again, created, err := f.registry.ResolveOrCreate(context.Background(), "fp-cancelled", "agent")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if created || again.ID != visitor.ID {
		t.Errorf("Expected visitor %d to be resolved, got %d (created=%v)", visitor.ID, again.ID, created)
	}
}

func TestRegistry_MergeFingerprints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	products := f.category(t, "Products")
	pricing := f.category(t, "Pricing")

	source := f.visitor(t, "source")
	target := f.visitor(t, "target")

	if _, err := f.engine.Increment(ctx, source.ID, products.ID, 15); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := f.engine.Increment(ctx, source.ID, pricing.ID, 4); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := f.engine.Increment(ctx, target.ID, products.ID, 5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	merged, err := f.registry.MergeFingerprints(ctx, source.ID, target.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if merged.ID != target.ID {
		t.Errorf("Expected survivor %d, got %d", target.ID, merged.ID)
	}
	if merged.Scoring != 24 {
		t.Errorf("Expected merged scoring 24, got %d", merged.Scoring)
	}

	if _, err := f.store.Visitors.FindByID(ctx, source.ID); !errs.IsNotFound(err) {
		t.Errorf("Expected source visitor to be removed, got %v", err)
	}

	owner, err := f.store.Visitors.FindByFingerprint(ctx, "source")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if owner.ID != target.ID {
		t.Errorf("Expected fingerprint to move to %d, got %d", target.ID, owner.ID)
	}

	cs, err := f.store.Categoryscorings.FindByVisitorAndCategory(ctx, target.ID, products.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cs.Scoring != 20 {
		t.Errorf("Expected summed category score 20, got %d", cs.Scoring)
	}

	fingerprints, err := f.registry.FingerprintsSorted(ctx, target.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(fingerprints) != 2 {
		t.Errorf("Expected 2 fingerprints, got %d", len(fingerprints))
	}
}

func TestRegistry_MergeIntoItselfFails(t *testing.T) {
	f := newFixture(t)
	v := f.visitor(t, "self")

	if _, err := f.registry.MergeFingerprints(context.Background(), v.ID, v.ID); !errs.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
