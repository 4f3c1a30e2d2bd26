package repositories_test

import (
	"context"
	"testing"

	"leadlynx/internal/database/dbtest"
	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
)

func TestCatalogRepository_SaveIPCompanyUpsertsByRange(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewCatalogRepository(dbtest.Open(t))

	if err := repo.SaveIPCompany(ctx, &models.IPCompany{CIDR: "192.0.2.0/24", Company: "Example Corp"}); err != nil {
		t.Fatalf("Failed to save company: %v", err)
	}
	if err := repo.SaveIPCompany(ctx, &models.IPCompany{CIDR: "192.0.2.0/24", Company: "Example Holding"}); err != nil {
		t.Fatalf("Failed to update company: %v", err)
	}
	if err := repo.SaveIPCompany(ctx, &models.IPCompany{CIDR: "198.51.100.7", Company: "Other Ltd"}); err != nil {
		t.Fatalf("Failed to save single address: %v", err)
	}

	companies, err := repo.ListIPCompanies(ctx)
	if err != nil {
		t.Fatalf("Failed to list companies: %v", err)
	}
	if len(companies) != 2 {
		t.Fatalf("Expected 2 ranges, got %d", len(companies))
	}
	if companies[0].CIDR != "192.0.2.0/24" || companies[0].Company != "Example Holding" {
		t.Errorf("Expected updated range Example Holding, got %q %q", companies[0].CIDR, companies[0].Company)
	}
	if companies[1].CIDR != "198.51.100.7" {
		t.Errorf("Expected single address range, got %q", companies[1].CIDR)
	}
}
