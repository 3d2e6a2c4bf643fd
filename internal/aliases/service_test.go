package aliases

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "aliases.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Alias{}); err != nil {
		t.Fatalf("failed to migrate alias schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	tick := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func adminContext() context.Context {
	return auth.ContextWithPrincipal(context.Background(), auth.Principal{Username: "root", Admin: true})
}

func userContext() context.Context {
	return auth.ContextWithPrincipal(context.Background(), auth.Principal{Username: "bob"})
}

func expectCode(t *testing.T, err error, expected string) {
	t.Helper()
	code, ok := resource.ErrorCode(err)
	if !ok || code != expected {
		t.Fatalf("expected code %q, got %v", expected, err)
	}
}

func TestReadsNeedPrincipalWritesNeedAdmin(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))
	query := resource.Query{Range: resource.Range{Start: 0, End: 20}}

	if _, err := service.List(context.Background(), query); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated list, got %v", err)
	}
	if _, err := service.List(userContext(), query); err != nil {
		t.Fatalf("non-admin should list aliases: %v", err)
	}
	if _, err := service.Count(userContext(), ""); err != nil {
		t.Fatalf("non-admin should count aliases: %v", err)
	}
	_, err := service.CreateOrUpdate(userContext(), Mutation{Address: "a@example.org", Target: "b@example.org"})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected forbidden create, got %v", err)
	}
	if err := service.Delete(userContext(), "a@example.org"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
}

func TestSearchCoversAddressAndComment(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	ctx := adminContext()
	for _, mutation := range []Mutation{
		{Address: "sales@example.org", Target: "alice@example.org", Comment: "inbound leads", Active: true},
		{Address: "billing@example.org", Target: "bob@example.org", Comment: "Sales invoices", Active: true},
		{Address: "noc@example.org", Target: "ops@example.org", Comment: "paging", Active: false},
	} {
		if _, err := service.CreateOrUpdate(ctx, mutation); err != nil {
			t.Fatalf("create %s failed: %v", mutation.Address, err)
		}
	}
	if err := db.Model(&Alias{}).Where("address = ?", "noc@example.org").Update("n_recv", 42).Error; err != nil {
		t.Fatalf("failed to seed counter: %v", err)
	}

	rows, err := service.List(userContext(), resource.Query{
		Sort:   resource.Sorting{{Field: FieldAddress, Direction: resource.Ascending}},
		Range:  resource.Range{Start: 0, End: 20},
		Search: "sales",
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Address != "billing@example.org" || rows[1].Address != "sales@example.org" {
		t.Fatalf("unexpected search result %+v", rows)
	}
	count, err := service.Count(userContext(), "sales")
	if err != nil || count != 2 {
		t.Fatalf("expected count 2, got %d (%v)", count, err)
	}

	byReceived, err := service.List(userContext(), resource.Query{
		Sort:  resource.Sorting{{Field: FieldReceived, Direction: resource.Descending}},
		Range: resource.Range{Start: 0, End: 1},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byReceived) != 1 || byReceived[0].Received != 42 {
		t.Fatalf("unexpected counter ordering %+v", byReceived)
	}
}

func TestUpdatePreservesCountersAndRenames(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	ctx := adminContext()

	created, err := service.CreateOrUpdate(ctx, Mutation{Address: "Info@Example.org", Target: "desk@example.org", Active: true})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Address != "info@example.org" {
		t.Fatalf("expected normalized address, got %q", created.Address)
	}
	if err := db.Model(&Alias{}).Where("address = ?", created.Address).Update("n_sent", 7).Error; err != nil {
		t.Fatalf("failed to seed counter: %v", err)
	}

	prior := created.Address
	updated, err := service.CreateOrUpdate(ctx, Mutation{
		PriorAddress: &prior,
		Address:      "hello@example.org",
		Target:       "desk@example.org",
		Comment:      "renamed",
		Active:       false,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Address != "hello@example.org" || updated.Sent != 7 || updated.Active {
		t.Fatalf("unexpected updated alias %+v", updated)
	}

	if _, err := service.CreateOrUpdate(ctx, Mutation{Address: "hello@example.org", Target: "x@example.org"}); err == nil {
		t.Fatalf("expected duplicate create to fail")
	} else {
		expectCode(t, err, "aliases.create_or_update.duplicate_address")
	}

	missing := "gone@example.org"
	_, err = service.CreateOrUpdate(ctx, Mutation{PriorAddress: &missing, Address: "gone@example.org", Target: "x@example.org"})
	expectCode(t, err, "aliases.create_or_update.not_found")
}

func TestValidationAndSingleFieldMutations(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))
	ctx := adminContext()

	_, err := service.CreateOrUpdate(ctx, Mutation{Address: "not-an-address", Target: "x@example.org"})
	expectCode(t, err, "aliases.create_or_update.invalid_address")
	_, err = service.CreateOrUpdate(ctx, Mutation{Address: "a@example.org", Target: "two@@example.org"})
	expectCode(t, err, "aliases.create_or_update.invalid_target")

	if _, err := service.CreateOrUpdate(ctx, Mutation{Address: "a@example.org", Target: "x@example.org", Active: true}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.SetActive(ctx, "a@example.org", ActiveFlag{Active: false}); err != nil {
		t.Fatalf("set active failed: %v", err)
	}
	expectCode(t, service.SetActive(ctx, "b@example.org", ActiveFlag{Active: true}), "aliases.set_active.not_found")

	if err := service.Delete(ctx, "A@example.org"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	expectCode(t, service.Delete(ctx, "a@example.org"), "aliases.delete.not_found")
}
