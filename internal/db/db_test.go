package db

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestEnsureSigningKey_GeneratesOnceAndReuses(t *testing.T) {
	db := newTestDB(t)

	first, err := EnsureSigningKey(db)
	if err != nil {
		t.Fatalf("EnsureSigningKey: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("secret length = %d, want 64 hex chars", len(first))
	}
	second, err := EnsureSigningKey(db)
	if err != nil {
		t.Fatalf("EnsureSigningKey (second): %v", err)
	}
	if first != second {
		t.Fatalf("expected stored secret to be reused")
	}
}

func TestUsers_EmailIsNormalized(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &models.User{Email: "  Alice@Example.COM "}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	got, err := FindUserByEmail(ctx, db, "alice@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("found user %d, want %d", got.ID, u.ID)
	}
	if _, err := FindUserByID(ctx, db, 999); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpsertAccount_UpdatesExistingProviderAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	acc := &models.Account{
		UserID:            1,
		Provider:          "xero",
		ProviderAccountID: "xero-user-1",
		AccessToken:       "at-1",
		RefreshToken:      "rt-1",
		ExpiresAt:         100,
		TenantID:          "tenant-1",
	}
	if err := UpsertAccount(ctx, db, acc); err != nil {
		t.Fatalf("UpsertAccount (insert): %v", err)
	}
	if acc.Type != "oauth" {
		t.Fatalf("type = %q, want oauth", acc.Type)
	}

	again := &models.Account{
		UserID:            1,
		Provider:          "xero",
		ProviderAccountID: "xero-user-1",
		AccessToken:       "at-2",
		ExpiresAt:         200,
	}
	if err := UpsertAccount(ctx, db, again); err != nil {
		t.Fatalf("UpsertAccount (update): %v", err)
	}
	if again.ID != acc.ID {
		t.Fatalf("upsert created a second row: %d vs %d", again.ID, acc.ID)
	}

	var count int64
	db.Model(&models.Account{}).Count(&count)
	if count != 1 {
		t.Fatalf("account rows = %d, want 1", count)
	}

	stored, err := FindAccount(ctx, db, 1, "xero")
	if err != nil || stored == nil {
		t.Fatalf("FindAccount: %v %v", stored, err)
	}
	if stored.AccessToken != "at-2" || stored.RefreshToken != "rt-1" || stored.ExpiresAt != 200 || stored.TenantID != "tenant-1" {
		t.Fatalf("unexpected stored account: %+v", stored)
	}
}

func TestFindAccount_MissingReturnsNil(t *testing.T) {
	db := newTestDB(t)
	acc, err := FindAccount(context.Background(), db, 1, "xero")
	if err != nil || acc != nil {
		t.Fatalf("FindAccount = %v, %v; want nil, nil", acc, err)
	}
}

func TestAccountTokensEncryptedAtRest(t *testing.T) {
	key := "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes
	if err := models.InitEncryption(key); err != nil {
		t.Fatalf("InitEncryption: %v", err)
	}
	t.Cleanup(func() { _ = models.InitEncryption("") })

	db := newTestDB(t)
	ctx := context.Background()
	acc := &models.Account{UserID: 7, Provider: "xero", ProviderAccountID: "p-7", AccessToken: "plain-access", RefreshToken: "plain-refresh"}
	if err := UpsertAccount(ctx, db, acc); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	if acc.AccessToken != "plain-access" {
		t.Fatalf("in-memory token not restored after save: %q", acc.AccessToken)
	}

	var raw struct{ AccessToken, RefreshToken string }
	db.Raw("SELECT access_token, refresh_token FROM accounts WHERE id = ?", acc.ID).Scan(&raw)
	if raw.AccessToken == "plain-access" || raw.RefreshToken == "plain-refresh" || raw.AccessToken == "" {
		t.Fatalf("tokens stored in plaintext: %+v", raw)
	}

	stored, err := FindAccount(ctx, db, 7, "xero")
	if err != nil {
		t.Fatalf("FindAccount: %v", err)
	}
	if stored.AccessToken != "plain-access" || stored.RefreshToken != "plain-refresh" {
		t.Fatalf("decrypted tokens = %q / %q", stored.AccessToken, stored.RefreshToken)
	}
}

func TestDeleteAccounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = UpsertAccount(ctx, db, &models.Account{UserID: 1, Provider: "xero", ProviderAccountID: "a"})
	_ = UpsertAccount(ctx, db, &models.Account{UserID: 1, Provider: "google", ProviderAccountID: "b"})

	n, err := DeleteAccounts(ctx, db, 1, "xero")
	if err != nil || n != 1 {
		t.Fatalf("DeleteAccounts = %d, %v", n, err)
	}
	if acc, _ := FindAccount(ctx, db, 1, "google"); acc == nil {
		t.Fatalf("google account should survive")
	}
}

func TestReports_ListNewestFirstAndOwnedDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	older := &models.Report{Name: "old", Description: "d", Query: "q", APICode: "a", RenderCode: "r", UserID: 1, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.Report{Name: "new", Description: "d", Query: "q", APICode: "a", RenderCode: "r", UserID: 1}
	other := &models.Report{Name: "theirs", Description: "d", Query: "q", APICode: "a", RenderCode: "r", UserID: 2}
	for _, r := range []*models.Report{older, newer, other} {
		if err := CreateReport(ctx, db, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}
	if newer.Data != "{}" {
		t.Fatalf("data default = %q", newer.Data)
	}

	list, err := ListReports(ctx, db, 1)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(list) != 2 || list[0].Name != "new" || list[1].Name != "old" {
		t.Fatalf("unexpected order: %+v", list)
	}

	deleted, err := DeleteReport(ctx, db, 1, other.ID)
	if err != nil || deleted {
		t.Fatalf("deleting another user's report = %v, %v", deleted, err)
	}
	deleted, err = DeleteReport(ctx, db, 2, other.ID)
	if err != nil || !deleted {
		t.Fatalf("owner delete = %v, %v", deleted, err)
	}
	if _, err := FindReport(ctx, db, other.ID); !IsNotFound(err) {
		t.Fatalf("expected report to be gone, got %v", err)
	}
}

func TestUpdateReportCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := &models.Report{Name: "n", Description: "d", Query: "q", APICode: "a", RenderCode: "r", UserID: 1}
	if err := CreateReport(ctx, db, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	created := r.UpdatedAt

	r.Name, r.APICode = "n2", "a2"
	time.Sleep(5 * time.Millisecond)
	if err := UpdateReportCode(ctx, db, r); err != nil {
		t.Fatalf("UpdateReportCode: %v", err)
	}
	got, _ := FindReport(ctx, db, r.ID)
	if got.Name != "n2" || got.APICode != "a2" || got.Query != "q" {
		t.Fatalf("unexpected report after update: %+v", got)
	}
	if !got.UpdatedAt.After(created) {
		t.Fatalf("updatedAt not bumped")
	}
}
