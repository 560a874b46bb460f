package local

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/store"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		DataDir: t.TempDir(),
		Admin:   Credential{Username: "DROP", Password: "072024", Name: "Administrator"},
		Staff:   Credential{Username: "staff", Password: "staff123", Name: "Staff Member"},
	}
}

func newTestStore(t *testing.T) (*Store, Options) {
	t.Helper()
	opts := testOptions(t)
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, opts
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestFreshDirectorySeedsDefaults(t *testing.T) {
	s, opts := newTestStore(t)
	ctx := context.Background()

	admin, err := s.AuthenticateUser(ctx, "DROP", "072024", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	if admin.ID != 1 {
		t.Fatalf("expected admin id 1, got %d", admin.ID)
	}
	if _, err := s.AuthenticateUser(ctx, "staff", "staff123", domain.RoleStaff); err != nil {
		t.Fatalf("staff login failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(opts.DataDir, databaseFileName)); err != nil {
		t.Fatalf("database file not written: %v", err)
	}
}

func TestLoadRepairsUsersAndPurgesSampleInventory(t *testing.T) {
	opts := testOptions(t)
	doc := domain.EmptyDocument()
	doc.Users = []domain.User{
		{ID: 1, Username: "old-admin", Password: "old-pass", Role: domain.RoleAdmin, Name: "Old"},
	}
	doc.Inventory = []domain.InventoryItem{
		{ID: 1, Name: "T-Shirt", Price: 29.99, Stock: 50},
		{ID: 2, Name: "Silk Saree", Category: "Sarees", Price: 1499, Stock: 5},
		{ID: 3, Name: "Cap", Price: 19.99, Stock: 60},
	}
	writeDocument(t, opts.DataDir, doc)

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// The admin row keeps its id but takes the configured credentials.
	admin, err := s.AuthenticateUser(ctx, "DROP", "072024", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("admin not repaired: %v", err)
	}
	if admin.ID != 1 {
		t.Fatalf("admin id changed to %d", admin.ID)
	}

	items, err := s.ListInventory(ctx)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Silk Saree" {
		t.Fatalf("expected only Silk Saree to survive, got %+v", items)
	}
}

func TestCorruptDatabaseFileRecovers(t *testing.T) {
	opts := testOptions(t)
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(opts.DataDir, databaseFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New should recover from corrupt file: %v", err)
	}
	if _, err := s.AuthenticateUser(context.Background(), "DROP", "072024", domain.RoleAdmin); err != nil {
		t.Fatalf("defaults not seeded after recovery: %v", err)
	}
}

func TestCreateBillAllocatesIdAndRecordsSales(t *testing.T) {
	s, opts := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddInventoryItem(ctx, "Shirt", "Tops", 299.00, 10)
	if err != nil {
		t.Fatalf("AddInventoryItem: %v", err)
	}

	bill, err := s.CreateBill(ctx, 1, []domain.BillItem{
		{Name: "Shirt", Price: 299.00, Quantity: 2, Total: 598.00, InventoryID: intPtr(item.ID)},
	}, 598.00, "")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	if bill.ID != "DR0001" || bill.NumericID != 1 {
		t.Fatalf("expected DR0001/1, got %s/%d", bill.ID, bill.NumericID)
	}
	if bill.PaymentMethod != "Cash" {
		t.Fatalf("expected default payment method Cash, got %s", bill.PaymentMethod)
	}
	if bill.Total != 598.00 {
		t.Fatalf("expected total 598, got %v", bill.Total)
	}

	sold, err := s.ItemMonthlySales(ctx, item.ID, "")
	if err != nil {
		t.Fatalf("ItemMonthlySales: %v", err)
	}
	if sold != 2 {
		t.Fatalf("expected 2 sold this month, got %d", sold)
	}

	if _, err := os.Stat(filepath.Join(opts.DataDir, billFilesDirName, "DR0001.json")); err != nil {
		t.Fatalf("per-bill file not written: %v", err)
	}
}

func TestBillLookupAcceptsBothRefForms(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateBill(ctx, 1, []domain.BillItem{{Name: "Belt", Price: 199, Quantity: 1, Total: 199}}, 199, "UPI")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	byDisplay, err := s.GetBill(ctx, string(created.ID))
	if err != nil {
		t.Fatalf("lookup by display id: %v", err)
	}
	byNumeric, err := s.GetBill(ctx, "1")
	if err != nil {
		t.Fatalf("lookup by numeric ref: %v", err)
	}
	if byDisplay.ID != byNumeric.ID {
		t.Fatalf("refs resolved different bills: %s vs %s", byDisplay.ID, byNumeric.ID)
	}
}

func TestDeleteBillKeepsMonthlySales(t *testing.T) {
	s, opts := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddInventoryItem(ctx, "Kurta", "Ethnic", 799, 20)
	if err != nil {
		t.Fatal(err)
	}
	bill, err := s.CreateBill(ctx, 1, []domain.BillItem{
		{Name: "Kurta", Price: 799, Quantity: 3, Total: 2397, InventoryID: intPtr(item.ID)},
	}, 2397, "Card")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteBill(ctx, string(bill.ID)); err != nil {
		t.Fatalf("DeleteBill: %v", err)
	}
	if _, err := s.GetBill(ctx, string(bill.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.DataDir, billFilesDirName, string(bill.ID)+".json")); !os.IsNotExist(err) {
		t.Fatalf("per-bill file should be removed, stat err = %v", err)
	}

	// Historical sales are never decremented.
	sold, err := s.ItemMonthlySales(ctx, item.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if sold != 3 {
		t.Fatalf("monthly sales changed after delete: got %d", sold)
	}

	if err := s.DeleteBill(ctx, "does-not-exist"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ref, got %v", err)
	}
}

func TestLegacyNumericBillIdsLoadAndAllocate(t *testing.T) {
	opts := testOptions(t)
	raw := `{
		"users": [],
		"inventory": [],
		"staff": [],
		"bills": [
			{"id": 7, "user_id": 1, "date": "2024-07-01T10:00:00Z", "items": [], "total": 100, "payment_method": "Cash"}
		]
	}`
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(opts.DataDir, databaseFileName), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	legacy, err := s.GetBill(ctx, "7")
	if err != nil {
		t.Fatalf("legacy bill not found by numeric ref: %v", err)
	}
	if legacy.ID != "7" {
		t.Fatalf("legacy id decoded as %q", legacy.ID)
	}

	bill, err := s.CreateBill(ctx, 1, []domain.BillItem{{Name: "Scarf", Price: 149, Quantity: 1, Total: 149}}, 149, "Cash")
	if err != nil {
		t.Fatal(err)
	}
	if bill.ID != "DR0008" {
		t.Fatalf("allocation ignored legacy id: got %s", bill.ID)
	}
}

func TestMigrationBackfillsWithoutOverwriting(t *testing.T) {
	opts := testOptions(t)
	doc := domain.EmptyDocument()
	doc.Bills = []domain.Bill{
		{ID: "DR0001", NumericID: 1, UserID: 1, Date: time.Now(), Items: []domain.BillItem{}, Total: 50, PaymentMethod: "Cash"},
		{ID: "DR0002", NumericID: 2, UserID: 1, Date: time.Now(), Items: []domain.BillItem{}, Total: 75, PaymentMethod: "Cash"},
	}
	writeDocument(t, opts.DataDir, doc)

	billDir := filepath.Join(opts.DataDir, billFilesDirName)
	if err := os.MkdirAll(billDir, 0o755); err != nil {
		t.Fatal(err)
	}
	sentinel := []byte(`{"hand": "edited"}`)
	if err := os.WriteFile(filepath.Join(billDir, "DR0001.json"), sentinel, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(opts); err != nil {
		t.Fatalf("New: %v", err)
	}

	kept, err := os.ReadFile(filepath.Join(billDir, "DR0001.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(kept) != string(sentinel) {
		t.Fatalf("existing bill file was overwritten")
	}
	if _, err := os.Stat(filepath.Join(billDir, "DR0002.json")); err != nil {
		t.Fatalf("missing bill file not backfilled: %v", err)
	}
}

func TestAdjustStockFloorsAtZero(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddInventoryItem(ctx, "Tie", "Accessories", 99, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AdjustStock(ctx, item.ID, -10); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	after, err := s.GetInventoryItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Stock != 0 {
		t.Fatalf("expected stock floored at 0, got %d", after.Stock)
	}

	if err := s.AdjustStock(ctx, 9999, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateInventoryItemAppliesPartialPatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddInventoryItem(ctx, "Blazer", "Formal", 2500, 8)
	if err != nil {
		t.Fatal(err)
	}
	updated, err := s.UpdateInventoryItem(ctx, item.ID, domain.InventoryPatch{
		Price: floatPtr(1999),
		Name:  strPtr("Slim Blazer"),
	})
	if err != nil {
		t.Fatalf("UpdateInventoryItem: %v", err)
	}
	if updated.Name != "Slim Blazer" || updated.Price != 1999 {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Category != "Formal" || updated.Stock != 8 {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
}

func TestResetMonthlySalesKeepsCurrentAndPreviousMonth(t *testing.T) {
	opts := testOptions(t)
	now := time.Now()
	doc := domain.EmptyDocument()
	doc.MonthlySales = domain.MonthlySales{
		"2019-03":                      {"1": 10},
		domain.PreviousMonthKey(now):   {"1": 4},
		domain.MonthKey(now):           {"1": 2},
	}
	writeDocument(t, opts.DataDir, doc)

	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.ResetMonthlySales(ctx); err != nil {
		t.Fatalf("ResetMonthlySales: %v", err)
	}

	if sold, _ := s.ItemMonthlySales(ctx, 1, "2019-03"); sold != 0 {
		t.Fatalf("old month survived reset: %d", sold)
	}
	if sold, _ := s.ItemMonthlySales(ctx, 1, domain.PreviousMonthKey(now)); sold != 4 {
		t.Fatalf("previous month lost: %d", sold)
	}
	if sold, _ := s.ItemMonthlySales(ctx, 1, domain.MonthKey(now)); sold != 2 {
		t.Fatalf("current month lost: %d", sold)
	}
}

func TestItemSalesInRange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddInventoryItem(ctx, "Socks", "Accessories", 49, 100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBill(ctx, 1, []domain.BillItem{
		{Name: "Socks", Price: 49, Quantity: 5, Total: 245, InventoryID: intPtr(item.ID)},
	}, 245, "Cash"); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	sold, err := s.ItemSalesInRange(ctx, item.ID, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sold != 5 {
		t.Fatalf("expected 5 in range, got %d", sold)
	}

	sold, err = s.ItemSalesInRange(ctx, item.ID, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sold != 0 {
		t.Fatalf("expected 0 outside range, got %d", sold)
	}
}

func TestReplaceAllPersistsMirror(t *testing.T) {
	s, opts := newTestStore(t)
	ctx := context.Background()

	doc := domain.EmptyDocument()
	doc.Inventory = []domain.InventoryItem{{ID: 11, Name: "Mirror Item", Price: 10, Stock: 1}}
	doc.Bills = []domain.Bill{{ID: "DR0004", NumericID: 4, UserID: 1, Date: time.Now(), Items: []domain.BillItem{}, Total: 10, PaymentMethod: "Cash"}}
	if err := s.ReplaceAll(ctx, doc); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	items, err := s.ListInventory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "Mirror Item" {
		t.Fatalf("mirror not applied: %+v", items)
	}

	raw, err := os.ReadFile(filepath.Join(opts.DataDir, databaseFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "Mirror Item") {
		t.Fatalf("mirror not persisted to disk")
	}
	if _, err := os.Stat(filepath.Join(opts.DataDir, billFilesDirName, "DR0004.json")); err != nil {
		t.Fatalf("mirrored bill file missing: %v", err)
	}
}

func writeDocument(t *testing.T, dataDir string, doc domain.Document) {
	t.Helper()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, databaseFileName), payload, 0o644); err != nil {
		t.Fatal(err)
	}
}
