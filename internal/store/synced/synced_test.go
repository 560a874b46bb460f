package synced

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sunnybiju2005/billing-application/internal/docstore/memdoc"
	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/store"
	"github.com/sunnybiju2005/billing-application/internal/store/local"
	"github.com/sunnybiju2005/billing-application/internal/store/remote"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *memdoc.Client, *local.Store) {
	t.Helper()
	ctx := context.Background()

	client := memdoc.New()
	remoteStore, err := remote.New(ctx, client, remote.Options{
		Admin: remote.Credential{Username: "DROP", Password: "072024", Name: "Administrator"},
		Staff: remote.Credential{Username: "staff", Password: "staff123", Name: "Staff Member"},
	})
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}

	localStore, err := local.New(local.Options{
		DataDir: t.TempDir(),
		Admin:   local.Credential{Username: "DROP", Password: "072024", Name: "Administrator"},
		Staff:   local.Credential{Username: "staff", Password: "staff123", Name: "Staff Member"},
	})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}

	c := New(remoteStore, localStore, Options{Backend: "memdoc", Interval: time.Hour})
	c.mirror(ctx)
	return c, client, localStore
}

func TestSuccessfulWriteMirrorsToLocal(t *testing.T) {
	c, _, localStore := newTestCoordinator(t)
	ctx := context.Background()

	item, err := c.AddInventoryItem(ctx, "Palazzo", "Bottoms", 899, 15)
	if err != nil {
		t.Fatalf("AddInventoryItem: %v", err)
	}

	mirrored, err := localStore.GetInventoryItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("item not mirrored to local store: %v", err)
	}
	if mirrored.Name != "Palazzo" {
		t.Fatalf("mirror holds %+v", mirrored)
	}

	status := c.Status()
	if status.Offline || status.PendingOps != 0 {
		t.Fatalf("unexpected degraded status: %+v", status)
	}
	if status.LastMirror == nil {
		t.Fatalf("mirror timestamp not recorded")
	}
}

func TestQuotaFailureFallsBackToLocalAndQueues(t *testing.T) {
	c, client, localStore := newTestCoordinator(t)
	ctx := context.Background()

	client.FailWith(errors.New("write denied: storage quota exceeded"))
	item, err := c.AddInventoryItem(ctx, "Anarkali", "Ethnic", 2199, 6)
	if err != nil {
		t.Fatalf("quota failure surfaced to caller: %v", err)
	}
	if item == nil || item.Name != "Anarkali" {
		t.Fatalf("expected well-formed local result, got %+v", item)
	}

	if _, err := localStore.GetInventoryItem(ctx, item.ID); err != nil {
		t.Fatalf("item not written to local store: %v", err)
	}

	status := c.Status()
	if status.Offline {
		t.Fatalf("quota must not mark the backend offline")
	}
	if status.PendingOps != 1 {
		t.Fatalf("expected the quota write queued for retry, got %d pending", status.PendingOps)
	}
}

func TestQuotaFallbackSurvivesReconcile(t *testing.T) {
	c, client, localStore := newTestCoordinator(t)
	ctx := context.Background()

	client.FailWith(errors.New("write denied: storage quota exceeded"))
	item, err := c.AddInventoryItem(ctx, "Sherwani", "Ethnic", 4999, 3)
	if err != nil {
		t.Fatalf("quota failure surfaced to caller: %v", err)
	}

	// While the backend stays full, reconcile must not rewrite the local
	// document from a remote snapshot that never received the write.
	c.reconcile(ctx)
	if _, err := localStore.GetInventoryItem(ctx, item.ID); err != nil {
		t.Fatalf("fallback write lost from local store after reconcile: %v", err)
	}
	status := c.Status()
	if status.Offline {
		t.Fatalf("quota reconcile must not mark offline")
	}
	if status.PendingOps != 1 {
		t.Fatalf("queued write dropped during quota reconcile: %d pending", status.PendingOps)
	}

	// Space frees up: the queued write replays and survives the mirror.
	client.FailWith(nil)
	c.reconcile(ctx)

	status = c.Status()
	if status.Offline || status.PendingOps != 0 {
		t.Fatalf("reconcile did not recover: %+v", status)
	}
	assertInventoryHas(t, func() ([]domain.InventoryItem, error) { return c.ListInventory(ctx) }, "Sherwani")
	assertInventoryHas(t, func() ([]domain.InventoryItem, error) { return localStore.ListInventory(ctx) }, "Sherwani")
}

func TestMirrorDeferredWhileWritesArePending(t *testing.T) {
	c, client, localStore := newTestCoordinator(t)
	ctx := context.Background()

	client.FailWith(errors.New("write denied: storage quota exceeded"))
	item, err := c.AddInventoryItem(ctx, "Waistcoat", "Formal", 1299, 5)
	if err != nil {
		t.Fatal(err)
	}

	// A later successful write triggers a mirror; it must not erase the
	// still-queued fallback item from the local store.
	client.FailWith(nil)
	if _, err := c.AddInventoryItem(ctx, "Pocket Square", "Accessories", 149, 40); err != nil {
		t.Fatal(err)
	}
	if _, err := localStore.GetInventoryItem(ctx, item.ID); err != nil {
		t.Fatalf("fallback write erased by mirror while still queued: %v", err)
	}

	c.reconcile(ctx)
	assertInventoryHas(t, func() ([]domain.InventoryItem, error) { return localStore.ListInventory(ctx) }, "Waistcoat")
	assertInventoryHas(t, func() ([]domain.InventoryItem, error) { return localStore.ListInventory(ctx) }, "Pocket Square")
}

func assertInventoryHas(t *testing.T, list func() ([]domain.InventoryItem, error), name string) {
	t.Helper()
	items, err := list()
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	for _, item := range items {
		if item.Name == name {
			return
		}
	}
	t.Fatalf("inventory missing %q: %+v", name, items)
}

func TestUnavailableFailureQueuesAndReplays(t *testing.T) {
	c, client, localStore := newTestCoordinator(t)
	ctx := context.Background()

	client.FailWith(errors.New("dial tcp: connection refused"))
	item, err := c.AddInventoryItem(ctx, "Saree", "Ethnic", 1599, 9)
	if err != nil {
		t.Fatalf("outage surfaced to caller: %v", err)
	}
	if _, err := localStore.GetInventoryItem(ctx, item.ID); err != nil {
		t.Fatalf("item not written to local store during outage: %v", err)
	}

	status := c.Status()
	if !status.Offline {
		t.Fatalf("outage not marked offline")
	}
	if status.PendingOps != 1 {
		t.Fatalf("expected 1 queued op, got %d", status.PendingOps)
	}

	client.FailWith(nil)
	c.reconcile(ctx)

	status = c.Status()
	if status.Offline || status.PendingOps != 0 {
		t.Fatalf("reconcile did not recover: %+v", status)
	}

	items, err := c.ListInventory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, it := range items {
		if it.Name == "Saree" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("replayed item missing from remote inventory: %+v", items)
	}
}

func TestReadsDegradeToLocalMirror(t *testing.T) {
	c, client, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.AddInventoryItem(ctx, "Hoodie", "Winter", 999, 20); err != nil {
		t.Fatal(err)
	}

	client.FailWith(errors.New("dial tcp: i/o timeout"))
	items, err := c.ListInventory(ctx)
	if err != nil {
		t.Fatalf("degraded read failed: %v", err)
	}
	found := false
	for _, it := range items {
		if it.Name == "Hoodie" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("local mirror missing the item: %+v", items)
	}
	if !c.Status().Offline {
		t.Fatalf("degraded read did not mark offline")
	}
}

func TestDomainErrorsPropagateUnchanged(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.GetBill(ctx, "DR9999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.DeleteBill(ctx, "DR9999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	status := c.Status()
	if status.Offline || status.PendingOps != 0 {
		t.Fatalf("domain error degraded the coordinator: %+v", status)
	}
}

func TestCreateBillDuringOutageUsesLocalAllocation(t *testing.T) {
	c, client, _ := newTestCoordinator(t)
	ctx := context.Background()

	client.FailWith(errors.New("dial tcp: connection refused"))
	bill, err := c.CreateBill(ctx, 1, []domain.BillItem{{Name: "Gown", Price: 2999, Quantity: 1, Total: 2999}}, 2999, "Card")
	if err != nil {
		t.Fatalf("CreateBill during outage: %v", err)
	}
	if bill.ID != "DR0001" {
		t.Fatalf("local allocation gave %s", bill.ID)
	}

	got, err := c.GetBill(ctx, "DR0001")
	if err != nil {
		t.Fatalf("degraded lookup failed: %v", err)
	}
	if got.Total != 2999 {
		t.Fatalf("lookup returned %+v", got)
	}
}
