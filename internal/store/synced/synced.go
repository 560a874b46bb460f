// Package synced composes the remote adapter with the local JSON store.
// The remote backend is authoritative while reachable; every mutation is
// mirrored to the local store afterwards, and every failure degrades to the
// local store instead of surfacing to the caller.
package synced

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sunnybiju2005/billing-application/internal/docstore"
	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/store"
	"github.com/sunnybiju2005/billing-application/internal/store/local"
	"github.com/sunnybiju2005/billing-application/internal/store/remote"
)

// pendingOp is a queued remote mutation awaiting replay. The queue is
// in-memory only; the local store keeps the only durable copy of a queued
// write until replay succeeds.
type pendingOp struct {
	ID    string
	Op    string
	apply func(ctx context.Context) error
}

type Options struct {
	Backend  string
	Interval time.Duration
}

type Coordinator struct {
	remote *remote.Store
	local  *local.Store
	opts   Options

	mu          sync.Mutex
	offline     bool
	pending     []pendingOp
	lastMirror  *time.Time
	lastAttempt *time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(remoteStore *remote.Store, localStore *local.Store, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Coordinator{
		remote: remoteStore,
		local:  localStore,
		opts:   opts,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the background reconciler. It mirrors the remote state once
// up front so a fresh local directory is usable immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.mirror(ctx)
	go c.run()
}

func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *Coordinator) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.reconcile(context.Background())
		}
	}
}

// reconcile is one pass of the background loop: probe the backend, replay the
// pending queue oldest-first, then refresh the mirror.
func (c *Coordinator) reconcile(ctx context.Context) {
	now := time.Now()
	c.mu.Lock()
	c.lastAttempt = &now
	c.mu.Unlock()

	// A quota-classified ping failure still means the backend is reachable;
	// replay proceeds so queued writes land the moment space frees up.
	if err := c.remote.Client().Ping(ctx); err != nil && !docstore.IsQuotaExceeded(err) {
		c.setOffline(true)
		return
	}

	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			break
		}
		next := c.pending[0]
		c.mu.Unlock()

		if err := next.apply(ctx); err != nil {
			log.Printf("sync: replay %s %s failed: %v", next.Op, next.ID, err)
			if !docstore.IsQuotaExceeded(err) {
				c.setOffline(true)
			}
			return
		}
		log.Printf("sync: replayed %s %s", next.Op, next.ID)

		c.mu.Lock()
		c.pending = c.pending[1:]
		c.mu.Unlock()
	}

	c.setOffline(false)
	c.mirror(ctx)
}

// mirror rewrites the local document from a full remote snapshot. Failures
// are logged and otherwise ignored; the previous mirror stays in place.
// While writes are queued the remote is missing data the local store holds,
// so a full rewrite would erase it; mirroring resumes once the queue drains.
func (c *Coordinator) mirror(ctx context.Context) {
	c.mu.Lock()
	queued := len(c.pending)
	c.mu.Unlock()
	if queued > 0 {
		return
	}

	snapshot, err := c.remote.Snapshot(ctx)
	if err != nil {
		log.Printf("sync: snapshot failed: %v", err)
		if !docstore.IsQuotaExceeded(err) {
			c.setOffline(true)
		}
		return
	}
	if err := c.local.ReplaceAll(ctx, snapshot); err != nil {
		log.Printf("sync: local mirror write failed: %v", err)
		return
	}
	now := time.Now()
	c.mu.Lock()
	c.lastMirror = &now
	c.mu.Unlock()
}

func (c *Coordinator) setOffline(offline bool) {
	c.mu.Lock()
	changed := c.offline != offline
	c.offline = offline
	c.mu.Unlock()
	if changed {
		if offline {
			log.Printf("sync: %s backend unreachable, serving from local store", c.opts.Backend)
		} else {
			log.Printf("sync: %s backend reachable again", c.opts.Backend)
		}
	}
}

func (c *Coordinator) enqueue(op string, apply func(ctx context.Context) error) {
	entry := pendingOp{ID: uuid.NewString(), Op: op, apply: apply}
	c.mu.Lock()
	c.pending = append(c.pending, entry)
	queued := len(c.pending)
	c.mu.Unlock()
	log.Printf("sync: queued %s %s (%d pending)", op, entry.ID, queued)
}

// Status reports the coordinator's current view of the remote backend.
func (c *Coordinator) Status() domain.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.SyncStatus{
		Backend:     c.opts.Backend,
		Offline:     c.offline,
		PendingOps:  len(c.pending),
		LastMirror:  c.lastMirror,
		LastAttempt: c.lastAttempt,
	}
}

// mutate runs a write against the remote backend. Any remote failure answers
// from the local store, which becomes authoritative for the result, and
// queues the op so it reaches the remote once the failure clears. A quota
// failure does not mark the backend offline: it is reachable, just full, and
// the queued op is retried each reconcile tick until space frees up. Callers
// never see a remote error.
func mutate[T any](c *Coordinator, ctx context.Context, op string, remoteFn, localFn func(ctx context.Context) (T, error)) (T, error) {
	result, err := remoteFn(ctx)
	if err == nil {
		c.setOffline(false)
		c.mirror(ctx)
		return result, nil
	}
	if isDomainError(err) {
		return result, err
	}
	if docstore.IsQuotaExceeded(err) {
		log.Printf("sync: %s hit remote quota, writing locally: %v", op, err)
	} else {
		c.setOffline(true)
	}
	c.enqueue(op, func(ctx context.Context) error {
		_, err := remoteFn(ctx)
		return err
	})
	return localFn(ctx)
}

// read runs a query against the remote backend and degrades to the local
// mirror on any failure.
func read[T any](c *Coordinator, ctx context.Context, op string, remoteFn, localFn func(ctx context.Context) (T, error)) (T, error) {
	result, err := remoteFn(ctx)
	if err == nil || isDomainError(err) {
		return result, err
	}
	log.Printf("sync: %s falling back to local store: %v", op, err)
	if !docstore.IsQuotaExceeded(err) {
		c.setOffline(true)
	}
	return localFn(ctx)
}

// isDomainError filters errors the caller caused. They propagate unchanged
// instead of triggering offline handling.
func isDomainError(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidInput)
}

func (c *Coordinator) AuthenticateUser(ctx context.Context, username, password, role string) (*domain.User, error) {
	return read(c, ctx, "authenticate_user",
		func(ctx context.Context) (*domain.User, error) {
			return c.remote.AuthenticateUser(ctx, username, password, role)
		},
		func(ctx context.Context) (*domain.User, error) {
			return c.local.AuthenticateUser(ctx, username, password, role)
		})
}

func (c *Coordinator) GetUser(ctx context.Context, id int) (*domain.User, error) {
	return read(c, ctx, "get_user",
		func(ctx context.Context) (*domain.User, error) { return c.remote.GetUser(ctx, id) },
		func(ctx context.Context) (*domain.User, error) { return c.local.GetUser(ctx, id) })
}

func (c *Coordinator) AddUser(ctx context.Context, username, password, role, name string) (*domain.User, error) {
	return mutate(c, ctx, "add_user",
		func(ctx context.Context) (*domain.User, error) {
			return c.remote.AddUser(ctx, username, password, role, name)
		},
		func(ctx context.Context) (*domain.User, error) {
			return c.local.AddUser(ctx, username, password, role, name)
		})
}

func (c *Coordinator) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	return read(c, ctx, "list_users",
		func(ctx context.Context) ([]domain.User, error) { return c.remote.ListUsers(ctx, role) },
		func(ctx context.Context) ([]domain.User, error) { return c.local.ListUsers(ctx, role) })
}

func (c *Coordinator) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	return read(c, ctx, "list_inventory",
		func(ctx context.Context) ([]domain.InventoryItem, error) { return c.remote.ListInventory(ctx) },
		func(ctx context.Context) ([]domain.InventoryItem, error) { return c.local.ListInventory(ctx) })
}

func (c *Coordinator) GetInventoryItem(ctx context.Context, id int) (*domain.InventoryItem, error) {
	return read(c, ctx, "get_inventory_item",
		func(ctx context.Context) (*domain.InventoryItem, error) { return c.remote.GetInventoryItem(ctx, id) },
		func(ctx context.Context) (*domain.InventoryItem, error) { return c.local.GetInventoryItem(ctx, id) })
}

func (c *Coordinator) AddInventoryItem(ctx context.Context, name, category string, price float64, stock int) (*domain.InventoryItem, error) {
	return mutate(c, ctx, "add_inventory_item",
		func(ctx context.Context) (*domain.InventoryItem, error) {
			return c.remote.AddInventoryItem(ctx, name, category, price, stock)
		},
		func(ctx context.Context) (*domain.InventoryItem, error) {
			return c.local.AddInventoryItem(ctx, name, category, price, stock)
		})
}

func (c *Coordinator) UpdateInventoryItem(ctx context.Context, id int, patch domain.InventoryPatch) (*domain.InventoryItem, error) {
	return mutate(c, ctx, "update_inventory_item",
		func(ctx context.Context) (*domain.InventoryItem, error) {
			return c.remote.UpdateInventoryItem(ctx, id, patch)
		},
		func(ctx context.Context) (*domain.InventoryItem, error) {
			return c.local.UpdateInventoryItem(ctx, id, patch)
		})
}

func (c *Coordinator) DeleteInventoryItem(ctx context.Context, id int) error {
	_, err := mutate(c, ctx, "delete_inventory_item",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.DeleteInventoryItem(ctx, id)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.local.DeleteInventoryItem(ctx, id)
		})
	return err
}

func (c *Coordinator) DeleteAllInventory(ctx context.Context) error {
	_, err := mutate(c, ctx, "delete_all_inventory",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.DeleteAllInventory(ctx)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.local.DeleteAllInventory(ctx)
		})
	return err
}

func (c *Coordinator) AdjustStock(ctx context.Context, id int, delta int) error {
	_, err := mutate(c, ctx, "adjust_stock",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.AdjustStock(ctx, id, delta)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.local.AdjustStock(ctx, id, delta)
		})
	return err
}

func (c *Coordinator) CreateBill(ctx context.Context, userID int, items []domain.BillItem, total float64, paymentMethod string) (*domain.Bill, error) {
	return mutate(c, ctx, "create_bill",
		func(ctx context.Context) (*domain.Bill, error) {
			return c.remote.CreateBill(ctx, userID, items, total, paymentMethod)
		},
		func(ctx context.Context) (*domain.Bill, error) {
			return c.local.CreateBill(ctx, userID, items, total, paymentMethod)
		})
}

func (c *Coordinator) ListBills(ctx context.Context) ([]domain.Bill, error) {
	return read(c, ctx, "list_bills",
		func(ctx context.Context) ([]domain.Bill, error) { return c.remote.ListBills(ctx) },
		func(ctx context.Context) ([]domain.Bill, error) { return c.local.ListBills(ctx) })
}

func (c *Coordinator) ListBillsByUser(ctx context.Context, userID int) ([]domain.Bill, error) {
	return read(c, ctx, "list_bills_by_user",
		func(ctx context.Context) ([]domain.Bill, error) { return c.remote.ListBillsByUser(ctx, userID) },
		func(ctx context.Context) ([]domain.Bill, error) { return c.local.ListBillsByUser(ctx, userID) })
}

func (c *Coordinator) GetBill(ctx context.Context, ref string) (*domain.Bill, error) {
	return read(c, ctx, "get_bill",
		func(ctx context.Context) (*domain.Bill, error) { return c.remote.GetBill(ctx, ref) },
		func(ctx context.Context) (*domain.Bill, error) { return c.local.GetBill(ctx, ref) })
}

func (c *Coordinator) UpdateBill(ctx context.Context, ref string, patch domain.BillPatch) (*domain.Bill, error) {
	return mutate(c, ctx, "update_bill",
		func(ctx context.Context) (*domain.Bill, error) { return c.remote.UpdateBill(ctx, ref, patch) },
		func(ctx context.Context) (*domain.Bill, error) { return c.local.UpdateBill(ctx, ref, patch) })
}

func (c *Coordinator) DeleteBill(ctx context.Context, ref string) error {
	_, err := mutate(c, ctx, "delete_bill",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.DeleteBill(ctx, ref)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.local.DeleteBill(ctx, ref)
		})
	return err
}

func (c *Coordinator) ItemMonthlySales(ctx context.Context, itemID int, month string) (int, error) {
	return read(c, ctx, "item_monthly_sales",
		func(ctx context.Context) (int, error) { return c.remote.ItemMonthlySales(ctx, itemID, month) },
		func(ctx context.Context) (int, error) { return c.local.ItemMonthlySales(ctx, itemID, month) })
}

func (c *Coordinator) ItemSalesInRange(ctx context.Context, itemID int, from, to time.Time) (int, error) {
	return read(c, ctx, "item_sales_in_range",
		func(ctx context.Context) (int, error) { return c.remote.ItemSalesInRange(ctx, itemID, from, to) },
		func(ctx context.Context) (int, error) { return c.local.ItemSalesInRange(ctx, itemID, from, to) })
}

func (c *Coordinator) ResetMonthlySales(ctx context.Context) error {
	_, err := mutate(c, ctx, "reset_monthly_sales",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.ResetMonthlySales(ctx)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.local.ResetMonthlySales(ctx)
		})
	return err
}

var _ store.Store = (*Coordinator)(nil)
