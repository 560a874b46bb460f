package store

import (
	"context"
	"errors"
	"time"

	"github.com/sunnybiju2005/billing-application/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrRemoteUnavailable marks connectivity or credential failures against
	// the remote backend; ErrQuotaExceeded marks storage-exhaustion failures.
	// Both degrade to the local store, never to the caller.
	ErrRemoteUnavailable = errors.New("remote backend unavailable")
	ErrQuotaExceeded     = errors.New("remote storage quota exceeded")
)

// Store is the database facade contract. The local JSON store, the remote
// adapter and the sync coordinator all implement it; callers are bound to
// exactly one implementation at process start.
//
// Bill refs are accepted transparently as either the display id ("DR0201")
// or the decimal numeric id ("201").
type Store interface {
	AuthenticateUser(ctx context.Context, username, password, role string) (*domain.User, error)
	GetUser(ctx context.Context, id int) (*domain.User, error)
	AddUser(ctx context.Context, username, password, role, name string) (*domain.User, error)
	ListUsers(ctx context.Context, role string) ([]domain.User, error)

	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id int) (*domain.InventoryItem, error)
	AddInventoryItem(ctx context.Context, name, category string, price float64, stock int) (*domain.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, id int, patch domain.InventoryPatch) (*domain.InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, id int) error
	DeleteAllInventory(ctx context.Context) error
	AdjustStock(ctx context.Context, id int, delta int) error

	CreateBill(ctx context.Context, userID int, items []domain.BillItem, total float64, paymentMethod string) (*domain.Bill, error)
	ListBills(ctx context.Context) ([]domain.Bill, error)
	ListBillsByUser(ctx context.Context, userID int) ([]domain.Bill, error)
	GetBill(ctx context.Context, ref string) (*domain.Bill, error)
	UpdateBill(ctx context.Context, ref string, patch domain.BillPatch) (*domain.Bill, error)
	DeleteBill(ctx context.Context, ref string) error

	ItemMonthlySales(ctx context.Context, itemID int, month string) (int, error)
	ItemSalesInRange(ctx context.Context, itemID int, from, to time.Time) (int, error)
	ResetMonthlySales(ctx context.Context) error
}
