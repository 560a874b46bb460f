package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

type InventoryItem struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
}

// BillItem is a denormalized line-item snapshot taken at bill creation.
// InventoryID is nil for ad-hoc custom items that never existed in inventory.
type BillItem struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	Total       float64 `json:"total"`
	InventoryID *int    `json:"inventory_id"`
}

// BillID holds a bill identifier as text. Current-format bills use the
// "DR"-prefixed display id; legacy documents stored plain JSON numbers, which
// decode to their decimal text so both formats survive a load.
type BillID string

func (b *BillID) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*b = BillID(asString)
		return nil
	}
	var asNumber float64
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return fmt.Errorf("bill id: %s is neither string nor number", data)
	}
	*b = BillID(strconv.Itoa(int(asNumber)))
	return nil
}

// Bill is immutable once created except for explicit admin delete/update.
// ID is the display id ("DR" + zero-padded digits); NumericID is the source
// of truth for ordering and allocation. Legacy records may have a bare
// numeric ID and no NumericID.
type Bill struct {
	ID            BillID     `json:"id"`
	NumericID     int        `json:"numeric_id"`
	UserID        int        `json:"user_id"`
	Date          time.Time  `json:"date"`
	Items         []BillItem `json:"items"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"payment_method"`
}

// MonthlySales maps "YYYY-MM" month keys to per-item sold-quantity counters.
// Item keys are decimal inventory ids, kept as strings to match the persisted
// JSON document layout.
type MonthlySales map[string]map[string]int

// Document is the complete persisted data set: the top-level structure of
// database.json and the logical schema mirrored in the remote collections.
type Document struct {
	Users        []User          `json:"users"`
	Inventory    []InventoryItem `json:"inventory"`
	Bills        []Bill          `json:"bills"`
	Staff        []User          `json:"staff"`
	MonthlySales MonthlySales    `json:"monthly_sales,omitempty"`
}

// EmptyDocument returns a structurally valid document with no records,
// substituted whenever the persisted file is missing or unparseable.
func EmptyDocument() Document {
	return Document{
		Users:     []User{},
		Inventory: []InventoryItem{},
		Bills:     []Bill{},
		Staff:     []User{},
	}
}

// InventoryPatch carries a partial inventory update; nil fields are untouched.
type InventoryPatch struct {
	Name     *string  `json:"name,omitempty"`
	Category *string  `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Stock    *int     `json:"stock,omitempty"`
}

// BillPatch carries a partial bill update; nil fields are untouched.
type BillPatch struct {
	UserID        *int     `json:"user_id,omitempty"`
	Total         *float64 `json:"total,omitempty"`
	PaymentMethod *string  `json:"payment_method,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	UserID      int    `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	UserID   int
}

// SyncStatus reports the coordinator's view of the remote backend.
type SyncStatus struct {
	Backend     string     `json:"backend"`
	Offline     bool       `json:"offline"`
	PendingOps  int        `json:"pending_ops"`
	LastMirror  *time.Time `json:"last_mirror,omitempty"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}

// MonthKey formats t as the "YYYY-MM" bucket key used by monthly sales.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// PreviousMonthKey is the month immediately before t's month, computed by
// stepping one day back from the first of t's month.
func PreviousMonthKey(t time.Time) string {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return MonthKey(firstOfMonth.AddDate(0, 0, -1))
}

// ItemKey is the monthly-sales counter key for an inventory id.
func ItemKey(itemID int) string {
	return strconv.Itoa(itemID)
}
