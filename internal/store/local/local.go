// Package local implements the store contract over a single JSON document on
// disk, with each bill additionally mirrored to its own file for redundancy.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sunnybiju2005/billing-application/internal/billid"
	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/store"
)

const (
	databaseFileName = "database.json"
	billFilesDirName = "bills_json"
)

// sampleItemNames are legacy demo rows purged from inventory at load time.
var sampleItemNames = []string{"T-Shirt", "Jeans", "Jacket", "Dress", "Sneakers", "Cap"}

type Credential struct {
	Username string
	Password string
	Name     string
}

type Options struct {
	DataDir string
	Admin   Credential
	Staff   Credential
}

// Store owns the on-disk JSON document exclusively. Every mutation is a
// full-document rewrite; there is no file locking, so two processes pointed
// at the same data directory can clobber each other. Accepted limitation.
type Store struct {
	mu   sync.Mutex
	opts Options
	doc  domain.Document
}

func New(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("local store: data dir is required")
	}
	s := &Store{opts: opts, doc: loadDocument(filepath.Join(opts.DataDir, databaseFileName))}

	changed := s.seedDefaults()
	if changed {
		if err := s.save(); err != nil {
			return nil, err
		}
	}
	s.migrateBillFiles()
	return s, nil
}

// loadDocument reads the aggregate document, substituting an empty valid
// structure when the file is missing or unparseable.
func loadDocument(path string) domain.Document {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.EmptyDocument()
	}
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.EmptyDocument()
	}
	normalize(&doc)
	return doc
}

func normalize(doc *domain.Document) {
	if doc.Users == nil {
		doc.Users = []domain.User{}
	}
	if doc.Inventory == nil {
		doc.Inventory = []domain.InventoryItem{}
	}
	if doc.Bills == nil {
		doc.Bills = []domain.Bill{}
	}
	if doc.Staff == nil {
		doc.Staff = []domain.User{}
	}
}

// seedDefaults repairs the user table against the configured credentials and
// strips legacy sample inventory. Reports whether anything changed.
func (s *Store) seedDefaults() bool {
	changed := false

	var admin *domain.User
	for i := range s.doc.Users {
		if s.doc.Users[i].Role == domain.RoleAdmin {
			admin = &s.doc.Users[i]
			break
		}
	}
	if admin != nil {
		if admin.Username != s.opts.Admin.Username || admin.Password != s.opts.Admin.Password || admin.Name != s.opts.Admin.Name {
			admin.Username = s.opts.Admin.Username
			admin.Password = s.opts.Admin.Password
			admin.Name = s.opts.Admin.Name
			changed = true
		}
	} else {
		s.doc.Users = append(s.doc.Users, domain.User{
			ID:       1,
			Username: s.opts.Admin.Username,
			Password: s.opts.Admin.Password,
			Role:     domain.RoleAdmin,
			Name:     s.opts.Admin.Name,
		})
		changed = true
	}

	staffExists := false
	for _, u := range s.doc.Users {
		if u.Role == domain.RoleStaff && u.Username == s.opts.Staff.Username {
			staffExists = true
			break
		}
	}
	if !staffExists {
		s.doc.Users = append(s.doc.Users, domain.User{
			ID:       nextUserID(s.doc.Users),
			Username: s.opts.Staff.Username,
			Password: s.opts.Staff.Password,
			Role:     domain.RoleStaff,
			Name:     s.opts.Staff.Name,
		})
		changed = true
	}

	kept := s.doc.Inventory[:0]
	for _, item := range s.doc.Inventory {
		if isSampleItem(item.Name) {
			changed = true
			continue
		}
		kept = append(kept, item)
	}
	s.doc.Inventory = kept

	return changed
}

func isSampleItem(name string) bool {
	for _, sample := range sampleItemNames {
		if name == sample {
			return true
		}
	}
	return false
}

func nextUserID(users []domain.User) int {
	maxID := 0
	for _, u := range users {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	return maxID + 1
}

// save rewrites the whole document. Callers must hold s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(s.opts.DataDir, 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.opts.DataDir, databaseFileName), payload, 0o644)
}

// saveBillFile writes the per-bill redundancy copy. Failures are swallowed:
// the bill already lives in the aggregate document.
func (s *Store) saveBillFile(bill domain.Bill) {
	dir := filepath.Join(s.opts.DataDir, billFilesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	payload, err := json.MarshalIndent(bill, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, string(bill.ID)+".json"), payload, 0o644)
}

func (s *Store) deleteBillFile(bill domain.Bill) {
	_ = os.Remove(filepath.Join(s.opts.DataDir, billFilesDirName, string(bill.ID)+".json"))
}

// migrateBillFiles back-fills per-bill files for bills present in the
// aggregate document, never overwriting an existing file.
func (s *Store) migrateBillFiles() {
	dir := filepath.Join(s.opts.DataDir, billFilesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	for _, bill := range s.doc.Bills {
		if bill.ID == "" {
			continue
		}
		path := filepath.Join(dir, string(bill.ID)+".json")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		s.saveBillFile(bill)
	}
}

// ReplaceAll overwrites the local document with doc and persists it. This is
// the coordinator's mirror path: after remote operations the best-known
// remote state is written here in full.
func (s *Store) ReplaceAll(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalize(&doc)
	s.doc = doc
	if err := s.save(); err != nil {
		return err
	}
	s.migrateBillFiles()
	return nil
}

// Snapshot returns a deep copy of the in-memory document.
func (s *Store) Snapshot(_ context.Context) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDocument(s.doc), nil
}

func (s *Store) AuthenticateUser(_ context.Context, username, password, role string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.doc.Users {
		if u.Username == username && u.Password == password && u.Role == role {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUser(_ context.Context, id int) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.doc.Users {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AddUser(_ context.Context, username, password, role, name string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := domain.User{
		ID:       nextUserID(s.doc.Users),
		Username: username,
		Password: password,
		Role:     role,
		Name:     name,
	}
	s.doc.Users = append(s.doc.Users, user)
	if err := s.save(); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context, role string) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]domain.User, 0, len(s.doc.Users))
	for _, u := range s.doc.Users {
		if role != "" && u.Role != role {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.InventoryItem, len(s.doc.Inventory))
	copy(items, s.doc.Inventory)
	return items, nil
}

func (s *Store) GetInventoryItem(_ context.Context, id int) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.doc.Inventory {
		if item.ID == id {
			found := item
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AddInventoryItem(_ context.Context, name, category string, price float64, stock int) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxID := 0
	for _, item := range s.doc.Inventory {
		if item.ID > maxID {
			maxID = item.ID
		}
	}
	item := domain.InventoryItem{
		ID:       maxID + 1,
		Name:     name,
		Category: category,
		Price:    price,
		Stock:    stock,
	}
	s.doc.Inventory = append(s.doc.Inventory, item)
	if err := s.save(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateInventoryItem(_ context.Context, id int, patch domain.InventoryPatch) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Inventory {
		if s.doc.Inventory[i].ID != id {
			continue
		}
		applyInventoryPatch(&s.doc.Inventory[i], patch)
		if err := s.save(); err != nil {
			return nil, err
		}
		updated := s.doc.Inventory[i]
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

func applyInventoryPatch(item *domain.InventoryItem, patch domain.InventoryPatch) {
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.Price != nil {
		item.Price = *patch.Price
	}
	if patch.Stock != nil {
		item.Stock = *patch.Stock
	}
}

// DeleteInventoryItem removes the item even when historical bills reference
// it; bills carry their own denormalized copy of name and price.
func (s *Store) DeleteInventoryItem(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.doc.Inventory[:0]
	for _, item := range s.doc.Inventory {
		if item.ID == id {
			continue
		}
		kept = append(kept, item)
	}
	s.doc.Inventory = kept
	return s.save()
}

func (s *Store) DeleteAllInventory(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Inventory = []domain.InventoryItem{}
	return s.save()
}

func (s *Store) AdjustStock(_ context.Context, id int, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Inventory {
		if s.doc.Inventory[i].ID != id {
			continue
		}
		next := s.doc.Inventory[i].Stock + delta
		if next < 0 {
			next = 0
		}
		s.doc.Inventory[i].Stock = next
		return s.save()
	}
	return store.ErrNotFound
}

func (s *Store) CreateBill(_ context.Context, userID int, items []domain.BillItem, total float64, paymentMethod string) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if paymentMethod == "" {
		paymentMethod = "Cash"
	}

	display, numeric := billid.Next(s.doc.Bills)
	snapshot := make([]domain.BillItem, len(items))
	copy(snapshot, items)

	bill := domain.Bill{
		ID:            domain.BillID(display),
		NumericID:     numeric,
		UserID:        userID,
		Date:          time.Now(),
		Items:         snapshot,
		Total:         total,
		PaymentMethod: paymentMethod,
	}
	s.doc.Bills = append(s.doc.Bills, bill)
	recordMonthlySales(&s.doc, bill.Items, bill.Date)
	s.saveBillFile(bill)
	if err := s.save(); err != nil {
		return nil, err
	}
	created := cloneBill(bill)
	return &created, nil
}

// recordMonthlySales bumps the current-month counter for every line item that
// references an inventory record. Counters are never decremented.
func recordMonthlySales(doc *domain.Document, items []domain.BillItem, at time.Time) {
	month := domain.MonthKey(at)
	if doc.MonthlySales == nil {
		doc.MonthlySales = domain.MonthlySales{}
	}
	if doc.MonthlySales[month] == nil {
		doc.MonthlySales[month] = map[string]int{}
	}
	for _, item := range items {
		if item.InventoryID == nil {
			continue
		}
		doc.MonthlySales[month][domain.ItemKey(*item.InventoryID)] += item.Quantity
	}
}

func (s *Store) ListBills(_ context.Context) ([]domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bills := make([]domain.Bill, 0, len(s.doc.Bills))
	for _, bill := range s.doc.Bills {
		bills = append(bills, cloneBill(bill))
	}
	return bills, nil
}

func (s *Store) ListBillsByUser(_ context.Context, userID int) ([]domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bills := make([]domain.Bill, 0, 16)
	for _, bill := range s.doc.Bills {
		if bill.UserID != userID {
			continue
		}
		bills = append(bills, cloneBill(bill))
	}
	return bills, nil
}

func (s *Store) GetBill(_ context.Context, ref string) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bill := range s.doc.Bills {
		if matchBill(bill, ref) {
			found := cloneBill(bill)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateBill(_ context.Context, ref string, patch domain.BillPatch) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Bills {
		if !matchBill(s.doc.Bills[i], ref) {
			continue
		}
		if patch.UserID != nil {
			s.doc.Bills[i].UserID = *patch.UserID
		}
		if patch.Total != nil {
			s.doc.Bills[i].Total = *patch.Total
		}
		if patch.PaymentMethod != nil {
			s.doc.Bills[i].PaymentMethod = *patch.PaymentMethod
		}
		if err := s.save(); err != nil {
			return nil, err
		}
		s.saveBillFileLocked(s.doc.Bills[i])
		updated := cloneBill(s.doc.Bills[i])
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

// saveBillFileLocked refreshes the per-bill file after an update, replacing
// the stale copy rather than preserving it.
func (s *Store) saveBillFileLocked(bill domain.Bill) {
	s.deleteBillFile(bill)
	s.saveBillFile(bill)
}

// DeleteBill removes the bill and its individual file. Monthly sales counters
// are deliberately left untouched: historical sales are not rewritten.
func (s *Store) DeleteBill(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.doc.Bills[:0]
	var removed *domain.Bill
	for _, bill := range s.doc.Bills {
		if removed == nil && matchBill(bill, ref) {
			deleted := bill
			removed = &deleted
			continue
		}
		kept = append(kept, bill)
	}
	s.doc.Bills = kept
	if removed == nil {
		return store.ErrNotFound
	}
	s.deleteBillFile(*removed)
	return s.save()
}

// matchBill accepts either the display id or the decimal numeric id.
func matchBill(bill domain.Bill, ref string) bool {
	if string(bill.ID) == ref {
		return true
	}
	if n, err := strconv.Atoi(ref); err == nil {
		return bill.NumericID != 0 && bill.NumericID == n
	}
	return false
}

func (s *Store) ItemMonthlySales(_ context.Context, itemID int, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if month == "" {
		month = domain.MonthKey(time.Now())
	}
	bucket, ok := s.doc.MonthlySales[month]
	if !ok {
		return 0, nil
	}
	return bucket[domain.ItemKey(itemID)], nil
}

func (s *Store) ItemSalesInRange(_ context.Context, itemID int, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, bill := range s.doc.Bills {
		if bill.Date.Before(from) || bill.Date.After(to) {
			continue
		}
		for _, item := range bill.Items {
			if item.InventoryID != nil && *item.InventoryID == itemID {
				total += item.Quantity
			}
		}
	}
	return total, nil
}

// ResetMonthlySales trims every month bucket except the current and the
// immediately previous calendar month.
func (s *Store) ResetMonthlySales(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	keep := map[string]bool{
		domain.MonthKey(now):         true,
		domain.PreviousMonthKey(now): true,
	}
	trimmed := domain.MonthlySales{}
	for month, bucket := range s.doc.MonthlySales {
		if keep[month] {
			trimmed[month] = bucket
		}
	}
	s.doc.MonthlySales = trimmed
	return s.save()
}

var _ store.Store = (*Store)(nil)

func cloneBill(src domain.Bill) domain.Bill {
	dup := src
	items := make([]domain.BillItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneDocument(src domain.Document) domain.Document {
	dup := src
	dup.Users = append([]domain.User{}, src.Users...)
	dup.Inventory = append([]domain.InventoryItem{}, src.Inventory...)
	dup.Staff = append([]domain.User{}, src.Staff...)
	dup.Bills = make([]domain.Bill, 0, len(src.Bills))
	for _, bill := range src.Bills {
		dup.Bills = append(dup.Bills, cloneBill(bill))
	}
	if src.MonthlySales != nil {
		dup.MonthlySales = domain.MonthlySales{}
		for month, bucket := range src.MonthlySales {
			copied := make(map[string]int, len(bucket))
			for k, v := range bucket {
				copied[k] = v
			}
			dup.MonthlySales[month] = copied
		}
	}
	return dup
}
