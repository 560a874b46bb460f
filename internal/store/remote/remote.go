// Package remote implements the store contract against a remote document
// database through the docstore client. It is a pure translation layer:
// offline detection, queuing and mirroring live in the sync coordinator.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sunnybiju2005/billing-application/internal/billid"
	"github.com/sunnybiju2005/billing-application/internal/docstore"
	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/store"
)

type Credential struct {
	Username string
	Password string
	Name     string
}

type Options struct {
	Admin Credential
	Staff Credential
}

type Store struct {
	client docstore.Client
	opts   Options
}

// sampleInventory is seeded into an empty remote inventory collection,
// matching what a fresh remote deployment has always started with. The local
// store treats these names as purgeable demo rows.
var sampleInventory = []domain.InventoryItem{
	{ID: 1, Name: "T-Shirt", Category: "Tops", Price: 29.99, Stock: 50},
	{ID: 2, Name: "Jeans", Category: "Bottoms", Price: 79.99, Stock: 30},
	{ID: 3, Name: "Jacket", Category: "Outerwear", Price: 129.99, Stock: 20},
	{ID: 4, Name: "Dress", Category: "Dresses", Price: 59.99, Stock: 25},
	{ID: 5, Name: "Sneakers", Category: "Footwear", Price: 89.99, Stock: 40},
	{ID: 6, Name: "Cap", Category: "Accessories", Price: 19.99, Stock: 60},
}

func New(ctx context.Context, client docstore.Client, opts Options) (*Store, error) {
	s := &Store{client: client, opts: opts}
	if err := s.ensureSeed(ctx); err != nil {
		return nil, fmt.Errorf("%w: seed: %v", store.ErrRemoteUnavailable, err)
	}
	return s, nil
}

func (s *Store) Client() docstore.Client {
	return s.client
}

// ensureSeed repairs the users collection against the configured credentials
// and seeds sample inventory into an empty collection.
func (s *Store) ensureSeed(ctx context.Context) error {
	admins, err := s.client.FindEq(ctx, docstore.CollectionUsers, "role", domain.RoleAdmin)
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		_, err = s.client.UpdateEq(ctx, docstore.CollectionUsers, "role", domain.RoleAdmin, map[string]any{
			"username": s.opts.Admin.Username,
			"password": s.opts.Admin.Password,
			"name":     s.opts.Admin.Name,
		})
		if err != nil {
			return err
		}
	} else {
		adminDoc, err := toDoc(domain.User{
			ID:       1,
			Username: s.opts.Admin.Username,
			Password: s.opts.Admin.Password,
			Role:     domain.RoleAdmin,
			Name:     s.opts.Admin.Name,
		})
		if err != nil {
			return err
		}
		if err := s.client.Add(ctx, docstore.CollectionUsers, adminDoc); err != nil {
			return err
		}
	}

	staff, err := s.client.FindEq(ctx, docstore.CollectionUsers, "username", s.opts.Staff.Username)
	if err != nil {
		return err
	}
	staffExists := false
	for _, doc := range staff {
		if doc["role"] == domain.RoleStaff {
			staffExists = true
			break
		}
	}
	if !staffExists {
		maxID, err := s.maxIntField(ctx, docstore.CollectionUsers, "id")
		if err != nil {
			return err
		}
		staffDoc, err := toDoc(domain.User{
			ID:       maxID + 1,
			Username: s.opts.Staff.Username,
			Password: s.opts.Staff.Password,
			Role:     domain.RoleStaff,
			Name:     s.opts.Staff.Name,
		})
		if err != nil {
			return err
		}
		if err := s.client.Add(ctx, docstore.CollectionUsers, staffDoc); err != nil {
			return err
		}
	}

	inventory, err := s.client.All(ctx, docstore.CollectionInventory)
	if err != nil {
		return err
	}
	if len(inventory) == 0 {
		for _, item := range sampleInventory {
			doc, err := toDoc(item)
			if err != nil {
				return err
			}
			if err := s.client.Add(ctx, docstore.CollectionInventory, doc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) maxIntField(ctx context.Context, collection, field string) (int, error) {
	docs, err := s.client.All(ctx, collection)
	if err != nil {
		return 0, err
	}
	maxVal := 0
	for _, doc := range docs {
		if n, ok := doc[field].(float64); ok && int(n) > maxVal {
			maxVal = int(n)
		}
	}
	return maxVal, nil
}

func (s *Store) AuthenticateUser(ctx context.Context, username, password, role string) (*domain.User, error) {
	docs, err := s.client.FindEq(ctx, docstore.CollectionUsers, "username", username)
	if err != nil {
		return nil, err
	}
	users, err := fromDocs[domain.User](docs)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Role == role && u.Password == password {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUser(ctx context.Context, id int) (*domain.User, error) {
	docs, err := s.client.FindEq(ctx, docstore.CollectionUsers, "id", id)
	if err != nil {
		return nil, err
	}
	users, err := fromDocs[domain.User](docs)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, store.ErrNotFound
	}
	return &users[0], nil
}

func (s *Store) AddUser(ctx context.Context, username, password, role, name string) (*domain.User, error) {
	maxID, err := s.maxIntField(ctx, docstore.CollectionUsers, "id")
	if err != nil {
		return nil, err
	}
	user := domain.User{
		ID:       maxID + 1,
		Username: username,
		Password: password,
		Role:     role,
		Name:     name,
	}
	doc, err := toDoc(user)
	if err != nil {
		return nil, err
	}
	if err := s.client.Add(ctx, docstore.CollectionUsers, doc); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	var docs []map[string]any
	var err error
	if role == "" {
		docs, err = s.client.All(ctx, docstore.CollectionUsers)
	} else {
		docs, err = s.client.FindEq(ctx, docstore.CollectionUsers, "role", role)
	}
	if err != nil {
		return nil, err
	}
	return fromDocs[domain.User](docs)
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	docs, err := s.client.All(ctx, docstore.CollectionInventory)
	if err != nil {
		return nil, err
	}
	return fromDocs[domain.InventoryItem](docs)
}

func (s *Store) GetInventoryItem(ctx context.Context, id int) (*domain.InventoryItem, error) {
	docs, err := s.client.FindEq(ctx, docstore.CollectionInventory, "id", id)
	if err != nil {
		return nil, err
	}
	items, err := fromDocs[domain.InventoryItem](docs)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return &items[0], nil
}

func (s *Store) AddInventoryItem(ctx context.Context, name, category string, price float64, stock int) (*domain.InventoryItem, error) {
	maxID, err := s.maxIntField(ctx, docstore.CollectionInventory, "id")
	if err != nil {
		return nil, err
	}
	item := domain.InventoryItem{
		ID:       maxID + 1,
		Name:     name,
		Category: category,
		Price:    price,
		Stock:    stock,
	}
	doc, err := toDoc(item)
	if err != nil {
		return nil, err
	}
	if err := s.client.Add(ctx, docstore.CollectionInventory, doc); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, id int, patch domain.InventoryPatch) (*domain.InventoryItem, error) {
	patchDoc := map[string]any{}
	if patch.Name != nil {
		patchDoc["name"] = *patch.Name
	}
	if patch.Category != nil {
		patchDoc["category"] = *patch.Category
	}
	if patch.Price != nil {
		patchDoc["price"] = *patch.Price
	}
	if patch.Stock != nil {
		patchDoc["stock"] = *patch.Stock
	}
	if len(patchDoc) > 0 {
		updated, err := s.client.UpdateEq(ctx, docstore.CollectionInventory, "id", id, patchDoc)
		if err != nil {
			return nil, err
		}
		if updated == 0 {
			return nil, store.ErrNotFound
		}
	}
	return s.GetInventoryItem(ctx, id)
}

func (s *Store) DeleteInventoryItem(ctx context.Context, id int) error {
	deleted, err := s.client.DeleteEq(ctx, docstore.CollectionInventory, "id", id)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllInventory(ctx context.Context) error {
	items, err := s.ListInventory(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := s.client.DeleteEq(ctx, docstore.CollectionInventory, "id", item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, id int, delta int) error {
	item, err := s.GetInventoryItem(ctx, id)
	if err != nil {
		return err
	}
	next := item.Stock + delta
	if next < 0 {
		next = 0
	}
	_, err = s.client.UpdateEq(ctx, docstore.CollectionInventory, "id", id, map[string]any{"stock": next})
	return err
}

func (s *Store) CreateBill(ctx context.Context, userID int, items []domain.BillItem, total float64, paymentMethod string) (*domain.Bill, error) {
	if paymentMethod == "" {
		paymentMethod = "Cash"
	}
	existing, err := s.ListBills(ctx)
	if err != nil {
		return nil, err
	}
	display, numeric := billid.Next(existing)

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
	doc, err := toDoc(bill)
	if err != nil {
		return nil, err
	}
	if err := s.client.Add(ctx, docstore.CollectionBills, doc); err != nil {
		return nil, err
	}
	if err := s.recordMonthlySales(ctx, bill.Items, bill.Date); err != nil {
		return nil, err
	}
	return &bill, nil
}

func (s *Store) recordMonthlySales(ctx context.Context, items []domain.BillItem, at time.Time) error {
	month := domain.MonthKey(at)
	bucket, ok, err := s.client.GetDoc(ctx, docstore.CollectionMonthlySales, month)
	if err != nil {
		return err
	}
	if !ok {
		bucket = map[string]any{}
	}
	for _, item := range items {
		if item.InventoryID == nil {
			continue
		}
		key := domain.ItemKey(*item.InventoryID)
		current := 0
		if n, ok := bucket[key].(float64); ok {
			current = int(n)
		}
		bucket[key] = current + item.Quantity
	}
	return s.client.SetDoc(ctx, docstore.CollectionMonthlySales, month, bucket)
}

func (s *Store) ListBills(ctx context.Context) ([]domain.Bill, error) {
	docs, err := s.client.All(ctx, docstore.CollectionBills)
	if err != nil {
		return nil, err
	}
	return fromDocs[domain.Bill](docs)
}

func (s *Store) ListBillsByUser(ctx context.Context, userID int) ([]domain.Bill, error) {
	docs, err := s.client.FindEq(ctx, docstore.CollectionBills, "user_id", userID)
	if err != nil {
		return nil, err
	}
	return fromDocs[domain.Bill](docs)
}

type billRefFilter struct {
	field string
	value any
}

// billRefFilters lists the field/value probes that can resolve a bill ref:
// the display id, then for numeric refs the explicit numeric_id and finally
// the raw integer id legacy documents carry.
func billRefFilters(ref string) []billRefFilter {
	filters := []billRefFilter{{"id", ref}}
	if n, err := strconv.Atoi(ref); err == nil {
		filters = append(filters, billRefFilter{"numeric_id", n}, billRefFilter{"id", n})
	}
	return filters
}

func (s *Store) GetBill(ctx context.Context, ref string) (*domain.Bill, error) {
	for _, filter := range billRefFilters(ref) {
		docs, err := s.client.FindEq(ctx, docstore.CollectionBills, filter.field, filter.value)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			continue
		}
		bills, err := fromDocs[domain.Bill](docs)
		if err != nil {
			return nil, err
		}
		return &bills[0], nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateBill(ctx context.Context, ref string, patch domain.BillPatch) (*domain.Bill, error) {
	patchDoc := map[string]any{}
	if patch.UserID != nil {
		patchDoc["user_id"] = *patch.UserID
	}
	if patch.Total != nil {
		patchDoc["total"] = *patch.Total
	}
	if patch.PaymentMethod != nil {
		patchDoc["payment_method"] = *patch.PaymentMethod
	}
	if len(patchDoc) > 0 {
		updated := 0
		for _, filter := range billRefFilters(ref) {
			n, err := s.client.UpdateEq(ctx, docstore.CollectionBills, filter.field, filter.value, patchDoc)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				updated = n
				break
			}
		}
		if updated == 0 {
			return nil, store.ErrNotFound
		}
	}
	return s.GetBill(ctx, ref)
}

func (s *Store) DeleteBill(ctx context.Context, ref string) error {
	for _, filter := range billRefFilters(ref) {
		deleted, err := s.client.DeleteEq(ctx, docstore.CollectionBills, filter.field, filter.value)
		if err != nil {
			return err
		}
		if deleted > 0 {
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ItemMonthlySales(ctx context.Context, itemID int, month string) (int, error) {
	if month == "" {
		month = domain.MonthKey(time.Now())
	}
	bucket, ok, err := s.client.GetDoc(ctx, docstore.CollectionMonthlySales, month)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if n, ok := bucket[domain.ItemKey(itemID)].(float64); ok {
		return int(n), nil
	}
	if n, ok := bucket[domain.ItemKey(itemID)].(int); ok {
		return n, nil
	}
	return 0, nil
}

func (s *Store) ItemSalesInRange(ctx context.Context, itemID int, from, to time.Time) (int, error) {
	bills, err := s.ListBills(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, bill := range bills {
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

func (s *Store) ResetMonthlySales(ctx context.Context) error {
	now := time.Now()
	keep := map[string]bool{
		domain.MonthKey(now):         true,
		domain.PreviousMonthKey(now): true,
	}
	months, err := s.client.ListDocKeys(ctx, docstore.CollectionMonthlySales)
	if err != nil {
		return err
	}
	for _, month := range months {
		if keep[month] {
			continue
		}
		if err := s.client.DeleteDoc(ctx, docstore.CollectionMonthlySales, month); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot reads every remote collection into a single document, used by the
// coordinator to rewrite the local mirror in full.
func (s *Store) Snapshot(ctx context.Context) (domain.Document, error) {
	users, err := s.ListUsers(ctx, "")
	if err != nil {
		return domain.Document{}, err
	}
	inventory, err := s.ListInventory(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	bills, err := s.ListBills(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	months, err := s.client.ListDocKeys(ctx, docstore.CollectionMonthlySales)
	if err != nil {
		return domain.Document{}, err
	}
	sales := domain.MonthlySales{}
	for _, month := range months {
		bucket, ok, err := s.client.GetDoc(ctx, docstore.CollectionMonthlySales, month)
		if err != nil {
			return domain.Document{}, err
		}
		if !ok {
			continue
		}
		counts := make(map[string]int, len(bucket))
		for key, value := range bucket {
			if n, ok := value.(float64); ok {
				counts[key] = int(n)
			}
		}
		sales[month] = counts
	}

	doc := domain.EmptyDocument()
	doc.Users = users
	doc.Inventory = inventory
	doc.Bills = bills
	doc.MonthlySales = sales
	return doc, nil
}

var _ store.Store = (*Store)(nil)

func toDoc(v any) (map[string]any, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDocs[T any](docs []map[string]any) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
