// Package httpapi is the JSON surface over the store facade. Routing uses
// chi; auth is bearer-token with role checks per route group.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/store"
)

// ReceiptRenderer formats a bill for printing. Rendering is owned by the
// consumer application; the API only exposes the hook.
type ReceiptRenderer interface {
	RenderReceipt(ctx context.Context, bill domain.Bill) (payload []byte, contentType string, err error)
}

type Options struct {
	Store         store.Store
	Auth          *AuthManager
	AllowedOrigin string

	// SyncStatus is nil in local-only mode.
	SyncStatus func() domain.SyncStatus
	// Receipts is optional; the receipt endpoint answers 501 without it.
	Receipts ReceiptRenderer
}

type Server struct {
	opts   Options
	router chi.Router
}

func NewServer(opts Options) *Server {
	s := &Server{opts: opts}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.opts.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(domain.RoleAdmin))
			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleAddUser)
			r.Post("/reports/monthly-sales/reset", s.handleResetMonthlySales)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(domain.RoleAdmin, domain.RoleStaff))

			r.Get("/inventory", s.handleListInventory)
			r.Post("/inventory", s.handleAddInventoryItem)
			r.Get("/inventory/{id}", s.handleGetInventoryItem)
			r.Put("/inventory/{id}", s.handleUpdateInventoryItem)
			r.Delete("/inventory/{id}", s.handleDeleteInventoryItem)
			r.Post("/inventory/{id}/stock", s.handleAdjustStock)

			r.Get("/bills", s.handleListBills)
			r.Post("/bills", s.handleCreateBill)
			r.Get("/bills/{ref}", s.handleGetBill)
			r.Patch("/bills/{ref}", s.handleUpdateBill)
			r.Delete("/bills/{ref}", s.handleDeleteBill)
			r.Get("/bills/{ref}/receipt", s.handleBillReceipt)

			r.Get("/reports/monthly-sales", s.handleMonthlySales)
			r.Get("/reports/sales-range", s.handleSalesRange)

			r.Get("/sync/status", s.handleSyncStatus)
		})
	})
	return r
}

type ctxKey int

const actorKey ctxKey = 0

func (s *Server) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			actor, err := s.opts.Auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			allowed := false
			for _, role := range roles {
				if actor.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorKey).(domain.Actor)
	return actor
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.opts.Auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.opts.Store.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type addUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleStaff {
		writeError(w, http.StatusBadRequest, "role must be admin or staff")
		return
	}

	// Username uniqueness is enforced per role at this level; the store
	// itself accepts duplicates.
	existing, err := s.opts.Store.ListUsers(r.Context(), req.Role)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, u := range existing {
		if u.Username == req.Username {
			writeError(w, http.StatusConflict, "username already exists for role")
			return
		}
	}

	user, err := s.opts.Store.AddUser(r.Context(), req.Username, req.Password, req.Role, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.opts.Store.ListInventory(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetInventoryItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	item, err := s.opts.Store.GetInventoryItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type addInventoryRequest struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
}

func (s *Server) handleAddInventoryItem(w http.ResponseWriter, r *http.Request) {
	var req addInventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "item name is required")
		return
	}
	if req.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	if req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}
	item, err := s.opts.Store.AddInventoryItem(r.Context(), req.Name, req.Category, req.Price, req.Stock)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	var patch domain.InventoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		writeError(w, http.StatusBadRequest, "item name must not be empty")
		return
	}
	if patch.Price != nil && *patch.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		writeError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}
	item, err := s.opts.Store.UpdateInventoryItem(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if err := s.opts.Store.DeleteInventoryItem(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Store.AdjustStock(r.Context(), id, req.Delta); err != nil {
		writeStoreError(w, err)
		return
	}
	item, err := s.opts.Store.GetInventoryItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	if userParam := r.URL.Query().Get("user"); userParam != "" {
		userID, err := strconv.Atoi(userParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		bills, err := s.opts.Store.ListBillsByUser(r.Context(), userID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bills)
		return
	}
	bills, err := s.opts.Store.ListBills(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

type createBillRequest struct {
	UserID        int               `json:"user_id"`
	Items         []domain.BillItem `json:"items"`
	Total         float64           `json:"total"`
	PaymentMethod string            `json:"payment_method"`
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "bill needs at least one item")
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "item quantity must be positive")
			return
		}
	}
	if req.UserID == 0 {
		req.UserID = actorFrom(r).UserID
	}
	bill, err := s.opts.Store.CreateBill(r.Context(), req.UserID, req.Items, req.Total, req.PaymentMethod)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.opts.Store.GetBill(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var patch domain.BillPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bill, err := s.opts.Store.UpdateBill(r.Context(), chi.URLParam(r, "ref"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.DeleteBill(r.Context(), chi.URLParam(r, "ref")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBillReceipt(w http.ResponseWriter, r *http.Request) {
	if s.opts.Receipts == nil {
		writeError(w, http.StatusNotImplemented, "receipt rendering is not configured")
		return
	}
	bill, err := s.opts.Store.GetBill(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	payload, contentType, err := s.opts.Receipts.RenderReceipt(r.Context(), *bill)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "receipt rendering failed")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleMonthlySales(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(r.URL.Query().Get("item"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
	}
	count, err := s.opts.Store.ItemMonthlySales(r.Context(), itemID, month)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "month": month, "quantity": count})
}

func (s *Server) handleSalesRange(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(r.URL.Query().Get("item"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	// Range is inclusive of the whole "to" day.
	to = to.Add(24*time.Hour - time.Nanosecond)
	count, err := s.opts.Store.ItemSalesInRange(r.Context(), itemID, from, to)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "quantity": count})
}

func (s *Server) handleResetMonthlySales(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.ResetMonthlySales(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	if s.opts.SyncStatus == nil {
		writeJSON(w, http.StatusOK, domain.SyncStatus{Backend: "local"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.SyncStatus())
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("httpapi: store error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}
