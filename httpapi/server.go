package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kitbitz/haveekos/models"
	"github.com/Kitbitz/haveekos/realtime"
	"github.com/Kitbitz/haveekos/services"
)

// Server is the storefront HTTP API. Customer endpoints are open; staff
// endpoints require the shared admin password in the X-Admin-Password
// header.
type Server struct {
	log           *slog.Logger
	adminPassword string
	sync          services.OrderSyncer   // nil when sheet sync is disabled
	exporter      services.OrderExporter // nil when sheet sync is disabled
	provider      *realtime.Provider     // nil in tests
}

func NewServer(adminPassword string, sync services.OrderSyncer, exporter services.OrderExporter, provider *realtime.Provider, log *slog.Logger) *Server {
	return &Server{
		log:           log,
		adminPassword: adminPassword,
		sync:          sync,
		exporter:      exporter,
		provider:      provider,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/orders/", s.handleOrderByID)
	mux.HandleFunc("/api/menu", s.handleMenu)
	mux.HandleFunc("/api/menu/", s.handleMenuByID)
	mux.HandleFunc("/api/colors", s.handleColors)
	mux.HandleFunc("/api/settings/gcash", s.handleGCash)
	mux.HandleFunc("/api/settings/announcement", s.handleAnnouncement)
	mux.HandleFunc("/api/settings/autoexport", s.handleAutoExport)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/reconnect", s.handleReconnect)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in models.CreateOrderInput
		if !s.decode(w, r, &in) {
			return
		}
		order, err := services.CreateOrder(r.Context(), in, s.sync)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	case http.MethodGet:
		if !s.requireAdmin(w, r) {
			return
		}
		orders, err := s.listOrders(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) listOrders(r *http.Request) ([]models.Order, error) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" && to == "" {
		return services.GetOrders(r.Context())
	}
	fromMS, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return nil, badParam("from")
	}
	toMS := time.Now().UnixMilli()
	if to != "" {
		if toMS, err = strconv.ParseInt(to, 10, 64); err != nil {
			return nil, badParam("to")
		}
	}
	return services.GetOrdersInRange(r.Context(), fromMS, toMS)
}

// handleOrderByID routes /api/orders/{id}, /api/orders/{id}/status,
// /api/orders/{id}/payment and /api/orders/delete.
func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/orders/")

	if rest == "delete" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.requireAdmin(w, r) {
			return
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		if err := services.DeleteOrders(r.Context(), body.IDs, s.sync); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": len(body.IDs)})
		return
	}

	id, action := splitAction(rest)
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if !s.requireAdmin(w, r) {
			return
		}
		order, err := services.GetOrder(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	case "status":
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		if !s.requireAdmin(w, r) {
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		order, err := services.UpdateOrderStatus(r.Context(), id, body.Status, s.sync)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	case "payment":
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		if !s.requireAdmin(w, r) {
			return
		}
		var body struct {
			IsPaid bool `json:"isPaid"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		order, err := services.UpdateOrderPayment(r.Context(), id, body.IsPaid, s.sync)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := services.ListMenuItems(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		if !s.requireAdmin(w, r) {
			return
		}
		var in models.MenuItem
		if !s.decode(w, r, &in) {
			return
		}
		item, err := services.AddMenuItem(r.Context(), in)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMenuByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitAction(strings.TrimPrefix(r.URL.Path, "/api/menu/"))
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			item, err := services.GetMenuItem(r.Context(), id)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodPut:
			if !s.requireAdmin(w, r) {
				return
			}
			var in models.MenuItem
			if !s.decode(w, r, &in) {
				return
			}
			in.ID = id
			item, err := services.UpdateMenuItem(r.Context(), in)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodDelete:
			if !s.requireAdmin(w, r) {
				return
			}
			if err := services.DeleteMenuItem(r.Context(), id); err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
		default:
			methodNotAllowed(w)
		}
	case "reset":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.requireAdmin(w, r) {
			return
		}
		if err := services.ResetItemStats(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"reset": id})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		colors, err := services.AllCategoryColors(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, colors)
	case http.MethodPut:
		if !s.requireAdmin(w, r) {
			return
		}
		var in models.CategoryColor
		if !s.decode(w, r, &in) {
			return
		}
		if err := services.SetCategoryColor(r.Context(), in.Category, in.Color); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, in)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGCash(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := services.GetGCashSettings(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		if !s.requireAdmin(w, r) {
			return
		}
		var in models.GCashSettings
		if !s.decode(w, r, &in) {
			return
		}
		settings, err := services.UpdateGCashSettings(r.Context(), in)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAnnouncement(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := services.GetAnnouncement(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		if !s.requireAdmin(w, r) {
			return
		}
		var in models.AnnouncementSettings
		if !s.decode(w, r, &in) {
			return
		}
		settings, err := services.UpdateAnnouncement(r.Context(), in)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAutoExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		settings, err := services.GetAutoExportSettings(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var in models.AutoExportSettings
		if !s.decode(w, r, &in) {
			return
		}
		settings, err := services.UpdateAutoExportSettings(r.Context(), in)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		methodNotAllowed(w)
	}
}

// handleExport runs a full history export synchronously so a failure is
// visible to the caller, unlike the best-effort per-order sync.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}
	if s.exporter == nil {
		s.writeError(w, &services.ValidationError{Msg: "spreadsheet sync is not configured"})
		return
	}
	orders, err := services.GetOrders(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.exporter.ExportOrders(r.Context(), orders); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"exported": len(orders)})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}
	if s.provider != nil {
		s.provider.Refresh(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.adminPassword == "" || r.Header.Get("X-Admin-Password") != s.adminPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return false
	}
	return true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		stock      *services.StockError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func badParam(name string) error {
	return &services.ValidationError{Msg: "invalid " + name + " parameter"}
}

// splitAction splits "id/action" path remainders.
func splitAction(rest string) (id, action string) {
	rest = strings.TrimSuffix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}

// Serve runs the API on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
