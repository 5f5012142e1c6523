package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/query"
)

type fakeBackend struct {
	mu      sync.Mutex
	widgets map[models.Scope][]models.WidgetRecord
	logger  *zap.Logger
}

func newBackend(logger *zap.Logger) *fakeBackend {
	return &fakeBackend{
		widgets: make(map[models.Scope][]models.WidgetRecord),
		logger:  logger,
	}
}

func (b *fakeBackend) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(b.requestID)
	router.HandleFunc("/query", b.runQuery).Methods("POST")
	router.HandleFunc("/widgets/list", b.listWidgets).Methods("POST")
	router.HandleFunc("/widgets", b.createWidget).Methods("POST")
	router.HandleFunc("/widgets/{id}", b.deleteWidget).Methods("DELETE")
	return router
}

// seed gives tenant 1, user 1 a "main" dashboard covering both result shapes.
func (b *fakeBackend) seed() {
	scope := models.Scope{TenantID: 1, UserID: 1, Dashboard: "main"}
	b.widgets[scope] = []models.WidgetRecord{
		{ID: models.WidgetID(uuid.NewString()), Title: "Monthly revenue", Type: models.WidgetBar, Span: 6,
			SizeWidth: 6, SizeHeight: 4, SQLQuery: "SELECT month, revenue FROM monthly_revenue"},
		{ID: models.WidgetID(uuid.NewString()), Title: "Daily signups", Type: models.WidgetLine, Span: 6,
			PositionX: 6, SizeWidth: 6, SizeHeight: 4, SQLQuery: "SELECT day, signups FROM daily_signups"},
		{ID: models.WidgetID(uuid.NewString()), Title: "Revenue by region", Type: models.WidgetDoughnut, Span: 4,
			PositionY: 4, SizeWidth: 4, SizeHeight: 4, SQLQuery: "SELECT region, total FROM region_totals"},
		{ID: models.WidgetID(uuid.NewString()), Title: "Accounts", Type: models.WidgetTable, Span: 8,
			PositionX: 4, PositionY: 4, SizeWidth: 8, SizeHeight: 4, SQLQuery: "SELECT name, plan, seats FROM accounts"},
	}
}

func (b *fakeBackend) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		b.logger.Info("request", zap.String("id", id), zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

// runQuery answers from canned tables chosen by the table the query names.
// Tabular results use {columns, rows}; the rest use an array of objects.
func (b *fakeBackend) runQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	q := query.NormalizeQuery(req.Query)
	switch {
	case strings.Contains(q, "monthly_revenue"):
		writeJSON(w, http.StatusOK, map[string]any{
			"columns": []string{"month", "revenue"},
			"rows": [][]any{
				{1, 12000 + req.TenantID}, {2, 13500}, {3, 12800}, {4, 15100}, {5, 16400}, {6, 15900},
			},
		})
	case strings.Contains(q, "daily_signups"):
		writeJSON(w, http.StatusOK, []map[string]any{
			{"day": "2024-03-01T00:00:00Z", "signups": 14},
			{"day": "2024-03-02T00:00:00Z", "signups": 22},
			{"day": "2024-03-03T00:00:00Z", "signups": 19},
		})
	case strings.Contains(q, "region_totals"):
		writeJSON(w, http.StatusOK, []map[string]any{
			{"region": "EMEA", "total": 41000},
			{"region": "AMER", "total": 56000},
			{"region": "APAC", "total": 23000},
		})
	case strings.Contains(q, "accounts"):
		writeJSON(w, http.StatusOK, map[string]any{
			"columns": []string{"name", "plan", "seats"},
			"data": [][]any{
				{"Acme", "enterprise", 120},
				{"Globex", "team", 15},
			},
		})
	case strings.Contains(q, "fail"):
		http.Error(w, "simulated failure", http.StatusInternalServerError)
	default:
		http.Error(w, "relation does not exist", http.StatusBadRequest)
	}
}

func (b *fakeBackend) listWidgets(w http.ResponseWriter, r *http.Request) {
	var req models.WidgetListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	scope := models.Scope{TenantID: req.TenantID, UserID: req.UserID, Dashboard: req.Dashboard}

	b.mu.Lock()
	recs := append([]models.WidgetRecord{}, b.widgets[scope]...)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, recs)
}

func (b *fakeBackend) createWidget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.WidgetRecord
		TenantID  int64  `json:"tenant_id"`
		UserID    int64  `json:"user_id"`
		Dashboard string `json:"dashboard"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.TenantID <= 0 || req.Title == "" {
		http.Error(w, "tenant_id and title are required", http.StatusBadRequest)
		return
	}

	scope := models.Scope{TenantID: req.TenantID, UserID: req.UserID, Dashboard: req.Dashboard}
	rec := req.WidgetRecord
	rec.ID = models.WidgetID(uuid.NewString())

	b.mu.Lock()
	b.widgets[scope] = append(b.widgets[scope], rec)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"id": string(rec.ID)})
}

func (b *fakeBackend) deleteWidget(w http.ResponseWriter, r *http.Request) {
	id := models.WidgetID(mux.Vars(r)["id"])
	tenantID, _ := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	scope := models.Scope{TenantID: tenantID, UserID: userID, Dashboard: r.URL.Query().Get("dashboard")}

	b.mu.Lock()
	defer b.mu.Unlock()

	recs := b.widgets[scope]
	for i := range recs {
		if recs[i].ID == id {
			b.widgets[scope] = append(recs[:i:i], recs[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, "widget not found", http.StatusNotFound)
}
