package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/auth"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/pipeline"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/query"
)

// RefreshLimiter meters cache-busting refreshes per tenant.
type RefreshLimiter interface {
	Allow(ctx context.Context, tenantID int64) (bool, error)
}

// Handler serves the widget and query API. Every route expects
// auth.Middleware.Authenticate in front of it; tenant and user always come
// from the token claims.
type Handler struct {
	registry *pipeline.Registry
	resolver pipeline.Resolver
	limiter  RefreshLimiter
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(registry *pipeline.Registry, resolver pipeline.Resolver, limiter RefreshLimiter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		resolver: resolver,
		limiter:  limiter,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	// Widgets
	router.HandleFunc("/api/dashboards/{dashboard}/widgets", h.ListWidgets).Methods("GET")
	router.HandleFunc("/api/dashboards/{dashboard}/widgets", h.AddWidget).Methods("POST")
	router.HandleFunc("/api/dashboards/{dashboard}/widgets/{id}", h.UpdateWidget).Methods("PATCH")
	router.HandleFunc("/api/dashboards/{dashboard}/widgets/{id}", h.DeleteWidget).Methods("DELETE")
	router.HandleFunc("/api/dashboards/{dashboard}/widgets/{id}/position", h.MoveWidget).Methods("PUT")
	router.HandleFunc("/api/dashboards/{dashboard}/widgets/{id}/size", h.ResizeWidget).Methods("PUT")
	router.HandleFunc("/api/dashboards/{dashboard}/refresh", h.Refresh).Methods("POST")

	// Ad-hoc queries
	router.HandleFunc("/api/query", h.RunQuery).Methods("POST")

	// Sign-out
	router.HandleFunc("/api/session", h.EndSession).Methods("DELETE")
}

type widgetsResponse struct {
	Scope   models.Scope    `json:"scope"`
	Widgets []models.Widget `json:"widgets"`
}

func (h *Handler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}
	scope := claims.Scope(mux.Vars(r)["dashboard"])

	widgets, err := h.registry.For(claims.UserID).FetchWidgets(r.Context(), scope.TenantID, scope.UserID, scope.Dashboard)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, widgetsResponse{Scope: scope, Widgets: nonNil(widgets)})
}

func (h *Handler) AddWidget(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}
	scope := claims.Scope(mux.Vars(r)["dashboard"])

	var def models.WidgetDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	widget, err := h.registry.For(claims.UserID).AddWidget(r.Context(), def, scope.TenantID, scope.UserID, scope.Dashboard)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, widget)
}

func (h *Handler) UpdateWidget(w http.ResponseWriter, r *http.Request) {
	p, ok := h.activePipeline(w, r)
	if !ok {
		return
	}

	var patch models.WidgetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if patch.Type != nil && !patch.Type.Valid() {
		http.Error(w, "Unknown widget type", http.StatusBadRequest)
		return
	}
	if patch.Span != nil && (*patch.Span < 0 || *patch.Span > 12) {
		http.Error(w, "span must be between 0 and 12", http.StatusBadRequest)
		return
	}

	widget, found := p.UpdateWidget(widgetID(r), patch)
	if !found {
		h.writeError(w, pipeline.ErrWidgetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (h *Handler) MoveWidget(w http.ResponseWriter, r *http.Request) {
	p, ok := h.activePipeline(w, r)
	if !ok {
		return
	}

	var pos models.Position
	if !h.decodeValid(w, r, &pos) {
		return
	}

	widget, found := p.MoveWidget(widgetID(r), pos)
	if !found {
		h.writeError(w, pipeline.ErrWidgetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (h *Handler) ResizeWidget(w http.ResponseWriter, r *http.Request) {
	p, ok := h.activePipeline(w, r)
	if !ok {
		return
	}

	var size models.Size
	if !h.decodeValid(w, r, &size) {
		return
	}

	widget, found := p.ResizeWidget(widgetID(r), size)
	if !found {
		h.writeError(w, pipeline.ErrWidgetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (h *Handler) DeleteWidget(w http.ResponseWriter, r *http.Request) {
	p, ok := h.activePipeline(w, r)
	if !ok {
		return
	}

	if err := p.DeleteWidget(r.Context(), widgetID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh drops the tenant's cached results and refetches the dashboard.
// It is metered per tenant; a limiter outage lets the refresh through.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	p, ok := h.activePipeline(w, r)
	if !ok {
		return
	}
	scope, _ := p.Scope()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), scope.TenantID)
		if err != nil {
			h.logger.Warn("refresh limiter unavailable", zap.Int64("tenant_id", scope.TenantID), zap.Error(err))
		} else if !allowed {
			http.Error(w, "Refresh rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	widgets, err := p.RefreshData(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, widgetsResponse{Scope: scope, Widgets: nonNil(widgets)})
}

type queryRequest struct {
	Query       string              `json:"query"`
	ChartType   models.WidgetType   `json:"chart_type,omitempty"`
	ChartConfig *models.ChartConfig `json:"chart_config,omitempty"`
}

// RunQuery resolves an ad-hoc query for the caller's scope, for chat
// previews before a widget is saved.
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.ChartType != "" && !req.ChartType.Valid() {
		http.Error(w, "Unknown chart type", http.StatusBadRequest)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), query.Request{
		Query:       req.Query,
		TenantID:    claims.TenantID,
		UserID:      claims.UserID,
		ChartType:   req.ChartType,
		ChartConfig: req.ChartConfig,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res.Rows == nil {
		res.Rows = []models.Row{}
		res.ChartData = []models.Row{}
	}
	writeJSON(w, http.StatusOK, res)
}

// EndSession drops the caller's widget state.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}
	h.registry.Drop(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// activePipeline returns the caller's pipeline when its active scope is the
// one named by the request.
func (h *Handler) activePipeline(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return nil, false
	}

	p := h.registry.For(claims.UserID)
	active, ok := p.Scope()
	if !ok {
		h.writeError(w, pipeline.ErrNoActiveScope)
		return nil, false
	}
	if active != claims.Scope(mux.Vars(r)["dashboard"]) {
		h.writeError(w, pipeline.ErrScopeConflict)
		return nil, false
	}
	return p, true
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

type statusCoder interface {
	HTTPStatus() int
}

func statusFor(err error) int {
	var execErr *query.ExecutionError
	var persistErr *pipeline.WidgetPersistError
	var listErr *pipeline.ListError
	var sc statusCoder

	switch {
	case errors.Is(err, pipeline.ErrInvalidWidget), errors.Is(err, query.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrWidgetNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrNoActiveScope), errors.Is(err, pipeline.ErrScopeConflict):
		return http.StatusConflict
	case errors.As(err, &execErr):
		if execErr.StatusCode == http.StatusBadRequest || execErr.StatusCode == http.StatusUnprocessableEntity {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case errors.As(err, &persistErr), errors.As(err, &listErr):
		return http.StatusBadGateway
	case errors.As(err, &sc):
		if sc.HTTPStatus() == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func claimsOrReject(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func widgetID(r *http.Request) models.WidgetID {
	return models.WidgetID(mux.Vars(r)["id"])
}

func nonNil(widgets []models.Widget) []models.Widget {
	if widgets == nil {
		return []models.Widget{}
	}
	return widgets
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
