package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/auth"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
)

// AdminHandler exposes cache inspection and maintenance plus token issuance.
// Every route expects auth.Middleware.RequireAdmin in front of it.
type AdminHandler struct {
	cache     *cache.TTLCache
	jwtSecret string
	logger    *zap.Logger
}

func NewAdminHandler(c *cache.TTLCache, jwtSecret string, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{cache: c, jwtSecret: jwtSecret, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	// Cache
	router.HandleFunc("/admin/cache/stats", h.GetCacheStats).Methods("GET")
	router.HandleFunc("/admin/cache/keys", h.ListCacheKeys).Methods("GET")
	router.HandleFunc("/admin/cache", h.InvalidateCache).Methods("DELETE")
	router.HandleFunc("/admin/cache/cleanup", h.CleanupCache).Methods("POST")

	// Tokens
	router.HandleFunc("/admin/tokens", h.IssueToken).Methods("POST")
}

type cacheStatsResponse struct {
	cache.Stats
	TTLSeconds float64 `json:"ttl_seconds"`
	HitRatio   float64 `json:"hit_ratio"`
}

func (h *AdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.Stats()

	resp := cacheStatsResponse{Stats: stats, TTLSeconds: stats.TTL.Seconds()}
	if total := stats.Hits + stats.Misses; total > 0 {
		resp.HitRatio = float64(stats.Hits) / float64(total)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) ListCacheKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	keys := []string{}
	for _, k := range h.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// InvalidateCache removes one key or every key under a prefix. With
// tenant_id instead of prefix it drops that tenant's query results.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("prefix")
	if tenant := r.URL.Query().Get("tenant_id"); tenant != "" {
		tenantID, err := strconv.ParseInt(tenant, 10, 64)
		if err != nil || tenantID <= 0 {
			http.Error(w, "Invalid tenant ID", http.StatusBadRequest)
			return
		}
		target = cache.TenantPrefix(cache.NamespaceSQL, tenantID)
	}
	if target == "" {
		http.Error(w, "prefix or tenant_id is required", http.StatusBadRequest)
		return
	}

	removed := h.cache.Invalidate(target)
	h.logger.Info("cache invalidated by admin", zap.String("target", target), zap.Int("removed", removed))

	writeJSON(w, http.StatusOK, map[string]any{"target": target, "removed": removed})
}

func (h *AdminHandler) CleanupCache(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.Cleanup()
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// IssueToken mints a bearer token for a tenant user, for operators and
// local development.
func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID int64  `json:"tenant_id"`
		UserID   int64  `json:"user_id"`
		Admin    bool   `json:"admin"`
		TTL      string `json:"ttl"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.TenantID <= 0 || req.UserID <= 0 {
		http.Error(w, "tenant_id and user_id are required", http.StatusBadRequest)
		return
	}

	ttl := auth.DefaultTokenTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			http.Error(w, "Invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	token, err := auth.GenerateToken(req.TenantID, req.UserID, req.Admin, h.jwtSecret, ttl)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("token issued",
		zap.Int64("tenant_id", req.TenantID),
		zap.Int64("user_id", req.UserID),
		zap.Bool("admin", req.Admin),
	)

	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
