package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/auth"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
)

const secret = "admin-secret"

func newRouter(t *testing.T) (*mux.Router, *cache.TTLCache) {
	t.Helper()
	c := cache.New(cache.Options{TTL: time.Minute})
	t.Cleanup(c.Close)

	router := mux.NewRouter()
	NewAdminHandler(c, secret, nil).RegisterRoutes(router)
	return router, c
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetCacheStats(t *testing.T) {
	router, c := newRouter(t)
	c.Set("sql:1:1:a", 1)
	c.Get("sql:1:1:a")
	c.Get("sql:1:1:b")

	rec := serve(router, http.MethodGet, "/admin/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["entries"])
	assert.Equal(t, float64(1), body["hits"])
	assert.Equal(t, float64(1), body["misses"])
	assert.Equal(t, float64(60), body["ttl_seconds"])
	assert.Equal(t, 0.5, body["hit_ratio"])
}

func TestInvalidateCacheByPrefix(t *testing.T) {
	router, c := newRouter(t)
	c.Set("sql:1:1:a", 1)
	c.Set("sql:1:2:b", 1)
	c.Set("sql:10:1:a", 1)

	rec := serve(router, http.MethodDelete, "/admin/cache?prefix=sql:1:", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"target":"sql:1:","removed":2}`, rec.Body.String())
	assert.Equal(t, []string{"sql:10:1:a"}, c.Keys())
}

func TestInvalidateCacheByTenant(t *testing.T) {
	router, c := newRouter(t)
	c.Set("sql:7:1:a", 1)
	c.Set("widgets:7:1:sales", 1)

	rec := serve(router, http.MethodDelete, "/admin/cache?tenant_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"widgets:7:1:sales"}, c.Keys())
}

func TestInvalidateCacheRequiresTarget(t *testing.T) {
	router, _ := newRouter(t)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodDelete, "/admin/cache", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodDelete, "/admin/cache?tenant_id=x", "").Code)
}

func TestListCacheKeys(t *testing.T) {
	router, c := newRouter(t)
	c.Set("sql:1:1:b", 1)
	c.Set("sql:1:1:a", 1)
	c.Set("widgets:1:1:sales", 1)

	rec := serve(router, http.MethodGet, "/admin/cache/keys?prefix=sql:", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keys":["sql:1:1:a","sql:1:1:b"]}`, rec.Body.String())
}

func TestCleanupCache(t *testing.T) {
	router, _ := newRouter(t)

	rec := serve(router, http.MethodPost, "/admin/cache/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":0}`, rec.Body.String())
}

func TestIssueToken(t *testing.T) {
	router, _ := newRouter(t)

	rec := serve(router, http.MethodPost, "/admin/tokens", `{"tenant_id":3,"user_id":8,"ttl":"1h"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	claims, err := auth.ValidateToken(body.Token, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.TenantID)
	assert.Equal(t, int64(8), claims.UserID)
	assert.False(t, claims.Admin)
}

func TestIssueTokenValidation(t *testing.T) {
	router, _ := newRouter(t)

	for _, body := range []string{`{`, `{"tenant_id":3}`, `{"tenant_id":3,"user_id":1,"ttl":"soon"}`} {
		rec := serve(router, http.MethodPost, "/admin/tokens", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
