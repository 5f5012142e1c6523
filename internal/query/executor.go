package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/metrics"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

// Source runs a query remotely and returns the raw result, either a row
// array or a {columns, rows} object.
type Source interface {
	RunQuery(ctx context.Context, req models.QueryRequest) (json.RawMessage, error)
}

// Request is one resolution. ChartType and ChartConfig are optional; rows
// get a derived name field only when ChartType is a chart.
type Request struct {
	Query       string
	TenantID    int64
	UserID      int64
	ChartType   models.WidgetType
	ChartConfig *models.ChartConfig
}

type Result struct {
	Rows      []models.Row         `json:"rows"`
	Metadata  models.ChartMetadata `json:"metadata"`
	ChartData []models.Row         `json:"chartData"`
	Cached    bool                 `json:"cached"`
}

// Executor resolves scoped queries through the cache, calling the source
// only on a miss. Concurrent misses for the same key share one call.
//
// Each tenant has an epoch that InvalidateTenant advances. Calls are shared
// only within an epoch, and a call that outlives its epoch does not write
// its result to the cache.
type Executor struct {
	cache   *cache.TTLCache
	source  Source
	flight  singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	epochs map[int64]uint64
}

func NewExecutor(c *cache.TTLCache, source Source, logger *zap.Logger, m *metrics.Collector) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cache:   c,
		source:  source,
		logger:  logger,
		metrics: m,
		epochs:  make(map[int64]uint64),
	}
}

// InvalidateTenant drops every cached result of the tenant and detaches
// calls still in flight for it. The next Resolve for the tenant calls the
// source. Returns the number of removed cache entries.
func (e *Executor) InvalidateTenant(tenantID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.epochs[tenantID]++
	return e.cache.Invalidate(cache.TenantPrefix(cache.NamespaceSQL, tenantID))
}

func (e *Executor) epoch(tenantID int64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epochs[tenantID]
}

// store caches raw unless the tenant was invalidated since epoch.
func (e *Executor) store(key string, tenantID int64, epoch uint64, raw json.RawMessage) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.epochs[tenantID] != epoch {
		return false
	}
	e.cache.Set(key, raw)
	return true
}

// Resolve returns the rows for req with inferred metadata and, for charts,
// render-ready rows. Remote failures are returned as *ExecutionError.
func (e *Executor) Resolve(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	key := CacheKey(req.Query, req.TenantID, req.UserID)
	rows, cached, err := e.load(ctx, key, req)
	if err != nil {
		return nil, err
	}
	return buildResult(rows, cached, req), nil
}

func (e *Executor) load(ctx context.Context, key string, req Request) ([]models.Row, bool, error) {
	if raw, ok := e.cache.Get(key); ok {
		rows, err := DecodeRows(raw)
		if err == nil {
			e.metrics.QueryExecuted("hit", 0)
			return rows, true, nil
		}
		e.logger.Warn("discarding undecodable cached result", zap.String("key", key), zap.Error(err))
		e.cache.Delete(key)
	}

	epoch := e.epoch(req.TenantID)
	flightKey := key + "#" + strconv.FormatUint(epoch, 10)
	v, err, shared := e.flight.Do(flightKey, func() (any, error) {
		return e.fetch(ctx, key, epoch, req)
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		e.logger.Debug("query result shared with concurrent caller", zap.Int64("tenant_id", req.TenantID))
	}
	return v.([]models.Row), false, nil
}

func (e *Executor) fetch(ctx context.Context, key string, epoch uint64, req Request) ([]models.Row, error) {
	start := time.Now()
	raw, err := e.source.RunQuery(ctx, models.QueryRequest{
		Query:    req.Query,
		TenantID: req.TenantID,
		UserID:   req.UserID,
	})
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.QueryExecuted("error", elapsed)
		return nil, newExecutionError(req.Query, req.TenantID, err)
	}

	rows, err := DecodeRows(raw)
	if err != nil {
		e.metrics.QueryExecuted("error", elapsed)
		return nil, newExecutionError(req.Query, req.TenantID, fmt.Errorf("reading result: %w", err))
	}

	if !e.store(key, req.TenantID, epoch, raw) {
		e.logger.Debug("tenant invalidated during query, result not cached", zap.Int64("tenant_id", req.TenantID))
	}
	e.metrics.QueryExecuted("miss", elapsed)
	e.logger.Debug("query executed",
		zap.Int64("tenant_id", req.TenantID),
		zap.Int64("user_id", req.UserID),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", elapsed),
	)
	return rows, nil
}

func buildResult(rows []models.Row, cached bool, req Request) *Result {
	meta := InferMetadata(rows)
	meta.LabelKey, meta.DataKey = resolveKeys(meta, req.ChartConfig)

	res := &Result{
		Rows:      rows,
		Metadata:  meta,
		ChartData: rows,
		Cached:    cached,
	}
	if req.ChartType.IsChart() {
		res.ChartData = TransformRows(rows, meta.LabelKey)
	}
	return res
}
