package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/metrics"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/query"
)

const DefaultConcurrency = 8

// WidgetSource is the server side of widget definitions.
type WidgetSource interface {
	ListWidgets(ctx context.Context, scope models.Scope) ([]models.WidgetRecord, error)
	CreateWidget(ctx context.Context, scope models.Scope, rec models.WidgetRecord) (models.WidgetID, error)
	DeleteWidget(ctx context.Context, scope models.Scope, id models.WidgetID) error
}

// Resolver resolves widget queries. InvalidateTenant must leave the next
// Resolve for the tenant cache-cold, including over calls already in flight.
type Resolver interface {
	Resolve(ctx context.Context, req query.Request) (*query.Result, error)
	InvalidateTenant(tenantID int64) int
}

type Options struct {
	// Concurrency bounds per-fetch widget resolutions in flight.
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// Pipeline holds the widget list of one active (tenant, user, dashboard)
// scope and resolves widget data through a Resolver.
//
// Every FetchWidgets clears the list before its first network call, so no
// widget from a previous scope is observable while the new one loads. A fetch
// that finishes after a newer one has started does not commit its result.
type Pipeline struct {
	resolver    Resolver
	source      WidgetSource
	cache       *cache.TTLCache
	validate    *validator.Validate
	logger      *zap.Logger
	metrics     *metrics.Collector
	concurrency int

	mu         sync.RWMutex
	scope      models.Scope
	active     bool
	widgets    []models.Widget
	loading    bool
	generation uint64
	// added holds widgets confirmed while a fetch of the active scope was
	// loading; commit keeps them.
	added []models.Widget
}

func New(resolver Resolver, source WidgetSource, c *cache.TTLCache, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		resolver:    resolver,
		source:      source,
		cache:       c,
		validate:    validator.New(),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		concurrency: opts.Concurrency,
	}
}

// WidgetListKey is the cache key of a scope's widget list.
func WidgetListKey(scope models.Scope) string {
	return cache.Key(cache.NamespaceWidgets, scope.TenantID, scope.UserID, scope.Dashboard)
}

// Widgets returns a copy of the current widget list.
func (p *Pipeline) Widgets() []models.Widget {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Widget, len(p.widgets))
	copy(out, p.widgets)
	return out
}

func (p *Pipeline) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Scope returns the active scope and whether there is one.
func (p *Pipeline) Scope() (models.Scope, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scope, p.active
}

// Reset drops the widget list and the active scope.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.scope = models.Scope{}
	p.active = false
	p.widgets = nil
	p.added = nil
	p.loading = false
}

// FetchWidgets loads the widget definitions for a scope and resolves data
// for every widget with a query. A widget whose data fails keeps no chart
// data; only a failed widget list fails the call.
func (p *Pipeline) FetchWidgets(ctx context.Context, tenantID, userID int64, dashboard string) ([]models.Widget, error) {
	scope := models.Scope{TenantID: tenantID, UserID: userID, Dashboard: dashboard}
	gen := p.begin(scope)

	records, err := p.listWidgets(ctx, scope)
	if err != nil {
		p.abort(gen)
		return nil, &ListError{Scope: scope, Err: err}
	}

	widgets := make([]models.Widget, len(records))
	for i, rec := range records {
		widgets[i] = rec.ToWidget(scope)
	}
	p.resolveAll(ctx, scope, widgets)

	if !p.commit(gen, widgets) {
		p.logger.Debug("discarding superseded widget fetch",
			zap.Int64("tenant_id", tenantID),
			zap.String("dashboard", dashboard),
		)
	}
	return widgets, nil
}

// AddWidget persists def on the server and appends it to the list only after
// the server confirms and assigns an id.
func (p *Pipeline) AddWidget(ctx context.Context, def models.WidgetDefinition, tenantID, userID int64, dashboard string) (models.Widget, error) {
	if err := p.validate.Struct(def); err != nil {
		return models.Widget{}, fmt.Errorf("%w: %v", ErrInvalidWidget, err)
	}

	scope := models.Scope{TenantID: tenantID, UserID: userID, Dashboard: dashboard}
	rec := def.Record()

	id, err := p.source.CreateWidget(ctx, scope, rec)
	if err != nil {
		return models.Widget{}, &WidgetPersistError{Err: err}
	}
	p.cache.Delete(WidgetListKey(scope))

	rec.ID = id
	w := rec.ToWidget(scope)
	w.Config = def.Config
	if w.Query != "" && w.Config.ChartData == nil {
		p.resolveOne(ctx, scope, &w)
	}

	p.mu.Lock()
	if p.active && p.scope == scope {
		p.widgets = append(p.widgets, w)
		if p.loading {
			p.added = append(p.added, w)
		}
	}
	p.mu.Unlock()

	p.logger.Info("widget added",
		zap.String("widget_id", string(id)),
		zap.Int64("tenant_id", tenantID),
		zap.String("dashboard", dashboard),
	)
	return w, nil
}

// RemoveWidget drops a widget from the local list. Server-side deletion is
// the caller's job.
func (p *Pipeline) RemoveWidget(id models.WidgetID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.added {
		if p.added[i].ID == id {
			p.added = append(p.added[:i:i], p.added[i+1:]...)
			break
		}
	}
	for i := range p.widgets {
		if p.widgets[i].ID == id {
			p.widgets = append(p.widgets[:i:i], p.widgets[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteWidget deletes a widget of the active scope on the server, then
// removes it locally. The local list is untouched when the server fails.
func (p *Pipeline) DeleteWidget(ctx context.Context, id models.WidgetID) error {
	scope, ok := p.Scope()
	if !ok {
		return ErrNoActiveScope
	}
	if err := p.source.DeleteWidget(ctx, scope, id); err != nil {
		return fmt.Errorf("deleting widget %s: %w", id, err)
	}
	p.cache.Delete(WidgetListKey(scope))
	if !p.RemoveWidget(id) {
		p.logger.Debug("deleted widget was not in the local list", zap.String("widget_id", string(id)))
	}
	return nil
}

func (p *Pipeline) UpdateWidget(id models.WidgetID, patch models.WidgetPatch) (models.Widget, bool) {
	return p.mutate(id, func(w *models.Widget) {
		if patch.Title != nil {
			w.Title = *patch.Title
		}
		if patch.Type != nil {
			w.Type = *patch.Type
		}
		if patch.Query != nil {
			w.Query = *patch.Query
		}
		if patch.Span != nil {
			w.Span = *patch.Span
		}
		if patch.Config != nil {
			w.Config = *patch.Config
		}
	})
}

func (p *Pipeline) MoveWidget(id models.WidgetID, pos models.Position) (models.Widget, bool) {
	return p.mutate(id, func(w *models.Widget) { w.Position = pos })
}

func (p *Pipeline) ResizeWidget(id models.WidgetID, size models.Size) (models.Widget, bool) {
	return p.mutate(id, func(w *models.Widget) { w.Size = size })
}

// RefreshData drops the active scope's widget list entry and every cached
// query of its tenant, then fetches again. The fetch is guaranteed cache-cold.
func (p *Pipeline) RefreshData(ctx context.Context) ([]models.Widget, error) {
	scope, ok := p.Scope()
	if !ok {
		return nil, ErrNoActiveScope
	}

	p.cache.Delete(WidgetListKey(scope))
	removed := p.resolver.InvalidateTenant(scope.TenantID)
	p.logger.Info("refreshing dashboard",
		zap.Int64("tenant_id", scope.TenantID),
		zap.String("dashboard", scope.Dashboard),
		zap.Int("invalidated", removed),
	)

	return p.FetchWidgets(ctx, scope.TenantID, scope.UserID, scope.Dashboard)
}

func (p *Pipeline) begin(scope models.Scope) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.scope = scope
	p.active = true
	p.widgets = nil
	p.added = nil
	p.loading = true
	return p.generation
}

// commit installs widgets plus any widget confirmed during the fetch that
// the fetched list does not already carry. It reports false when a newer
// fetch or a Reset has superseded gen.
func (p *Pipeline) commit(gen uint64, widgets []models.Widget) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		return false
	}
	if len(p.added) > 0 {
		seen := make(map[models.WidgetID]bool, len(widgets))
		for _, w := range widgets {
			seen[w.ID] = true
		}
		for _, w := range p.added {
			if !seen[w.ID] {
				widgets = append(widgets, w)
			}
		}
		// the list cached by this fetch may predate those widgets
		p.cache.Delete(WidgetListKey(p.scope))
	}
	p.widgets = widgets
	p.added = nil
	p.loading = false
	return true
}

func (p *Pipeline) abort(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen == p.generation {
		p.widgets = p.added
		p.added = nil
		p.loading = false
	}
}

func (p *Pipeline) mutate(id models.WidgetID, fn func(*models.Widget)) (models.Widget, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.widgets {
		if p.widgets[i].ID == id {
			updated := p.widgets[i]
			fn(&updated)
			next := make([]models.Widget, len(p.widgets))
			copy(next, p.widgets)
			next[i] = updated
			p.widgets = next
			return updated, true
		}
	}
	return models.Widget{}, false
}

func (p *Pipeline) listWidgets(ctx context.Context, scope models.Scope) ([]models.WidgetRecord, error) {
	key := WidgetListKey(scope)
	if recs, ok := cache.GetJSON[[]models.WidgetRecord](p.cache, key); ok {
		return recs, nil
	}

	recs, err := p.source.ListWidgets(ctx, scope)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, recs)
	return recs, nil
}

func (p *Pipeline) resolveAll(ctx context.Context, scope models.Scope, widgets []models.Widget) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i := range widgets {
		if widgets[i].Query == "" {
			continue
		}
		g.Go(func() error {
			p.resolveOne(ctx, scope, &widgets[i])
			return nil
		})
	}
	_ = g.Wait()
}

// resolveOne attaches chart data to w. Failures are logged and leave w
// without chart data.
func (p *Pipeline) resolveOne(ctx context.Context, scope models.Scope, w *models.Widget) {
	res, err := p.resolver.Resolve(ctx, query.Request{
		Query:       w.Query,
		TenantID:    scope.TenantID,
		UserID:      scope.UserID,
		ChartType:   w.Type,
		ChartConfig: w.Config.ChartConfig,
	})
	if err != nil {
		p.metrics.WidgetFailed()
		p.logger.Warn("widget data unavailable",
			zap.Int64("tenant_id", scope.TenantID),
			zap.String("dashboard", scope.Dashboard),
			zap.Error(&WidgetFetchError{WidgetID: w.ID, Err: err}),
		)
		return
	}
	w.Config.ChartData = res.ChartData
}
