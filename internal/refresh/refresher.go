// Package refresh drives the data refresh cycle: on every filter or
// visibility change each visible layer's endpoint is re-fetched, transformed
// to GeoJSON and pushed into the layer manager.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	cacheiface "github.com/avelezdev/geolayers/internal/cache"
	"github.com/avelezdev/geolayers/internal/cache/keys"
	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/geojson"
	"github.com/avelezdev/geolayers/internal/layers"
	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/observability"
	"github.com/avelezdev/geolayers/internal/upstream"
)

type Refresher struct {
	logger     *slog.Logger
	mgr        *layers.Manager
	fetcher    upstream.Interface
	store      cacheiface.Interface // nil when caching is disabled
	ttlDefault time.Duration
	ttlMap     map[string]time.Duration
	maxWorkers int
	queueSize  int

	// gen increments on every filter change; a fetch result is applied only
	// if the generation it started under is still current. This closes the
	// stale-overwrite window of the original design.
	gen atomic.Uint64

	mu       sync.Mutex
	filters  model.FilterSet
	loading  map[string]bool
	lastKeys map[string]string

	trigger chan string
}

func New(logger *slog.Logger, mgr *layers.Manager, fetcher upstream.Interface, store cacheiface.Interface, cfg config.Config) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.RefreshMaxWorkers
	if workers <= 0 {
		workers = 4
	}
	queue := cfg.RefreshQueue
	if queue <= 0 {
		queue = 16
	}
	return &Refresher{
		logger:     logger,
		mgr:        mgr,
		fetcher:    fetcher,
		store:      store,
		ttlDefault: cfg.CacheTTLDefault,
		ttlMap:     cfg.CacheTTLOvr,
		maxWorkers: workers,
		queueSize:  queue,
		loading:    map[string]bool{},
		lastKeys:   map[string]string{},
		trigger:    make(chan string, 8),
	}
}

// Run processes refresh triggers until the context ends. Rounds run
// sequentially; triggers arriving mid-round queue up and coalesce.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case source := <-r.trigger:
			r.refreshRound(ctx, source)
		}
	}
}

// SetFilters replaces the active filter snapshot and schedules a new round.
func (r *Refresher) SetFilters(f model.FilterSet) {
	r.mu.Lock()
	r.filters = f
	r.mu.Unlock()
	r.gen.Add(1)
	r.Trigger("filter_change")
}

func (r *Refresher) Filters() model.FilterSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filters
}

// Trigger schedules a refresh round. Non-blocking: when a round is already
// queued the new trigger coalesces into it.
func (r *Refresher) Trigger(source string) {
	select {
	case r.trigger <- source:
	default:
	}
}

// InvalidateCategory drops cached payloads for every layer fed by the
// category and schedules a full reload. Called by the realtime consumer; no
// delta merging, each notification reloads the category wholesale.
func (r *Refresher) InvalidateCategory(cat model.Category) {
	ids := r.mgr.LayersForCategory(cat)

	r.mu.Lock()
	var stale []string
	for _, id := range ids {
		if k, ok := r.lastKeys[id]; ok {
			stale = append(stale, k)
		}
	}
	r.mu.Unlock()

	if r.store != nil && len(stale) > 0 {
		if err := r.store.Del(stale...); err != nil {
			r.logger.Warn("cache invalidation failed", "category", cat, "keys", len(stale), "err", err)
		}
	}
	r.Trigger("realtime")
}

// Loading returns the ids of layers with an in-flight fetch, sorted for
// stable output.
func (r *Refresher) Loading() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.loading))
	for id, v := range r.loading {
		if v {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Refresher) setLoading(id string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v {
		r.loading[id] = true
	} else {
		delete(r.loading, id)
	}
}

func (r *Refresher) rememberKey(id, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastKeys[id] = key
}

func (r *Refresher) ttlFor(layerID string) time.Duration {
	if d, ok := r.ttlMap[layerID]; ok {
		return d
	}
	return r.ttlDefault
}

func (r *Refresher) refreshRound(ctx context.Context, source string) {
	start := time.Now()
	cur := r.gen.Load()
	filters := r.Filters()
	visible := r.mgr.VisibleLayers()

	observability.IncRefreshRound(source)
	if len(visible) == 0 {
		return
	}

	jobs := make(chan model.LayerConfig, r.queueSize)
	var wg sync.WaitGroup
	wg.Add(r.maxWorkers)

	for range r.maxWorkers {
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				r.refreshLayer(ctx, cfg, filters, cur)
			}
		}()
	}

	for _, cfg := range visible {
		select {
		case jobs <- cfg:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()

	observability.ObserveRefreshRound(time.Since(start).Seconds())
	r.logger.Info("refresh round done",
		"source", source, "layers", len(visible), "dur", time.Since(start).String())
}

func (r *Refresher) refreshLayer(ctx context.Context, cfg model.LayerConfig, filters model.FilterSet, gen uint64) {
	r.setLoading(cfg.ID, true)
	defer r.setLoading(cfg.ID, false)

	key := keys.Key(cfg.ID, filters)
	r.rememberKey(cfg.ID, key)

	if r.store != nil {
		if buf, ok, err := r.store.Get(key); err != nil {
			r.logger.Warn("cache get failed, falling through to fetch", "layer", cfg.ID, "err", err)
		} else if ok {
			var fc model.FeatureCollection
			if err := json.Unmarshal(buf, &fc); err == nil {
				r.apply(cfg.ID, fc, gen)
				return
			}
			r.logger.Warn("cached payload unreadable, refetching", "layer", cfg.ID)
		}
	}

	fc, err := r.fetchAndTransform(ctx, cfg, filters)
	if err != nil {
		observability.IncRefreshLayerError(cfg.ID)
		r.logger.Error("layer refresh failed", "layer", cfg.ID, "err", err)
		return
	}

	if r.store != nil {
		if buf, err := json.Marshal(fc); err == nil {
			if err := r.store.Set(key, buf, r.ttlFor(cfg.ID)); err != nil {
				r.logger.Warn("cache fill failed", "layer", cfg.ID, "err", err)
			}
		}
	}

	r.apply(cfg.ID, fc, gen)
}

func (r *Refresher) fetchAndTransform(ctx context.Context, cfg model.LayerConfig, filters model.FilterSet) (model.FeatureCollection, error) {
	body, err := r.fetcher.Fetch(ctx, cfg.EndpointPath(), filters)
	if err != nil {
		return model.FeatureCollection{}, fmt.Errorf("fetch: %w", err)
	}
	res, err := geojson.Transform(cfg.Category, body)
	if err != nil {
		return model.FeatureCollection{}, fmt.Errorf("transform: %w", err)
	}
	if res.Skipped > 0 {
		observability.AddTransformSkipped(string(cfg.Category), res.Skipped)
		r.logger.Debug("records excluded for malformed coordinates",
			"layer", cfg.ID, "skipped", res.Skipped)
	}
	return res.Collection, nil
}

// apply pushes data into the manager unless a newer filter generation
// superseded this round.
func (r *Refresher) apply(layerID string, fc model.FeatureCollection, gen uint64) {
	if r.gen.Load() != gen {
		observability.IncStaleDrop(layerID)
		r.logger.Debug("discarding stale fetch result", "layer", layerID)
		return
	}
	r.mgr.UpdateLayerData(layerID, fc)
}
