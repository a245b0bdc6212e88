package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/avelezdev/geolayers/internal/cluster"
	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/layers"
	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/realtime"
	"github.com/avelezdev/geolayers/internal/refresh"
	"github.com/avelezdev/geolayers/internal/spatial"
)

type fakeFetcher struct{}

func (fakeFetcher) Fetch(context.Context, string, model.FilterSet) ([]byte, error) {
	return []byte(`[]`), nil
}

type fakeSubmitter struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, _ string, body io.Reader) ([]byte, error) {
	b, _ := io.ReadAll(body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(b))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"id":7}`), nil
}

type fakePublisher struct {
	mu  sync.Mutex
	evs []realtime.ChangeEvent
}

func (f *fakePublisher) Publish(ev realtime.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evs = append(f.evs, ev)
}

type testEnv struct {
	srv       *httptest.Server
	mgr       *layers.Manager
	spatial   *spatial.Index
	submitter *fakeSubmitter
	publisher *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{}
	logger := slog.Default()

	be, err := layers.NewBackend("noop", cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	mgr := layers.New(logger, be)
	idx := spatial.NewIndex(logger)
	mgr.SetFeatureSink(idx)

	for _, lc := range []model.LayerConfig{
		{ID: "people", Name: "People", SourceID: "people-src", Geometry: model.GeometryCircle, Category: model.CategoryPeople, Visible: true, Children: []string{"people-heatmap"}},
		{ID: "people-heatmap", Name: "Density", SourceID: "people-src", Geometry: model.GeometryHeatmap, Category: model.CategoryPeople, Visible: true},
		{ID: "places", Name: "Places", SourceID: "places-src", Geometry: model.GeometryFill, Category: model.CategoryPlaces, Visible: false},
	} {
		if err := mgr.RegisterLayer(lc); err != nil {
			t.Fatalf("RegisterLayer %s: %v", lc.ID, err)
		}
	}

	ref := refresh.New(logger, mgr, fakeFetcher{}, nil, cfg)
	sub := &fakeSubmitter{}
	pub := &fakePublisher{}

	h := NewRouter(cfg, logger, Deps{
		Manager:   mgr,
		Refresher: ref,
		Spatial:   idx,
		Clusterer: cluster.New(3, 9),
		Upstream:  sub,
		Publisher: pub,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, mgr: mgr, spatial: idx, submitter: sub, publisher: pub}
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestListLayers(t *testing.T) {
	env := newTestEnv(t)

	resp, body := do(t, http.MethodGet, env.srv.URL+"/api/layers", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var out struct {
		Layers  []layers.LayerView `json:"layers"`
		Loading []string           `json:"loading"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Layers) != 3 {
		t.Fatalf("layers=%d want 3", len(out.Layers))
	}
}

func TestRegisterLayer_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := do(t, http.MethodPost, env.srv.URL+"/api/layers",
		`{"id":"assets","name":"Assets","sourceId":"assets-src","geometry":"circle","category":"assets","visible":true}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d want 201", resp.StatusCode)
	}

	resp, body := do(t, http.MethodPost, env.srv.URL+"/api/layers",
		`{"id":"broken","sourceId":"s","geometry":"triangle","category":"assets"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s want 400", resp.StatusCode, body)
	}
}

func TestSetVisibility_CascadesToChildren(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := do(t, http.MethodPut, env.srv.URL+"/api/layers/people/visibility", `{"visible":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	if env.mgr.Visible("people") || env.mgr.Visible("people-heatmap") {
		t.Fatalf("hiding the parent must hide declared children")
	}

	resp, _ = do(t, http.MethodPut, env.srv.URL+"/api/layers/ghost/visibility", `{"visible":true}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPut, env.srv.URL+"/api/layers/people/visibility", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for missing visible", resp.StatusCode)
	}
}

func TestSetOpacity(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := do(t, http.MethodPut, env.srv.URL+"/api/layers/people/opacity", `{"opacity":0.4}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	if cfg, _ := env.mgr.Config("people"); cfg.Opacity != 0.4 {
		t.Fatalf("opacity=%v want 0.4", cfg.Opacity)
	}

	resp, _ = do(t, http.MethodPut, env.srv.URL+"/api/layers/people/opacity", `{"opacity":1.5}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for out-of-range opacity", resp.StatusCode)
	}
}

func TestLayerData(t *testing.T) {
	env := newTestEnv(t)
	env.mgr.UpdateLayerData("people", model.FeatureCollection{Features: []model.Feature{
		{Type: "Feature", ID: int64(1), Geometry: model.NewPoint(-76.8, 18.01), Properties: map[string]any{}},
	}})

	resp, body := do(t, http.MethodGet, env.srv.URL+"/api/layers/people/data", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var fc model.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d want 1", len(fc.Features))
	}

	resp, _ = do(t, http.MethodGet, env.srv.URL+"/api/layers/ghost/data", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}

func TestLayerFeatures_BBoxQuery(t *testing.T) {
	env := newTestEnv(t)
	env.mgr.UpdateLayerData("people", model.FeatureCollection{Features: []model.Feature{
		{Type: "Feature", ID: int64(1), Geometry: model.NewPoint(-76.80, 18.01), Properties: map[string]any{}},
		{Type: "Feature", ID: int64(2), Geometry: model.NewPoint(-77.92, 18.47), Properties: map[string]any{}},
	}})

	resp, body := do(t, http.MethodGet, env.srv.URL+"/api/layers/people/features?bbox=-77.0,17.9,-76.5,18.1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var fc model.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d want 1", len(fc.Features))
	}

	resp, _ = do(t, http.MethodGet, env.srv.URL+"/api/layers/people/features", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for missing bbox", resp.StatusCode)
	}
}

func TestLayerClusters(t *testing.T) {
	env := newTestEnv(t)
	env.mgr.UpdateLayerData("people", model.FeatureCollection{Features: []model.Feature{
		{Type: "Feature", ID: int64(1), Geometry: model.NewPoint(-76.8000, 18.0100), Properties: map[string]any{}},
		{Type: "Feature", ID: int64(2), Geometry: model.NewPoint(-76.8001, 18.0101), Properties: map[string]any{}},
	}})

	resp, body := do(t, http.MethodGet, env.srv.URL+"/api/layers/people/clusters?zoom=2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var fc model.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("clusters=%d want 1", len(fc.Features))
	}

	resp, _ = do(t, http.MethodGet, env.srv.URL+"/api/layers/people/clusters", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for missing zoom", resp.StatusCode)
	}
}

func TestCombinedFeatures_MergesVisibleLayers(t *testing.T) {
	env := newTestEnv(t)
	// people and people-heatmap share a source, so the same ids land in both
	shared := model.FeatureCollection{Features: []model.Feature{
		{Type: "Feature", ID: int64(1), Geometry: model.NewPoint(-76.80, 18.01), Properties: map[string]any{}},
		{Type: "Feature", ID: int64(2), Geometry: model.NewPoint(-77.92, 18.47), Properties: map[string]any{}},
	}}
	env.mgr.UpdateLayerData("people", shared)
	env.mgr.UpdateLayerData("people-heatmap", shared)
	env.mgr.UpdateLayerData("places", model.FeatureCollection{Features: []model.Feature{
		{Type: "Feature", ID: int64(3), Geometry: model.NewPoint(-76.95, 17.99), Properties: map[string]any{}},
	}})

	resp, body := do(t, http.MethodGet, env.srv.URL+"/api/features", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var fc model.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// two unique ids from the people layers; the hidden places layer stays out
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d want 2: %s", len(fc.Features), body)
	}
}

func TestFilters_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := do(t, http.MethodPut, env.srv.URL+"/api/filters",
		`{"startDate":"2024-07-01","parishId":"p-03"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d want 202", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, env.srv.URL+"/api/filters", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var f model.FilterSet
	if err := json.Unmarshal(body, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.StartDate != "2024-07-01" || f.ParishID != "p-03" {
		t.Fatalf("filters=%+v", f)
	}

	resp, _ = do(t, http.MethodPut, env.srv.URL+"/api/filters",
		`{"startDate":"2024-07-01","endDate":"2024-06-01"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for inverted date range", resp.StatusCode)
	}
}

func TestTriggerRefresh(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := do(t, http.MethodPost, env.srv.URL+"/api/refresh", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d want 202", resp.StatusCode)
	}
}

func TestSubmitFieldReport(t *testing.T) {
	env := newTestEnv(t)

	resp, body := do(t, http.MethodPost, env.srv.URL+"/api/field-reports",
		`{"category":"assets","note":"bridge out","latitude":"18.01","longitude":"-76.80"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if len(env.submitter.bodies) != 1 || !strings.Contains(env.submitter.bodies[0], "bridge out") {
		t.Fatalf("upstream should receive the report body")
	}

	env.publisher.mu.Lock()
	evs := append([]realtime.ChangeEvent(nil), env.publisher.evs...)
	env.publisher.mu.Unlock()
	if len(evs) != 1 || evs[0].Category != model.CategoryAssets || evs[0].Op != "insert" {
		t.Fatalf("published=%+v", evs)
	}

	resp, _ = do(t, http.MethodPost, env.srv.URL+"/api/field-reports", `{"category":"vehicles"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for unknown category", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := do(t, http.MethodGet, env.srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, env.srv.URL+"/readyz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, env.srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics=%d", resp.StatusCode)
	}
}
