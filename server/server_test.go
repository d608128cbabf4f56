package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
)

func sliceLoader(rows ...query.Row) Loader {
	return func(context.Context) (*pipeline.Pipeline[query.Row], error) {
		return pipeline.FromSlice(rows), nil
	}
}

var people = []query.Row{
	{"name", "age"},
	{"bob", "30"},
	{"amy", "25"},
	{"cat", "41"},
}

func newTestServer(t *testing.T, load Loader) *Server {
	t.Helper()
	s := New(Config{Host: "127.0.0.1"}, logger.NewNop())
	s.ApplyMiddleware(nil)
	s.RegisterDefaultEndpoints("rowquery")
	s.RegisterRows(load)
	return s
}

type rowsBody struct {
	Data [][]string `json:"data"`
	Meta Meta       `json:"meta"`
}

type errorBody struct {
	Error struct {
		Code    apperrors.ErrorCode `json:"code"`
		Message string              `json:"message"`
		Details map[string]any      `json:"details"`
	} `json:"error"`
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rr
}

func TestRowsHandler_Success(t *testing.T) {
	h := newTestServer(t, sliceLoader(people...)).Handler()

	tests := []struct {
		name   string
		target string
		want   [][]string
		meta   Meta
	}{
		{
			name:   "no parameters passes everything through",
			target: "/rows",
			want:   [][]string{{"name", "age"}, {"bob", "30"}, {"amy", "25"}, {"cat", "41"}},
			meta:   Meta{Count: 4, Offset: 0, Limit: -1},
		},
		{
			name:   "skip header and sort numeric column descending",
			target: "/rows?skip_header=true&sort=1:desc",
			want:   [][]string{{"cat", "41"}, {"bob", "30"}, {"amy", "25"}},
			meta:   Meta{Count: 3, Offset: 0, Limit: -1, Sort: []string{"1:desc"}},
		},
		{
			name:   "window over sorted rows",
			target: "/rows?skip_header=true&sort=0&offset=1&limit=1",
			want:   [][]string{{"bob", "30"}},
			meta:   Meta{Count: 1, Offset: 1, Limit: 1, Sort: []string{"0:asc"}},
		},
		{
			name:   "comma separated and repeated sort keys",
			target: "/rows?skip_header=true&sort=1:asc,0&sort=0:desc",
			want:   [][]string{{"amy", "25"}, {"bob", "30"}, {"cat", "41"}},
			meta:   Meta{Count: 3, Offset: 0, Limit: -1, Sort: []string{"1:asc", "0:asc", "0:desc"}},
		},
		{
			name:   "limit zero yields an empty array",
			target: "/rows?limit=0",
			want:   [][]string{},
			meta:   Meta{Count: 0, Offset: 0, Limit: 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(t, h, tc.target)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if tc.meta.Count == 0 && !strings.Contains(rr.Body.String(), `"data":[]`) {
				t.Errorf("empty result should encode as [], got %s", rr.Body.String())
			}
			var body rowsBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if len(body.Data) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, body.Data)
			}
			for i := range tc.want {
				if strings.Join(body.Data[i], ",") != strings.Join(tc.want[i], ",") {
					t.Errorf("row %d: expected %v, got %v", i, tc.want[i], body.Data[i])
				}
			}
			if body.Meta.Count != tc.meta.Count || body.Meta.Offset != tc.meta.Offset || body.Meta.Limit != tc.meta.Limit {
				t.Errorf("expected meta %+v, got %+v", tc.meta, body.Meta)
			}
			if strings.Join(body.Meta.Sort, " ") != strings.Join(tc.meta.Sort, " ") {
				t.Errorf("expected sort %v, got %v", tc.meta.Sort, body.Meta.Sort)
			}
		})
	}
}

func TestRowsHandler_InvalidParameters(t *testing.T) {
	h := newTestServer(t, sliceLoader(people...)).Handler()

	tests := []struct {
		target  string
		message string
	}{
		{"/rows?offset=-1", "offset: must be at least 0"},
		{"/rows?offset=ten", "offset: must be an integer"},
		{"/rows?limit=-2", "limit: must be at least -1"},
		{"/rows?limit=abc", "limit: must be an integer"},
		{"/rows?skip_header=maybe", "skip_header: must be true or false"},
		{"/rows?sort=x:asc", `sort: "x:asc" must look like column[:asc|desc]`},
		{"/rows?sort=1:up", `sort: "1:up"`},
		{"/rows?sort=-1", `sort: "-1"`},
	}

	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			rr := get(t, h, tc.target)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var body errorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Error.Code != apperrors.ErrCodeInvalidInput {
				t.Errorf("expected INVALID_INPUT, got %s", body.Error.Code)
			}
			if !strings.Contains(body.Error.Message, tc.message) {
				t.Errorf("expected message containing %q, got %q", tc.message, body.Error.Message)
			}
		})
	}
}

func TestRowsHandler_InconsistentRow(t *testing.T) {
	h := newTestServer(t, sliceLoader(
		query.Row{"a", "1"},
		query.Row{"b"},
		query.Row{"c", "3"},
	)).Handler()

	rr := get(t, h, "/rows?sort=1")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Error.Code != apperrors.ErrCodeInconsistentRow {
		t.Errorf("expected INCONSISTENT_ROW, got %s", body.Error.Code)
	}
	if body.Error.Details["row_index"] != float64(1) || body.Error.Details["column"] != float64(1) {
		t.Errorf("unexpected details %v", body.Error.Details)
	}
}

func TestRowsHandler_LoaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing file", apperrors.NotFound("file", "rows.csv"), http.StatusNotFound},
		{"unreadable source", apperrors.SourceUnavailable("csv", nil), http.StatusServiceUnavailable},
		{"plain error", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			load := func(context.Context) (*pipeline.Pipeline[query.Row], error) { return nil, tc.err }
			rr := get(t, newTestServer(t, load).Handler(), "/rows")
			if rr.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestRowsHandler_ParametersValidatedBeforeLoading(t *testing.T) {
	loaded := false
	load := func(context.Context) (*pipeline.Pipeline[query.Row], error) {
		loaded = true
		return pipeline.FromSlice(people), nil
	}
	rr := get(t, newTestServer(t, load).Handler(), "/rows?limit=-5")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if loaded {
		t.Error("source should not be opened for an invalid request")
	}
}

func TestRowsHandler_LogsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug", "rowquery")
	s := New(Config{Host: "127.0.0.1"}, log)
	s.ApplyMiddleware(nil)
	s.RegisterRows(sliceLoader(people...), query.WithLogger(log))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rows?sort=0", http.NoBody)
	req.Header.Set("X-Request-Id", "req-42")
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var sawQuery bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if entry["component"] == "query" {
			sawQuery = true
			if entry["request_id"] != "req-42" {
				t.Errorf("query log should carry request id, got %v", entry)
			}
		}
	}
	if !sawQuery {
		t.Errorf("expected query logs, got %s", buf.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	up := observability.CheckerFunc(func(context.Context) observability.Health {
		return observability.Health{Name: "csv", Status: observability.HealthStatusUp}
	})
	down := observability.CheckerFunc(func(context.Context) observability.Health {
		return observability.Health{Name: "csv", Status: observability.HealthStatusDown, Message: "no such file"}
	})

	tests := []struct {
		name     string
		checkers []observability.HealthChecker
		status   int
		health   observability.HealthStatus
	}{
		{"no checkers", nil, http.StatusOK, observability.HealthStatusUp},
		{"all up", []observability.HealthChecker{up}, http.StatusOK, observability.HealthStatusUp},
		{"source down", []observability.HealthChecker{up, down}, http.StatusServiceUnavailable, observability.HealthStatusDown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(Config{}, nil)
			s.RegisterDefaultEndpoints("rowquery", tc.checkers...)
			rr := get(t, s.Handler(), "/health")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body observability.ServiceHealth
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Service != "rowquery" || body.Status != tc.health {
				t.Errorf("unexpected health %+v", body)
			}
			if len(body.Components) != len(tc.checkers) {
				t.Errorf("expected %d components, got %d", len(tc.checkers), len(body.Components))
			}
		})
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := New(Config{}, nil)
	s.RegisterDefaultEndpoints("rowquery")
	rr := get(t, s.Handler(), "/info")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Service string `json:"service"`
		Build   struct {
			Version string `json:"version"`
		} `json:"build"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Service != "rowquery" || body.Build.Version == "" || body.Uptime == "" {
		t.Errorf("unexpected info %+v", body)
	}
}

func TestRoutesOrdersSystemLast(t *testing.T) {
	s := newTestServer(t, sliceLoader())
	routes := s.Routes()
	if len(routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(routes))
	}
	got := []string{routes[0].Path, routes[1].Path, routes[2].Path}
	if strings.Join(got, " ") != "/rows /health /info" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t, sliceLoader(people...))
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		if err := s.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	}()

	resp, err := http.Get("http://" + s.Addr() + "/rows?limit=1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected request id header from middleware")
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8080 || cfg.ReadTimeout != 15 || cfg.WriteTimeout != 15 || cfg.IdleTimeout != 60 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.MaxConcurrentQueries != 8 || cfg.QueueTimeout != 500 || cfg.OpenAttempts != 3 {
		t.Errorf("unexpected query guard defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Addr())
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"port too large", Config{Port: 70000}, "port: must be at most 65535"},
		{"negative read timeout", Config{Port: 80, ReadTimeout: -1}, "read_timeout: must be at least 0"},
		{"negative concurrency", Config{Port: 80, MaxConcurrentQueries: -1}, "max_concurrent_queries: must be at least 0"},
		{"too many open attempts", Config{Port: 80, OpenAttempts: 11}, "open_attempts: must be at most 10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRowsHandler_RetriesUnavailableSource(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  int
		failWith  error
		wantCalls int
		status    int
	}{
		{"recovers", 3, 2, apperrors.SourceUnavailable("csv", nil), 3, http.StatusOK},
		{"gives up", 2, 5, apperrors.SourceUnavailable("csv", nil), 2, http.StatusServiceUnavailable},
		{"not retryable", 3, 5, apperrors.NotFound("file", "rows.csv"), 1, http.StatusNotFound},
		{"retry disabled", 0, 1, apperrors.SourceUnavailable("csv", nil), 1, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			load := func(context.Context) (*pipeline.Pipeline[query.Row], error) {
				calls++
				if calls <= tc.failures {
					return nil, tc.failWith
				}
				return pipeline.FromSlice(people), nil
			}
			s := New(Config{OpenAttempts: tc.attempts}, logger.NewNop())
			s.RegisterRows(load)

			rr := get(t, s.Handler(), "/rows")
			if rr.Code != tc.status {
				t.Errorf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if calls != tc.wantCalls {
				t.Errorf("expected %d source opens, got %d", tc.wantCalls, calls)
			}
		})
	}
}

func TestRowsHandler_BusyWhenSaturated(t *testing.T) {
	opened := make(chan struct{})
	release := make(chan struct{})
	load := func(context.Context) (*pipeline.Pipeline[query.Row], error) {
		close(opened)
		<-release
		return pipeline.FromSlice(people), nil
	}
	s := New(Config{MaxConcurrentQueries: 1}, logger.NewNop())
	s.RegisterRows(load)
	h := s.Handler()

	first := make(chan int, 1)
	go func() { first <- get(t, h, "/rows").Code }()
	<-opened

	rr := get(t, h, "/rows")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Error.Code != apperrors.ErrCodeBusy {
		t.Errorf("expected BUSY, got %s", body.Error.Code)
	}

	close(release)
	if code := <-first; code != http.StatusOK {
		t.Errorf("first request expected 200, got %d", code)
	}
}

type mapCache struct {
	entries map[string]CachedRows
	ttls    map[string]time.Duration
	err     error
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]CachedRows{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Load(_ context.Context, key string) (*CachedRows, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *mapCache) Save(_ context.Context, key string, val *CachedRows, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.entries[key] = *val
	m.ttls[key] = ttl
	return nil
}

func TestRowsHandler_ResultCache(t *testing.T) {
	loads := 0
	load := func(context.Context) (*pipeline.Pipeline[query.Row], error) {
		loads++
		return pipeline.FromSlice(people), nil
	}
	cache := newMapCache()
	s := New(Config{}, logger.NewNop())
	s.SetResultCache(cache, time.Minute)
	s.RegisterRows(load)
	h := s.Handler()

	tests := []struct {
		target string
		header string
		loads  int
	}{
		{"/rows?skip_header=true&sort=1", "MISS", 1},
		{"/rows?skip_header=true&sort=1:asc", "HIT", 1},
		{"/rows?skip_header=true&sort=1:desc", "MISS", 2},
		{"/rows?sort=1&skip_header=true&limit=-1", "HIT", 2},
	}
	for _, tc := range tests {
		rr := get(t, h, tc.target)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.target, rr.Code)
		}
		if got := rr.Header().Get(HeaderCache); got != tc.header {
			t.Errorf("%s: expected %s, got %q", tc.target, tc.header, got)
		}
		if loads != tc.loads {
			t.Errorf("%s: expected %d loads, got %d", tc.target, tc.loads, loads)
		}
		var body rowsBody
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid body: %v", err)
		}
		if len(body.Data) != 3 || body.Meta.Count != 3 {
			t.Errorf("%s: unexpected body %+v", tc.target, body)
		}
	}

	key := "sort=1:asc&offset=0&limit=-1&skip_header=true"
	if cache.ttls[key] != time.Minute {
		t.Errorf("expected entry %q saved for 1m, have %v", key, cache.ttls)
	}
}

func TestRowsHandler_ResultCacheFailsOpen(t *testing.T) {
	loads := 0
	load := func(context.Context) (*pipeline.Pipeline[query.Row], error) {
		loads++
		return pipeline.FromSlice(people), nil
	}
	cache := newMapCache()
	cache.err = errors.New("connection refused")
	s := New(Config{}, logger.NewNop())
	s.SetResultCache(cache, time.Minute)
	s.RegisterRows(load)

	for range 2 {
		if rr := get(t, s.Handler(), "/rows?limit=1"); rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	}
	if loads != 2 {
		t.Errorf("expected every request to load, got %d", loads)
	}
}

func TestRowsHandler_ErrorsAreNotCached(t *testing.T) {
	cache := newMapCache()
	s := New(Config{}, logger.NewNop())
	s.SetResultCache(cache, time.Minute)
	s.RegisterRows(sliceLoader(query.Row{"a"}, query.Row{"b", "c"}))

	if rr := get(t, s.Handler(), "/rows?sort=1"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if len(cache.entries) != 0 {
		t.Errorf("failed query should not be cached, have %v", cache.entries)
	}
}
