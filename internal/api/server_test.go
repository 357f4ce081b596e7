package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggeimport/ggeimport/internal/config"
	"github.com/ggeimport/ggeimport/internal/connector"
	"github.com/ggeimport/ggeimport/internal/db"
	"github.com/ggeimport/ggeimport/internal/events"
	"github.com/ggeimport/ggeimport/internal/store"
)

type fixedStatus connector.Status

func (f fixedStatus) Status() connector.Status { return connector.Status(f) }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()
	st.MergeOccupant(1, store.String("Jansen"), true)
	st.MergeOccupant(2, store.String("Vreemdeling"), false)
	for _, l := range []store.Location{
		{ID: 10, OwnerID: store.Int64(1), X: store.Int64(1), Y: store.Int64(2), Region: store.RegionPtr(store.RegionGrass)},
		{ID: 11, OwnerID: store.Int64(1), X: store.Int64(3), Y: store.Int64(4), Region: store.RegionPtr(store.RegionIce)},
		{ID: 20, OwnerID: store.Int64(2)},
	} {
		_, err := st.MergeLocation(l)
		require.NoError(t, err)
	}
	return st
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestPing(t *testing.T) {
	s := NewServer(config.APIConfig{}, store.New())
	rec, body := get(t, s, "/api/public/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestInfo(t *testing.T) {
	s := NewServer(config.APIConfig{}, store.New())
	rec, body := get(t, s, "/api/public/info")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ggeimport", body["service"])
	host := body["host"].(map[string]interface{})
	assert.NotEmpty(t, host["arch"])
}

func TestLocationsFilters(t *testing.T) {
	s := NewServer(config.APIConfig{}, testStore(t))

	_, body := get(t, s, "/api/locations")
	assert.Equal(t, float64(3), body["total"])

	_, body = get(t, s, "/api/locations?owner=1")
	assert.Equal(t, float64(2), body["total"])

	_, body = get(t, s, "/api/locations?region=ijs")
	assert.Equal(t, float64(1), body["total"])

	rec, _ := get(t, s, "/api/locations?owner=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocationByID(t *testing.T) {
	s := NewServer(config.APIConfig{}, testStore(t))

	rec, body := get(t, s, "/api/locations/11")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ijs", body["region"])

	rec, _ = get(t, s, "/api/locations/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOccupantsAndExport(t *testing.T) {
	s := NewServer(config.APIConfig{}, testStore(t))

	_, body := get(t, s, "/api/occupants?allies=true")
	assert.Equal(t, float64(1), body["total"])

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Jansen_10", records[0]["name"])
	assert.Equal(t, "gras", records[0]["wereld"])
}

func TestStatus(t *testing.T) {
	s := NewServer(config.APIConfig{}, testStore(t))

	_, body := get(t, s, "/api/status")
	assert.Equal(t, float64(3), body["locations"])
	assert.Nil(t, body["import"])

	s.SetStatusSource(fixedStatus{Phase: events.PhaseCollecting, LoginConfirmed: true, StartedAt: time.Now()})
	_, body = get(t, s, "/api/status")
	imp := body["import"].(map[string]interface{})
	assert.Equal(t, "collecting", imp["phase"])
	assert.Equal(t, true, imp["login_confirmed"])
}

func TestImports(t *testing.T) {
	s := NewServer(config.APIConfig{}, testStore(t))

	rec, _ := get(t, s, "/api/imports")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	d, err := db.NewDatabase(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	defer d.Close()
	_, err = d.SaveSnapshot(context.Background(), db.ImportRun{LoginConfirmed: true}, testStore(t).Snapshot())
	require.NoError(t, err)

	s.SetDatabase(d)
	rec, body := get(t, s, "/api/imports?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["imports"], 1)
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(config.APIConfig{}, store.New())
	rec, _ := get(t, s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	assert.True(t, NewRateLimiter(0).Allow("a"))
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(5)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.Len())

	now = now.Add(2 * bucketIdle)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimitResponse(t *testing.T) {
	s := NewServer(config.APIConfig{RateLimitRPS: 1}, store.New())
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last, _ = get(t, s, "/api/public/ping")
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
}

func TestServeAndStop(t *testing.T) {
	s := NewServer(config.APIConfig{Port: 0}, store.New())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Listen(ctx))
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	resp, err := http.Get("http://" + s.Addr().String() + "/api/public/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
