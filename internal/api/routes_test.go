package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoname/internal/atlas"
	"geoname/internal/geoname"
	"geoname/internal/metrics"
	"geoname/internal/udf"
)

var nyc = atlas.City{
	GeoNameID:    5128581,
	Name:         "New York City",
	CountryCode:  "US",
	CountryName:  "United States",
	Admin1:       "New York",
	TimeZone:     "America/New_York",
	Continent:    "NA",
	CurrencyCode: "USD",
	Latitude:     40.7128,
	Longitude:    -74.0060,
}

type fixture struct {
	mux   *http.ServeMux
	calls *int32
	ds    *atlas.Dataset
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ds := atlas.NewDataset([]atlas.City{nyc})
	var calls int32
	fns := geoname.New(func() (geoname.Finder, error) {
		atomic.AddInt32(&calls, 1)
		return atlas.NewWithDataset(ds, atlas.DefaultMaxDistanceKm), nil
	})
	reg := udf.NewRegistry()
	require.NoError(t, fns.Register(reg))
	return fixture{mux: BuildRoutes(NewService(fns, nil, time.Minute), reg), calls: &calls, ds: ds}
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func errCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, body)
	return e["code"].(string)
}

func TestGeonameRoute(t *testing.T) {
	f := newFixture(t)
	code, body := do(t, f.mux, http.MethodGet, "/geoname?lat=40.7128&lon=-74.0060", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, nyc.String(), body["value"])

	code, body = do(t, f.mux, http.MethodGet, "/geoname?lat=40.7128&lon=-74.0060&attr=CountryName", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "United States", body["value"])
}

func TestGeonameRouteNull(t *testing.T) {
	f := newFixture(t)
	code, body := do(t, f.mux, http.MethodGet, "/geoname?lat=0&lon=0&attr=city", "")
	assert.Equal(t, http.StatusOK, code)
	v, present := body["value"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestGeonameRouteBadInput(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/geoname?lon=1",
		"/geoname?lat=abc&lon=1",
		"/geoname?lat=40.7128&lon=-74.0060&attr=population",
		"/geoname?lat=40.7128&lon=-74.0060&attr=",
	} {
		code, body := do(t, f.mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, code, target)
		assert.Equal(t, string(udf.CodeInvalidFunctionArgument), errCode(t, body), target)
	}
	_, body := do(t, f.mux, http.MethodGet, "/geoname?lat=40.7128&lon=-74.0060&attr=nope", "")
	msg := body["error"].(map[string]any)["message"]
	assert.Equal(t, "Valid attributes are: "+geoname.AttributesDesc, msg)
}

func TestGeonameRouteCachesResults(t *testing.T) {
	f := newFixture(t)
	hits := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("local"))
	for i := 0; i < 3; i++ {
		code, body := do(t, f.mux, http.MethodGet, "/geoname?lat=40.71&lon=-74.01&attr=city", "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "New York City", body["value"])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(f.calls))
	assert.Equal(t, hits+2, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("local")))

	// 错误不缓存
	for i := 0; i < 2; i++ {
		code, _ := do(t, f.mux, http.MethodGet, "/geoname?lat=40.71&lon=-74.01&attr=bad", "")
		require.Equal(t, http.StatusBadRequest, code)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(f.calls))
}

func TestInvokeRoute(t *testing.T) {
	f := newFixture(t)
	code, body := do(t, f.mux, http.MethodPost, "/invoke", `{"function":"geoname","args":[40.7128,-74.006,"timezone"]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "America/New_York", body["value"])

	code, body = do(t, f.mux, http.MethodPost, "/invoke", `{"function":"geoname","args":[null,-74.006]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["value"])

	code, body = do(t, f.mux, http.MethodPost, "/invoke", `{"function":"geoname","args":[1]}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(udf.CodeFunctionNotFound), errCode(t, body))

	code, body = do(t, f.mux, http.MethodPost, "/invoke", `{"function":"geoname","args":["x",1]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(udf.CodeTypeMismatch), errCode(t, body))

	code, _ = do(t, f.mux, http.MethodPost, "/invoke", `{`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFunctionsRoute(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out []functionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "geoname(double, double) -> varchar", out[0].Signature)
	assert.Equal(t, "geoname(double, double, varchar) -> varchar", out[1].Signature)
	assert.True(t, out[1].Nullable)
}

func TestHealthzRoute(t *testing.T) {
	f := newFixture(t)
	atlas.SetDefault(f.ds)
	t.Cleanup(func() { atlas.SetLoader(nil) })
	code, body := do(t, f.mux, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["cities"])
}

func TestCacheKey(t *testing.T) {
	city := "city"
	assert.Equal(t, "geoname:3:40.7128:-74.006", cacheKey(3, 40.7128, -74.006, nil))
	assert.Equal(t, "geoname:3:40.7128:-74.006:a:city", cacheKey(3, 40.7128, -74.006, &city))
	empty := ""
	assert.NotEqual(t, cacheKey(3, 1, 2, nil), cacheKey(3, 1, 2, &empty))
	assert.NotEqual(t, cacheKey(3, 1, 2, nil), cacheKey(4, 1, 2, nil))
}

func TestLookupAfterDatasetReplaced(t *testing.T) {
	t.Cleanup(func() { atlas.SetLoader(nil) })
	at := func(name string) *atlas.Dataset {
		return atlas.NewDataset([]atlas.City{{GeoNameID: 1, Name: name, Latitude: 40.7128, Longitude: -74.0060}})
	}
	fns := geoname.New(geoname.DefaultIndex)
	svc := NewService(fns, nil, time.Hour)
	ctx := context.Background()
	attr := "city"

	atlas.SetDefault(at("Old"))
	v, err := svc.Lookup(ctx, 40.7128, -74.0060, &attr)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Old", *v)

	atlas.SetDefault(at("New"))
	fresh, err := fns.GeonameAttribute(40.7128, -74.0060, attr)
	require.NoError(t, err)
	v, err = svc.Lookup(ctx, 40.7128, -74.0060, &attr)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, *fresh, *v)
	assert.Equal(t, "New", *v)

	// 经 Reload 替换同样失效
	atlas.SetLoader(func() (*atlas.Dataset, error) { return at("Reloaded"), nil })
	require.NoError(t, atlas.Reload())
	v, err = svc.Lookup(ctx, 40.7128, -74.0060, &attr)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Reloaded", *v)
}
