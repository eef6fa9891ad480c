package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"edge-cdn/internal/cdncache"
	"edge-cdn/internal/geo"
	"edge-cdn/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu  sync.Mutex
	m   map[string]string
	ttl time.Duration
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[key]
	return s, ok
}

func (c *mapCache) Set(_ context.Context, key, val string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = val
	c.ttl = ttl
}

func testResolver() *geo.Locator {
	return geo.NewLocator(
		[]geo.Range{{Start: 16777216, End: 16777471, Country: "AU"}, {Start: 33554432, End: 33554687, Country: "FR"}, {Start: 50331648, End: 50331903, Country: "AQ"}},
		map[string]geo.Coordinate{"AU": {Lat: -25.27, Lon: 133.77}, "FR": {Lat: 46.23, Lon: 2.21}},
	)
}

var testReplicas = []geo.Replica{
	{Name: "syd", Coordinate: geo.Coordinate{Lat: -33.87, Lon: 151.21}},
	{Name: "fra", Coordinate: geo.Coordinate{Lat: 50.11, Lon: 8.68}},
}

func decodeResolve(t *testing.T, rec *httptest.ResponseRecorder) resolveResult {
	t.Helper()
	var res resolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestResolvePicksNearestReplicaAndCaches(t *testing.T) {
	cache := &mapCache{m: map[string]string{}}
	h := ResolveHandler(ResolveOptions{Resolver: testResolver(), Replicas: testReplicas, Cache: cache, TTL: time.Hour})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?ip=2.0.0.9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResolve(t, rec)
	assert.True(t, res.Found)
	assert.Equal(t, "FR", res.Country)
	assert.Equal(t, "fra", res.Replica)
	assert.Contains(t, cache.m, "geo:2.0.0.9")
	assert.Equal(t, time.Hour, cache.ttl)

	// 缓存命中不再经过解析器
	h2 := ResolveHandler(ResolveOptions{Resolver: geo.NewLocator(nil, nil), Cache: cache})
	rec = httptest.NewRecorder()
	h2.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?ip=2.0.0.9", nil))
	assert.Equal(t, "redis", rec.Header().Get(logger.CacheHeader))
	assert.Equal(t, "fra", decodeResolve(t, rec).Replica)
}

func TestResolveMisses(t *testing.T) {
	cache := &mapCache{m: map[string]string{}}
	h := ResolveHandler(ResolveOptions{Resolver: testResolver(), Replicas: testReplicas, Cache: cache})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?ip=9.9.9.9", nil))
	res := decodeResolve(t, rec)
	assert.False(t, res.Found)
	assert.Empty(t, res.Replica)
	assert.Empty(t, cache.m, "misses are not cached")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?ip=3.0.0.1", nil))
	res = decodeResolve(t, rec)
	assert.True(t, res.Found)
	assert.Equal(t, "AQ", res.Country)
	assert.Empty(t, res.Replica, "no coordinates, no replica")
}

func TestResolveBadIP(t *testing.T) {
	h := ResolveHandler(ResolveOptions{Resolver: testResolver()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?ip=::1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveUsesForwardedHeader(t *testing.T) {
	h := ResolveHandler(ResolveOptions{Resolver: testResolver(), Replicas: testReplicas})
	req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	req.Header.Set("X-Forwarded-For", "1.0.0.1, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res := decodeResolve(t, rec)
	assert.Equal(t, "1.0.0.1", res.IP)
	assert.Equal(t, "syd", res.Replica)
}

func TestClientIPFallbacks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "4.4.4.4:5555"
	assert.Equal(t, "4.4.4.4", clientIP(req))

	req.Header.Set("Forwarded", `for="5.5.5.5";proto=https`)
	assert.Equal(t, "5.5.5.5", clientIP(req))

	req.Header.Set("X-Real-IP", "6.6.6.6")
	assert.Equal(t, "6.6.6.6", clientIP(req))
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	var nilCache RedisCache
	_, ok := nilCache.Get(context.Background(), "geo:1.1.1.1")
	assert.False(t, ok)
	nilCache.Set(context.Background(), "geo:1.1.1.1", "{}", time.Minute)

	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rc.Close()
	c := NewRedisCache(rc)
	_, ok = c.Get(context.Background(), "geo:1.1.1.1")
	assert.False(t, ok)
}

type fakeLooker struct {
	content map[string]cdncache.Content
	err     error
	keys    []string
}

func (f *fakeLooker) Lookup(_ context.Context, key string) (cdncache.Content, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return cdncache.Content{}, f.err
	}
	if c, ok := f.content[key]; ok {
		return c, nil
	}
	return cdncache.Content{Status: http.StatusNotFound, Source: cdncache.FromOrigin}, nil
}

func (f *fakeLooker) State() cdncache.State { return cdncache.Steady }

func TestArticleHandler(t *testing.T) {
	l := &fakeLooker{content: map[string]cdncache.Content{
		"Main_Page": {Body: []byte("<html>main</html>"), Status: 200, Source: cdncache.FromMemory},
	}}
	h := ArticleHandler(l)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wiki/Main_Page", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>main</html>", rec.Body.String())
	assert.Equal(t, "memory", rec.Header().Get(logger.CacheHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Nothing_Here", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "origin", rec.Header().Get(logger.CacheHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Caf%C3%A9", nil))
	assert.Equal(t, "Caf%C3%A9", l.keys[len(l.keys)-1], "already escaped path is kept")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/Main_Page", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestArticleHandlerOriginDown(t *testing.T) {
	h := ArticleHandler(&fakeLooker{err: errors.New("connection refused")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Main_Page", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	ArticleHandler(&fakeLooker{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok steady\n", rec.Body.String())
}
