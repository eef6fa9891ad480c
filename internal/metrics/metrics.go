package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OriginRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_origin_requests_total",
		Help: "Origin GET requests by status class (2xx, 4xx, 5xx, error)",
	}, []string{"class"})
	OriginDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgecdn_origin_duration_ms",
		Help:    "Origin GET duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	TierAdmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_tier_admitted_total",
		Help: "Artifacts admitted into a tier",
	}, []string{"tier"})
	TierAdmittedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_tier_admitted_bytes_total",
		Help: "Compressed bytes admitted into a tier",
	}, []string{"tier"})
	TierSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_tier_skipped_total",
		Help: "Candidates skipped during a fill by reason (present, origin)",
	}, []string{"tier", "reason"})
	TierHaltsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_tier_halts_total",
		Help: "Fills stopped because the next candidate would overflow the budget",
	}, []string{"tier"})
	LookupHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_lookup_hits_total",
		Help: "Article lookups served from a cache tier",
	}, []string{"tier"})
	LookupMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecdn_lookup_misses_total",
		Help: "Article lookups that fell back to a live origin fetch",
	})
	GeoResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecdn_geo_resolve_total",
		Help: "Geo resolutions by outcome (hit, no_country, no_coords, bad_ip)",
	}, []string{"outcome"})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecdn_redis_hits_total",
		Help: "Total redis resolution cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecdn_redis_misses_total",
		Help: "Total redis resolution cache misses",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecdn_rate_limited_total",
		Help: "Requests rejected by the token bucket",
	})
)

func init() {
	prometheus.MustRegister(
		OriginRequestsTotal,
		OriginDurationMs,
		TierAdmittedTotal,
		TierAdmittedBytes,
		TierSkippedTotal,
		TierHaltsTotal,
		LookupHitsTotal,
		LookupMissesTotal,
		GeoResolveTotal,
		RedisHitsTotal,
		RedisMissesTotal,
		RateLimitedTotal,
	)
}

// StatusClass：将 HTTP 状态码归并为指标标签
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	}
	return "error"
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在各进程入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
