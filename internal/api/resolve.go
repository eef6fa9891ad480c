// 包 api：副本文章服务与地理解析/就近路由的 HTTP 处理器
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"edge-cdn/internal/geo"
	"edge-cdn/internal/logger"
)

// 文档注释：/resolve 返回结构（对外）
// 约束：字段稳定；未解析到的部分留空值，Found 标记国家是否命中。
type resolveResult struct {
	IP         string  `json:"ip"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Replica    string  `json:"replica,omitempty"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	Found      bool    `json:"found"`
}

// ResolveOptions：解析处理器依赖；Cache 为 nil 时不缓存
type ResolveOptions struct {
	Resolver geo.Resolver
	Replicas []geo.Replica
	Cache    ResultCache
	TTL      time.Duration
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// 文档注释：GET /resolve?ip=
// 背景：IP → 国家 → 国家中心坐标 → 最近副本；结果以 geo:<ip> 写入缓存，缓存命中直接返回。
// 返回：非法 IPv4 返回 400；未命中返回 200 且 found=false（调用方自行回退默认副本）。
func ResolveHandler(o ResolveOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientIP(r)
		if _, err := geo.IPToDecimal(ip); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		key := "geo:" + ip
		if o.Cache != nil {
			if s, ok := o.Cache.Get(ctx, key); ok {
				var res resolveResult
				if json.Unmarshal([]byte(s), &res) == nil {
					w.Header().Set(logger.CacheHeader, "redis")
					writeJSON(w, http.StatusOK, res)
					return
				}
			}
		}
		res := resolveResult{IP: ip}
		if cc, ok := o.Resolver.ResolveCountry(ip); ok {
			res.Country = cc
			res.Found = true
			if c, ok := o.Resolver.CountryCoordinates(cc); ok {
				res.Lat, res.Lon = c.Lat, c.Lon
				if rep, d, ok := geo.Nearest(c, o.Replicas); ok {
					res.Replica = rep.Name
					res.DistanceKm = d
				}
			}
		}
		if o.Cache != nil && res.Found {
			b, _ := json.Marshal(res)
			o.Cache.Set(ctx, key, string(b), o.TTL)
		}
		logger.L().Debug("geo_resolve", "ip", ip, "country", res.Country, "replica", res.Replica)
		writeJSON(w, http.StatusOK, res)
	})
}
