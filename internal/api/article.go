package api

import (
	"context"
	"net/http"

	"edge-cdn/internal/cdncache"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/rank"
)

// Looker：副本处理器所需的查找能力，由 *cdncache.Manager 实现
type Looker interface {
	Lookup(ctx context.Context, key string) (cdncache.Content, error)
	State() cdncache.State
}

// 文档注释：副本文章处理器
// 背景：请求路径 → 文章键 → 分层查找；命中层级写入 X-Cache 头。/healthz 返回当前缓存生命周期状态。
// 返回：源站非 2xx 时透传状态码；源站不可达返回 502。
func ArticleHandler(m Looker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok " + m.State().String() + "\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key := rank.FormatPath(r.URL.EscapedPath())
		if key == "" {
			http.NotFound(w, r)
			return
		}
		c, err := m.Lookup(r.Context(), key)
		if err != nil {
			logger.L().Warn("article_origin_error", "key", key, "err", err)
			http.Error(w, "origin unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set(logger.CacheHeader, string(c.Source))
		w.Header().Set("content-type", "text/html; charset=utf-8")
		w.WriteHeader(c.Status)
		if r.Method == http.MethodGet {
			_, _ = w.Write(c.Body)
		}
	})
	return mux
}
