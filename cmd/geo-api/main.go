// 地理解析与就近副本路由服务：/resolve?ip= → 国家、坐标与最近副本
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edge-cdn/internal/api"
	"edge-cdn/internal/config"
	"edge-cdn/internal/geo"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/metrics"
	"edge-cdn/internal/middleware"
	"edge-cdn/internal/migrate"
	"edge-cdn/internal/utils"
)

func main() {
	l := logger.Setup("geo-api")
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	replicas, err := geo.ParseReplicas(cfg.Geo.Replicas)
	if err != nil {
		l.Error("replicas_error", "err", err)
		os.Exit(1)
	}
	if len(replicas) == 0 {
		l.Warn("replicas_empty", "hint", "set GEO_REPLICAS=name@lat:lon,...")
	}

	resolver, closeFn, err := openResolver(ctx, cfg.Geo)
	if err != nil {
		l.Error("geo_tables_error", "err", err)
		os.Exit(1)
	}
	defer closeFn()

	rc := utils.OpenRedis(cfg.RedisAddr)
	var cache api.ResultCache
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		cache = api.NewRedisCache(rc)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/resolve", api.ResolveHandler(api.ResolveOptions{
		Resolver: resolver,
		Replicas: replicas,
		Cache:    cache,
		TTL:      time.Duration(cfg.Geo.CacheTTLSec) * time.Second,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, cfg.RateLimitQPS)

	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	l.Info("listening", "addr", cfg.Addr, "replicas", len(replicas))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
}

// openResolver：MMDB 路径优先，其次数据库表，最后 CSV 文件
func openResolver(ctx context.Context, g config.Geo) (geo.Resolver, func(), error) {
	l := logger.L()
	switch {
	case g.MMDBPath != "":
		coords, err := loadCoordinates(g.CoordinatesCSV)
		if err != nil {
			return nil, nil, err
		}
		m, err := geo.OpenMMDB(g.MMDBPath, coords)
		if err != nil {
			return nil, nil, err
		}
		l.Info("geo_resolver", "source", "mmdb", "path", g.MMDBPath)
		return m, func() { _ = m.Close() }, nil
	case g.FromDB:
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, nil, err
		}
		defer db.Close()
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			return nil, nil, err
		}
		loc, err := geo.LoadFromDB(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		return loc, func() {}, nil
	default:
		loc, err := geo.LoadCSV(g.RangesCSV, g.CoordinatesCSV)
		if err != nil {
			return nil, nil, err
		}
		return loc, func() {}, nil
	}
}

func loadCoordinates(path string) (map[string]geo.Coordinate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return geo.ReadCoordinates(f)
}
