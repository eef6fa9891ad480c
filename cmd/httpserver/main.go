// 副本进程：载入内存快照 → 后台补全运行期磁盘 → 提供文章服务与 /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"edge-cdn/internal/api"
	"edge-cdn/internal/cdncache"
	"edge-cdn/internal/config"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/metrics"
	"edge-cdn/internal/middleware"
	"edge-cdn/internal/origin"
)

func main() {
	port := flag.Int("p", 0, "port to listen on, overrides ADDR")
	originAddr := flag.String("o", "", "origin server host[:port], overrides ORIGIN_HOST/ORIGIN_PORT")
	flag.Parse()

	l := logger.Setup("httpserver")
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	if *originAddr != "" {
		cfg.Origin.Host, cfg.Origin.Port = origin.ParseAddr(*originAddr)
	}
	if *port > 0 {
		cfg.Addr = ":" + strconv.Itoa(*port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, cleanup, err := cdncache.OptionsFromConfig(ctx, cfg)
	if err != nil {
		l.Error("cache_options_error", "err", err)
		os.Exit(1)
	}
	defer cleanup()
	m := cdncache.New(opts)
	defer m.Close()

	if err := m.LoadMemorySnapshot(ctx); err != nil {
		// 快照损坏不阻止上线，内存层为空时请求回落到磁盘与源站
		l.Error("memory_snapshot_load_error", "err", err)
	}
	task := m.CompleteDiskCacheAsync(ctx)
	go func() {
		<-task.Done()
		res, err := task.Result()
		if err != nil {
			l.Error("runtime_disk_fill_failed", "err", err)
			return
		}
		l.Info("runtime_disk_fill_finished", "entries", len(res.Admitted), "bytes", res.AdmittedBytes, "halted", res.Halted)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", api.ArticleHandler(m))
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, cfg.RateLimitQPS)

	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	l.Info("listening", "addr", cfg.Addr, "origin", cfg.Origin.Host+":"+cfg.Origin.Port)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
}
