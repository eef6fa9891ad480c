package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"edge-cdn/internal/cdncache"
	"edge-cdn/internal/config"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/origin"
)

// 文档注释：部署期构建内存快照与部署磁盘分区
// 背景：在副本上线前运行一次；两个构建器各自按预算从源站拉取排名靠前的文章。
// 约束：配置非法或必需文件不可读时以非零状态退出；源站个别条目失败只跳过。
func main() {
	originAddr := flag.String("o", "", "origin server host[:port], overrides ORIGIN_HOST/ORIGIN_PORT")
	flag.Parse()

	l := logger.Setup("deploy-build")
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	if *originAddr != "" {
		cfg.Origin.Host, cfg.Origin.Port = origin.ParseAddr(*originAddr)
	}
	if cfg.Origin.Host == "" {
		l.Error("origin_missing", "hint", "set ORIGIN_HOST or pass -o")
		os.Exit(1)
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

	memRes, err := m.BuildMemorySnapshot(ctx)
	if err != nil {
		l.Error("memory_snapshot_error", "err", err)
		os.Exit(1)
	}
	diskRes, err := m.BuildDeployDiskCache(ctx)
	if err != nil {
		l.Error("deploy_disk_error", "err", err)
		os.Exit(1)
	}
	l.Info("deploy_build_done",
		"memory_entries", len(memRes.Admitted),
		"memory_bytes", memRes.AdmittedBytes,
		"disk_entries", len(diskRes.Admitted),
		"disk_bytes", diskRes.AdmittedBytes,
	)
}
