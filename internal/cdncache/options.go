package cdncache

import (
	"context"
	"fmt"
	"time"

	"edge-cdn/internal/config"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/origin"
	"edge-cdn/internal/rank"
	"edge-cdn/internal/snapshot"
	"edge-cdn/internal/utils"
)

// OriginTimeout：单次源站请求超时
const OriginTimeout = 10 * time.Second

// 文档注释：由配置组装管理器依赖
// 背景：排名数据集来自 CSV 或 Postgres（RANK_FROM_DB）；传输块在设置了 S3 桶时放 S3，否则放本地文件。
// 返回：Options 与释放函数（关闭数据库连接）；数据库或 S3 客户端无法建立时返回错误。
func OptionsFromConfig(ctx context.Context, cfg config.Config) (Options, func(), error) {
	cleanup := func() {}
	opts := Options{
		Budgets:    cfg.Budgets,
		DeployDir:  cfg.DeployDir,
		RuntimeDir: cfg.RuntimeDir,
		NewSession: func() Session {
			return origin.NewClient(cfg.Origin.Host, cfg.Origin.Port, OriginTimeout)
		},
	}
	if cfg.RankFromDB {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return opts, cleanup, err
		}
		cleanup = func() { _ = db.Close() }
		opts.Source = rank.DB{DB: db}
	} else {
		opts.Source = rank.CSVFile{Path: cfg.RankCSV}
	}
	if cfg.Snapshot.S3Bucket != "" {
		st, err := snapshot.NewS3StoreFromEnv(ctx, cfg.Snapshot.S3Bucket, cfg.Snapshot.S3Key, cfg.Snapshot.S3Region)
		if err != nil {
			cleanup()
			return opts, func() {}, fmt.Errorf("snapshot store: %w", err)
		}
		opts.Snapshot = st
	} else {
		opts.Snapshot = snapshot.FileStore{Path: cfg.Snapshot.Path}
	}
	logger.L().Debug("cache_options",
		"origin", cfg.Origin.Host+":"+cfg.Origin.Port,
		"rank_from_db", cfg.RankFromDB,
		"snapshot", opts.Snapshot.Location(),
		"deploy_dir", cfg.DeployDir,
		"runtime_dir", cfg.RuntimeDir,
	)
	return opts, cleanup, nil
}
