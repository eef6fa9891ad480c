package migrate

import (
	"context"
	"database/sql"

	"edge-cdn/internal/logger"
)

// 背景：首次运行自动创建排名表与地理表，保障后续导入与查询
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；只用 Postgres 与 SQLite 都接受的类型
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _article_ranks (
            article TEXT PRIMARY KEY,
            rank INT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_article_ranks_rank ON _article_ranks(rank)`,
		`CREATE TABLE IF NOT EXISTS _geo_ranges (
            start_int BIGINT NOT NULL,
            end_int BIGINT NOT NULL,
            country TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_geo_ranges_start ON _geo_ranges(start_int)`,
		`CREATE TABLE IF NOT EXISTS _geo_coordinates (
            country TEXT PRIMARY KEY,
            latitude DOUBLE PRECISION,
            longitude DOUBLE PRECISION
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
