package rank

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"edge-cdn/internal/logger"
)

// Source：排名数据来源（CSV 文件或数据库表）
type Source interface {
	Articles(ctx context.Context) ([]Article, error)
}

// CSVFile：带表头的 CSV，需包含 article 与 ranks（或 rank）两列
type CSVFile struct{ Path string }

// 文档注释：读取 CSV 排名数据集
// 背景：部署环境可能使用空数据集或缺少文件；文件不存在视为“无事可做”，返回空序列。
// 约束：排名无法解析的行跳过并记录；缺少必要列视为数据集损坏，返回错误。
func (s CSVFile) Articles(ctx context.Context) ([]Article, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.L().Info("rank_csv_absent", "path", s.Path)
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	arts, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("rank csv %s: %w", s.Path, err)
	}
	SortByRank(arts)
	logger.L().Debug("rank_csv_loaded", "path", s.Path, "count", len(arts))
	return arts, nil
}

// ReadCSV：解析 CSV 排名数据（不排序）
func ReadCSV(r io.Reader) ([]Article, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	nameIdx, rankIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "article":
			nameIdx = i
		case "ranks", "rank":
			rankIdx = i
		}
	}
	if nameIdx < 0 || rankIdx < 0 {
		return nil, errors.New("missing article/ranks columns")
	}
	var out []Article
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= nameIdx || len(rec) <= rankIdx {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(rec[rankIdx]))
		if err != nil || n < 1 {
			logger.L().Warn("rank_row_skip", "article", rec[nameIdx], "rank", rec[rankIdx])
			continue
		}
		out = append(out, Article{Name: rec[nameIdx], Key: KeyFor(rec[nameIdx]), Rank: n})
	}
	return out, nil
}

// DB：从 _article_ranks 表读取排名
type DB struct{ DB *sql.DB }

func (s DB) Articles(ctx context.Context) ([]Article, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT article, rank FROM _article_ranks ORDER BY rank")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Article
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out = append(out, Article{Name: name, Key: KeyFor(name), Rank: int(n)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortByRank(out)
	logger.L().Debug("rank_db_loaded", "count", len(out))
	return out, nil
}
