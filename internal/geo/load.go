package geo

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"edge-cdn/internal/logger"
)

// 文档注释：读取地址段表
// 背景：无表头，每行 start,end,country；start/end 为十进制 IPv4。
// 约束：字段数不符、数字无法解析、start > end 或国家为空的行跳过并计数。
func ReadRanges(r io.Reader) ([]Range, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var out []Range
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ranges: %w", err)
		}
		if len(rec) != 3 {
			skipped++
			continue
		}
		s, e1 := strconv.ParseUint(strings.TrimSpace(rec[0]), 10, 32)
		e, e2 := strconv.ParseUint(strings.TrimSpace(rec[1]), 10, 32)
		cc := strings.TrimSpace(rec[2])
		if e1 != nil || e2 != nil || s > e || cc == "" {
			skipped++
			continue
		}
		out = append(out, Range{Start: uint32(s), End: uint32(e), Country: cc})
	}
	if skipped > 0 {
		logger.L().Warn("geo_ranges_skipped", "rows", skipped)
	}
	return out, nil
}

// 文档注释：读取国家坐标表
// 背景：首行为表头 country,latitude,longitude；坐标为空或无法解析的行跳过（部分地区无中心坐标）。
func ReadCoordinates(r io.Reader) (map[string]Coordinate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]Coordinate{}, nil
		}
		return nil, fmt.Errorf("read coordinates header: %w", err)
	}
	out := map[string]Coordinate{}
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read coordinates: %w", err)
		}
		if len(rec) != 3 || rec[1] == "" || rec[2] == "" {
			skipped++
			continue
		}
		lat, e1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		lon, e2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if e1 != nil || e2 != nil {
			skipped++
			continue
		}
		out[strings.TrimSpace(rec[0])] = Coordinate{Lat: lat, Lon: lon}
	}
	if skipped > 0 {
		logger.L().Debug("geo_coordinates_skipped", "rows", skipped)
	}
	return out, nil
}

// LoadCSV：从两个 CSV 文件构建解析器；文件缺失视为错误（解析器没有可用的空状态）
func LoadCSV(rangesPath, coordsPath string) (*Locator, error) {
	rf, err := os.Open(rangesPath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()
	ranges, err := ReadRanges(rf)
	if err != nil {
		return nil, err
	}
	cf, err := os.Open(coordsPath)
	if err != nil {
		return nil, err
	}
	defer cf.Close()
	coords, err := ReadCoordinates(cf)
	if err != nil {
		return nil, err
	}
	logger.L().Info("geo_tables_loaded", "source", "csv", "ranges", len(ranges), "coordinates", len(coords))
	return NewLocator(ranges, coords), nil
}

// 文档注释：从数据库表构建解析器
// 背景：_geo_ranges(start_int, end_int, country) 与 _geo_coordinates(country, latitude, longitude)；
// 坐标列可为 NULL，NULL 行跳过。
func LoadFromDB(ctx context.Context, db *sql.DB) (*Locator, error) {
	rows, err := db.QueryContext(ctx, `SELECT start_int, end_int, country FROM _geo_ranges ORDER BY start_int`)
	if err != nil {
		return nil, fmt.Errorf("query _geo_ranges: %w", err)
	}
	defer rows.Close()
	var ranges []Range
	for rows.Next() {
		var s, e int64
		var cc string
		if err := rows.Scan(&s, &e, &cc); err != nil {
			return nil, err
		}
		if s < 0 || e > 0xffffffff || s > e {
			continue
		}
		ranges = append(ranges, Range{Start: uint32(s), End: uint32(e), Country: cc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := db.QueryContext(ctx, `SELECT country, latitude, longitude FROM _geo_coordinates`)
	if err != nil {
		return nil, fmt.Errorf("query _geo_coordinates: %w", err)
	}
	defer crows.Close()
	coords := map[string]Coordinate{}
	for crows.Next() {
		var cc string
		var lat, lon sql.NullFloat64
		if err := crows.Scan(&cc, &lat, &lon); err != nil {
			return nil, err
		}
		if !lat.Valid || !lon.Valid {
			continue
		}
		coords[cc] = Coordinate{Lat: lat.Float64, Lon: lon.Float64}
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}
	logger.L().Info("geo_tables_loaded", "source", "db", "ranges", len(ranges), "coordinates", len(coords))
	return NewLocator(ranges, coords), nil
}
