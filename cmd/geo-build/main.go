package main

import (
	"bufio"
	"flag"
	"os"

	"edge-cdn/internal/geo"
	"edge-cdn/internal/logger"

	"github.com/joho/godotenv"
)

// 文档注释：将 MaxMind 国家库导出为地址段 CSV
// 背景：解析服务只读取 start,end,country 形式的段表；此工具离线生成该表，输出先写临时文件再改名。
// 约束：仅导出 IPv4；MMDB 路径取 -mmdb 或 GEO_MMDB_PATH，输出取 -out 或 GEO_RANGES_CSV。
func main() {
	_ = godotenv.Load(".env")
	mmdb := flag.String("mmdb", os.Getenv("GEO_MMDB_PATH"), "MaxMind country database")
	out := flag.String("out", os.Getenv("GEO_RANGES_CSV"), "range CSV to write")
	flag.Parse()

	l := logger.Setup("geo-build")
	if *mmdb == "" || *out == "" {
		l.Error("geo_build_args_missing", "mmdb", *mmdb, "out", *out)
		os.Exit(1)
	}
	ranges, err := geo.ExportRangesFromMMDB(*mmdb)
	if err != nil {
		l.Error("mmdb_export_error", "err", err)
		os.Exit(1)
	}
	tmp := *out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		l.Error("output_create_error", "path", tmp, "err", err)
		os.Exit(1)
	}
	w := bufio.NewWriter(f)
	if err := geo.WriteRangesCSV(w, ranges); err != nil {
		l.Error("output_write_error", "err", err)
		_ = f.Close()
		os.Exit(1)
	}
	if err := w.Flush(); err != nil {
		l.Error("output_flush_error", "err", err)
		_ = f.Close()
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		l.Error("output_close_error", "err", err)
		os.Exit(1)
	}
	if err := os.Rename(tmp, *out); err != nil {
		l.Error("output_rename_error", "err", err)
		os.Exit(1)
	}
	l.Info("geo_build_done", "ranges", len(ranges), "out", *out)
}
