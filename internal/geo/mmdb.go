package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"net"
	"strconv"

	"edge-cdn/internal/logger"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

// Resolver：/resolve 使用的解析能力；Locator 与 MMDBLocator 均实现
type Resolver interface {
	ResolveCountry(ip string) (string, bool)
	CountryCoordinates(cc string) (Coordinate, bool)
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

// 文档注释：把 MaxMind 国家库导出为地址段表
// 背景：遍历全部网段，仅保留 IPv4；country 缺失时退回 registered_country；相邻且国家相同的网段合并。
// 返回：按 Start 升序、互不重叠的区间。
func ExportRangesFromMMDB(path string) ([]Range, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb %s: %w", path, err)
	}
	defer db.Close()

	var out []Range
	nets := db.Networks(maxminddb.SkipAliasedNetworks)
	for nets.Next() {
		var rec countryRecord
		subnet, err := nets.Network(&rec)
		if err != nil {
			return nil, err
		}
		r, ok := ipv4Range(subnet)
		if !ok {
			continue
		}
		r.Country = rec.Country.ISOCode
		if r.Country == "" {
			r.Country = rec.RegisteredCountry.ISOCode
		}
		if r.Country == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Country == r.Country && out[n-1].End != 0xffffffff && out[n-1].End+1 == r.Start {
			out[n-1].End = r.End
			continue
		}
		out = append(out, r)
	}
	if err := nets.Err(); err != nil {
		return nil, err
	}
	logger.L().Info("mmdb_export_done", "path", path, "ranges", len(out))
	return out, nil
}

func ipv4Range(n *net.IPNet) (Range, bool) {
	ip := n.IP.To4()
	if ip == nil {
		return Range{}, false
	}
	ones, bits := n.Mask.Size()
	if bits == 128 {
		ones -= 96
	}
	if ones < 0 || ones > 32 {
		return Range{}, false
	}
	start := uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
	span := uint32(0xffffffff)
	if ones > 0 {
		span = uint32(1)<<(32-ones) - 1
	}
	return Range{Start: start, End: start | span}, true
}

// WriteRangesCSV：写出无表头的 start,end,country
func WriteRangesCSV(w io.Writer, ranges []Range) error {
	cw := csv.NewWriter(w)
	for _, r := range ranges {
		if err := cw.Write([]string{
			strconv.FormatUint(uint64(r.Start), 10),
			strconv.FormatUint(uint64(r.End), 10),
			r.Country,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// 文档注释：直接查询 MaxMind 国家库的解析器
// 背景：无需预先导出地址段表；坐标仍来自国家坐标表。
type MMDBLocator struct {
	db     *geoip2.Reader
	coords map[string]Coordinate
}

func OpenMMDB(path string, coords map[string]Coordinate) (*MMDBLocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb %s: %w", path, err)
	}
	if coords == nil {
		coords = map[string]Coordinate{}
	}
	return &MMDBLocator{db: db, coords: coords}, nil
}

func (m *MMDBLocator) Close() error { return m.db.Close() }

func (m *MMDBLocator) ResolveCountry(ip string) (string, bool) {
	p := net.ParseIP(ip)
	if p == nil || p.To4() == nil {
		return "", false
	}
	rec, err := m.db.Country(p)
	if err != nil {
		logger.L().Debug("mmdb_lookup_error", "ip", ip, "err", err)
		return "", false
	}
	cc := rec.Country.IsoCode
	if cc == "" {
		cc = rec.RegisteredCountry.IsoCode
	}
	return cc, cc != ""
}

func (m *MMDBLocator) CountryCoordinates(cc string) (Coordinate, bool) {
	c, ok := m.coords[cc]
	return c, ok
}
