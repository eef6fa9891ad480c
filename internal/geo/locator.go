// 包 geo：IPv4 → 国家代码 → 国家中心坐标；以及就近副本选择
package geo

import (
	"errors"
	"fmt"
	"net"
	"sort"

	"edge-cdn/internal/metrics"
)

// ErrBadIP：不是合法的点分十进制 IPv4 地址
var ErrBadIP = errors.New("bad ipv4 address")

// Range：闭区间 [Start, End] 内的地址属于 Country
type Range struct {
	Start   uint32
	End     uint32
	Country string
}

// Coordinate：国家地理中心（十进制度）
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IPToDecimal：a.b.c.d → a<<24 | b<<16 | c<<8 | d
func IPToDecimal(ip string) (uint32, error) {
	p := net.ParseIP(ip)
	if p == nil {
		return 0, fmt.Errorf("%w: %q", ErrBadIP, ip)
	}
	v := p.To4()
	if v == nil {
		return 0, fmt.Errorf("%w: %q is not ipv4", ErrBadIP, ip)
	}
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3]), nil
}

// 文档注释：地址段表 + 坐标表的只读解析器
// 背景：构造后不再修改，可被多个请求并发读取。
// 约束：区间按 Start 升序且互不重叠；NewLocator 会再排序一次。
type Locator struct {
	ranges []Range
	coords map[string]Coordinate
}

func NewLocator(ranges []Range, coords map[string]Coordinate) *Locator {
	rs := append([]Range(nil), ranges...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
	if coords == nil {
		coords = map[string]Coordinate{}
	}
	return &Locator{ranges: rs, coords: coords}
}

// Len：区间数与坐标数
func (l *Locator) Len() (ranges, coords int) { return len(l.ranges), len(l.coords) }

func (l *Locator) lookup(v uint32) (string, bool) {
	i := sort.Search(len(l.ranges), func(i int) bool { return l.ranges[i].Start > v })
	if i == 0 {
		return "", false
	}
	r := l.ranges[i-1]
	if v >= r.Start && v <= r.End {
		return r.Country, true
	}
	return "", false
}

// 文档注释：IPv4 → 国家代码
// 背景：二分查找 Start <= v 的最后一个区间，再确认 v <= End；首区间之前、区间空隙、末区间之后均为未命中。
// 返回：非法地址与未命中都返回 false。
func (l *Locator) ResolveCountry(ip string) (string, bool) {
	v, err := IPToDecimal(ip)
	if err != nil {
		metrics.GeoResolveTotal.WithLabelValues("bad_ip").Inc()
		return "", false
	}
	cc, ok := l.lookup(v)
	if !ok {
		metrics.GeoResolveTotal.WithLabelValues("no_country").Inc()
	}
	return cc, ok
}

// ResolveCoordinates：国家代码再查坐标表，任一步未命中返回 false
func (l *Locator) ResolveCoordinates(ip string) (Coordinate, bool) {
	cc, ok := l.ResolveCountry(ip)
	if !ok {
		return Coordinate{}, false
	}
	c, ok := l.coords[cc]
	if !ok {
		metrics.GeoResolveTotal.WithLabelValues("no_coords").Inc()
		return Coordinate{}, false
	}
	metrics.GeoResolveTotal.WithLabelValues("hit").Inc()
	return c, true
}

// CountryCoordinates：直接按国家代码查坐标
func (l *Locator) CountryCoordinates(cc string) (Coordinate, bool) {
	c, ok := l.coords[cc]
	return c, ok
}
