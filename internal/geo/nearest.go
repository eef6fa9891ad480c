package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Replica：一个边缘副本及其所在位置
type Replica struct {
	Name string
	Coordinate
}

// 文档注释：解析副本描述 name@lat:lon
// 约束：name 非空；纬度 [-90, 90]，经度 [-180, 180]。
func ParseReplica(s string) (Replica, error) {
	name, pos, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || name == "" {
		return Replica{}, fmt.Errorf("replica %q: want name@lat:lon", s)
	}
	latS, lonS, ok := strings.Cut(pos, ":")
	if !ok {
		return Replica{}, fmt.Errorf("replica %q: want name@lat:lon", s)
	}
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil || lat < -90 || lat > 90 {
		return Replica{}, fmt.Errorf("replica %q: bad latitude", s)
	}
	lon, err := strconv.ParseFloat(lonS, 64)
	if err != nil || lon < -180 || lon > 180 {
		return Replica{}, fmt.Errorf("replica %q: bad longitude", s)
	}
	return Replica{Name: name, Coordinate: Coordinate{Lat: lat, Lon: lon}}, nil
}

// ParseReplicas：批量解析，任一项非法即返回错误
func ParseReplicas(entries []string) ([]Replica, error) {
	out := make([]Replica, 0, len(entries))
	for _, s := range entries {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r, err := ParseReplica(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Nearest：球面距离最近的副本；列表为空返回 false，距离相同取靠前者
func Nearest(from Coordinate, replicas []Replica) (Replica, float64, bool) {
	if len(replicas) == 0 {
		return Replica{}, 0, false
	}
	best, bestD := replicas[0], Distance(from, replicas[0].Coordinate)
	for _, r := range replicas[1:] {
		if d := Distance(from, r.Coordinate); d < bestD {
			best, bestD = r, d
		}
	}
	return best, bestD, true
}

// Distance：球面距离（Haversine），返回千米
func Distance(a, b Coordinate) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
