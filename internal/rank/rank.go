// 包 rank：热度排名数据集 → 有序文章序列；提供文章键的规范化
package rank

import (
	"net/url"
	"sort"
	"strings"
)

// Article：一条排名记录
// 约束：Key 由 Name 派生（KeyFor），作为内存映射键与磁盘文件名
type Article struct {
	Name string
	Key  string
	Rank int
}

// KeyFor：标题 → 文章键（空格转下划线后做路径转义）
func KeyFor(title string) string {
	return url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// 文档注释：请求路径 → 文章键
// 背景：客户端可能请求 /wiki/Foo Bar 或已转义的 /Foo%20Bar；取最后一段，空格转下划线，已转义的保持原样。
func FormatPath(raw string) string {
	p := raw
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	p = strings.ReplaceAll(p, " ", "_")
	if u, err := url.PathUnescape(p); err == nil && u != p {
		return p
	}
	return url.PathEscape(p)
}

// 文档注释：按排名升序稳定排序（原地）
// 背景：分层互斥依赖单次升序遍历；数据集顺序不可信，每次填充前都先排序。
func SortByRank(arts []Article) {
	sort.SliceStable(arts, func(i, j int) bool { return arts[i].Rank < arts[j].Rank })
}

// 文档注释：截取排名区间 [lo, hi)
// 约束：hi<=0 表示无上界；输入须已排序，返回的切片保持原顺序。
func Band(arts []Article, lo, hi int) []Article {
	out := make([]Article, 0, len(arts))
	for _, a := range arts {
		if a.Rank < lo {
			continue
		}
		if hi > 0 && a.Rank >= hi {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Keys：提取文章键序列
func Keys(arts []Article) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Key
	}
	return out
}
