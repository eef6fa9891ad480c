package tier

import (
	"context"
	"fmt"

	"edge-cdn/internal/compress"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/metrics"
	"edge-cdn/internal/origin"
)

// Sink：制品写入目标（内存映射或磁盘目录）
type Sink interface {
	Put(key string, data []byte) error
}

// FillParams：一次填充所需的全部协作者
type FillParams struct {
	// Tier 仅用于日志与指标标签
	Tier       string
	Candidates []string
	Budget     *Budget
	// Present 为 nil 时视为全部不存在
	Present func(key string) bool
	Fetcher origin.Fetcher
	Codec   compress.Codec
	Sink    Sink
}

// Result：填充结果
type Result struct {
	Admitted       []string
	AdmittedBytes  int64
	SkippedPresent int
	SkippedOrigin  int
	// Halted 为真表示在 HaltedAt 处因预算不足终止，其后的候选均未处理
	Halted    bool
	HaltedAt  string
	Remaining int64
}

// 文档注释：贪心前缀填充
// 背景：候选按热度升序，逐个取数、压缩、准入；第一个放不下的候选终止整个过程（不跳过继续），
// 近似“能放下的最热前缀”。已存在或源站非 2xx 的候选跳过，不计费。
// 约束：严格按输入顺序；准入先写入 Sink 再扣预算；不回滚已准入的条目。
// 返回：写入失败、压缩失败或 ctx 取消时返回错误，已准入部分保留在 Result 中。
func Fill(ctx context.Context, p FillParams) (Result, error) {
	l := logger.L().With("tier", p.Tier)
	res := Result{Remaining: p.Budget.Remaining()}
	l.Info("tier_fill_begin", "candidates", len(p.Candidates), "budget", p.Budget.Remaining())
	for _, key := range p.Candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if p.Present != nil && p.Present(key) {
			res.SkippedPresent++
			metrics.TierSkippedTotal.WithLabelValues(p.Tier, "present").Inc()
			continue
		}
		resp, err := p.Fetcher.Fetch(ctx, key)
		if err != nil || !resp.OK() {
			res.SkippedOrigin++
			metrics.TierSkippedTotal.WithLabelValues(p.Tier, "origin").Inc()
			l.Debug("tier_fill_origin_skip", "key", key, "status", resp.Status, "err", err)
			continue
		}
		packed, err := p.Codec.Compress(resp.Body)
		if err != nil {
			return res, fmt.Errorf("compress %s: %w", key, err)
		}
		size := int64(len(packed))
		if !p.Budget.Fits(size) {
			res.Halted = true
			res.HaltedAt = key
			metrics.TierHaltsTotal.WithLabelValues(p.Tier).Inc()
			l.Info("tier_fill_halt", "key", key, "size", size, "remaining", p.Budget.Remaining())
			break
		}
		if err := p.Sink.Put(key, packed); err != nil {
			return res, fmt.Errorf("store %s: %w", key, err)
		}
		p.Budget.Charge(size)
		res.Admitted = append(res.Admitted, key)
		res.AdmittedBytes += size
		res.Remaining = p.Budget.Remaining()
		metrics.TierAdmittedTotal.WithLabelValues(p.Tier).Inc()
		metrics.TierAdmittedBytes.WithLabelValues(p.Tier).Add(float64(size))
	}
	res.Remaining = p.Budget.Remaining()
	l.Info("tier_fill_done",
		"admitted", len(res.Admitted),
		"bytes", res.AdmittedBytes,
		"skipped_present", res.SkippedPresent,
		"skipped_origin", res.SkippedOrigin,
		"halted", res.Halted,
		"remaining", res.Remaining,
	)
	return res, nil
}
