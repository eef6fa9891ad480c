// 包 cdncache：三层缓存（内存快照、部署期磁盘、运行期磁盘）的构建、载入、后台补全与查找
package cdncache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"edge-cdn/internal/compress"
	"edge-cdn/internal/config"
	"edge-cdn/internal/logger"
	"edge-cdn/internal/metrics"
	"edge-cdn/internal/origin"
	"edge-cdn/internal/rank"
	"edge-cdn/internal/snapshot"
	"edge-cdn/internal/tier"

	"golang.org/x/sync/singleflight"
)

// State：副本侧生命周期
type State int32

const (
	Uninitialized State = iota
	MemoryLoaded
	DiskCompleting
	Steady
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case MemoryLoaded:
		return "memory_loaded"
	case DiskCompleting:
		return "disk_completing"
	case Steady:
		return "steady"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Session：一次填充过程使用的源站会话
type Session interface {
	origin.Fetcher
	Close()
}

// Options：管理器依赖
type Options struct {
	Budgets    config.Budgets
	Source     rank.Source
	Snapshot   snapshot.Store
	DeployDir  string
	RuntimeDir string
	// NewSession 每次构建/补全各打开一个会话，结束即关闭；查找路径另持一个长期会话
	NewSession func() Session
	Codec      compress.Codec
}

// 文档注释：缓存管理器
// 背景：持有全部缓存状态，由服务层与后台补全任务共享同一实例，不使用包级全局状态。
// 约束：内存层只在 LoadMemorySnapshot 中写入；各层预算仅由其所属任务修改。
type Manager struct {
	opts      Options
	memory    *tier.Memory
	memBudget *tier.Budget
	deploy    *tier.Disk
	runtime   *tier.Disk
	live      Session
	group     singleflight.Group
	state     atomic.Int32

	mu   sync.Mutex
	task *FillTask
}

func New(opts Options) *Manager {
	if opts.Codec == nil {
		opts.Codec = compress.NewZlib()
	}
	return &Manager{
		opts:      opts,
		memory:    tier.NewMemory(),
		memBudget: tier.NewBudget(opts.Budgets.TotalCeiling),
		deploy:    tier.NewDisk(opts.DeployDir),
		runtime:   tier.NewDisk(opts.RuntimeDir),
		live:      opts.NewSession(),
	}
}

func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		logger.L().Info("cache_state", "from", old.String(), "to", s.String())
	}
}

// MemoryRemaining：内存层剩余预算
func (m *Manager) MemoryRemaining() int64 { return m.memBudget.Remaining() }

// MemoryLen：内存层条目数
func (m *Manager) MemoryLen() int { return m.memory.Len() }

// Close：关闭查找路径的源站会话
func (m *Manager) Close() { m.live.Close() }

func (m *Manager) articles(ctx context.Context) ([]rank.Article, error) {
	if m.opts.Source == nil {
		return nil, nil
	}
	arts, err := m.opts.Source.Articles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ranking: %w", err)
	}
	rank.SortByRank(arts)
	return arts, nil
}

// 文档注释：部署期构建内存快照
// 背景：排名 [1, R1) 的文章按总预算贪心填充到临时映射，序列化后写入传输位置，随即清空映射以控制峰值内存。
// 约束：不保留映射；数据集为空时不写出传输块。
func (m *Manager) BuildMemorySnapshot(ctx context.Context) (tier.Result, error) {
	arts, err := m.articles(ctx)
	if err != nil {
		return tier.Result{}, err
	}
	band := rank.Band(arts, 1, m.opts.Budgets.MemoryRankMax)
	if len(band) == 0 {
		logger.L().Info("memory_snapshot_skip", "reason", "empty_ranking")
		return tier.Result{}, nil
	}
	sess := m.opts.NewSession()
	defer sess.Close()

	mem := tier.NewMemory()
	res, err := tier.Fill(ctx, tier.FillParams{
		Tier:       "memory",
		Candidates: rank.Keys(band),
		Budget:     tier.NewBudget(m.opts.Budgets.TotalCeiling),
		Fetcher:    sess,
		Codec:      m.opts.Codec,
		Sink:       mem,
	})
	if err != nil {
		return res, err
	}
	blob, err := snapshot.Encode(mem.Snapshot())
	mem.Clear()
	if err != nil {
		return res, err
	}
	if err := m.opts.Snapshot.Write(ctx, blob); err != nil {
		return res, fmt.Errorf("write snapshot %s: %w", m.opts.Snapshot.Location(), err)
	}
	logger.L().Info("memory_snapshot_written", "location", m.opts.Snapshot.Location(), "entries", len(res.Admitted), "blob_bytes", len(blob))
	return res, nil
}

// 文档注释：部署期构建磁盘分区
// 背景：排名 [R1, R2) 的文章按部署磁盘预算填充；目录先删除再重建，保证与内存层互斥的干净分区。
func (m *Manager) BuildDeployDiskCache(ctx context.Context) (tier.Result, error) {
	if err := m.deploy.Reset(); err != nil {
		return tier.Result{}, err
	}
	arts, err := m.articles(ctx)
	if err != nil {
		return tier.Result{}, err
	}
	band := rank.Band(arts, m.opts.Budgets.MemoryRankMax, m.opts.Budgets.DeployRankMax)
	if len(band) == 0 {
		logger.L().Info("deploy_disk_skip", "reason", "empty_ranking")
		return tier.Result{}, nil
	}
	sess := m.opts.NewSession()
	defer sess.Close()

	return tier.Fill(ctx, tier.FillParams{
		Tier:       "deploy",
		Candidates: rank.Keys(band),
		Budget:     tier.NewBudget(m.opts.Budgets.DeployCeiling),
		Fetcher:    sess,
		Codec:      m.opts.Codec,
		Sink:       m.deploy,
	})
}

// 文档注释：副本启动时载入内存快照
// 背景：传输块并入（不替换）现有内存映射，按估算占用扣减内存预算，然后删除传输块释放磁盘。
// 约束：传输块不存在视为冷启动，无操作；状态仍推进到 MemoryLoaded。
func (m *Manager) LoadMemorySnapshot(ctx context.Context) error {
	defer m.setState(MemoryLoaded)
	blob, err := m.opts.Snapshot.Read(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		logger.L().Info("memory_snapshot_absent", "location", m.opts.Snapshot.Location())
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	entries, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	m.memory.Merge(entries)
	m.memBudget.Charge(tier.Footprint(entries))
	if err := m.opts.Snapshot.Remove(ctx); err != nil {
		logger.L().Warn("memory_snapshot_remove_error", "err", err)
	}
	logger.L().Info("memory_snapshot_loaded", "entries", len(entries), "remaining", m.memBudget.Remaining())
	return nil
}

// present：运行期补全的存在性检查（内存、部署目录、运行期目录）
func (m *Manager) present(key string) bool {
	return m.memory.Has(key) || m.deploy.Has(key) || m.runtime.Has(key)
}

func (m *Manager) completeDiskCache(ctx context.Context) (tier.Result, error) {
	if err := m.runtime.Ensure(); err != nil {
		return tier.Result{}, err
	}
	arts, err := m.articles(ctx)
	if err != nil {
		return tier.Result{}, err
	}
	band := rank.Band(arts, m.opts.Budgets.DeployRankMax, 0)
	if len(band) == 0 {
		return tier.Result{}, nil
	}
	sess := m.opts.NewSession()
	defer sess.Close()

	return tier.Fill(ctx, tier.FillParams{
		Tier:       "runtime",
		Candidates: rank.Keys(band),
		Budget:     tier.NewBudget(m.opts.Budgets.RuntimeCeiling()),
		Present:    m.present,
		Fetcher:    sess,
		Codec:      m.opts.Codec,
		Sink:       m.runtime,
	})
}

// 文档注释：后台补全运行期磁盘分区
// 背景：在开始接收请求前调用，立即返回；后台任务拉取排名 >= R2 的文章，跳过内存或磁盘中已有的键。
// 返回：任务句柄，可观察完成与结果；重复调用返回同一句柄。
func (m *Manager) CompleteDiskCacheAsync(ctx context.Context) *FillTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task != nil {
		return m.task
	}
	t := &FillTask{done: make(chan struct{})}
	m.task = t
	m.setState(DiskCompleting)
	go func() {
		defer close(t.done)
		res, err := m.completeDiskCache(ctx)
		t.res, t.err = res, err
		if err != nil {
			logger.L().Error("runtime_disk_fill_error", "err", err)
		}
		m.setState(Steady)
	}()
	return t
}

// FillTask：后台补全任务句柄
type FillTask struct {
	done chan struct{}
	res  tier.Result
	err  error
}

func (t *FillTask) Done() <-chan struct{} { return t.done }

// Result：任务结束前调用返回零值
func (t *FillTask) Result() (tier.Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	default:
		return tier.Result{}, nil
	}
}

// Wait：阻塞至任务结束或 ctx 取消
func (t *FillTask) Wait(ctx context.Context) (tier.Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return tier.Result{}, ctx.Err()
	}
}

// Source：查找命中的来源
type Source string

const (
	FromMemory  Source = "memory"
	FromDeploy  Source = "deploy"
	FromRuntime Source = "runtime"
	FromOrigin  Source = "origin"
)

// Content：查找结果，Body 为解压后的原始内容
type Content struct {
	Body   []byte
	Status int
	Source Source
}

func (m *Manager) fromTier(src Source, packed []byte) (Content, bool) {
	body, err := m.opts.Codec.Decompress(packed)
	if err != nil {
		logger.L().Warn("cache_decompress_error", "tier", string(src), "err", err)
		return Content{}, false
	}
	metrics.LookupHitsTotal.WithLabelValues(string(src)).Inc()
	return Content{Body: body, Status: 200, Source: src}, true
}

// 文档注释：按层查找文章
// 背景：内存 → 部署目录 → 运行期目录 → 源站实时拉取；未命中不是错误。同一键的并发未命中合并为一次源站请求。
// 返回：源站非 2xx 时 Content.Status 透传；仅网络失败返回 error。
func (m *Manager) Lookup(ctx context.Context, key string) (Content, error) {
	if b, ok := m.memory.Get(key); ok {
		if c, ok := m.fromTier(FromMemory, b); ok {
			return c, nil
		}
	}
	for _, d := range []struct {
		src  Source
		disk *tier.Disk
	}{{FromDeploy, m.deploy}, {FromRuntime, m.runtime}} {
		b, ok, err := d.disk.Get(key)
		if err != nil {
			logger.L().Warn("cache_disk_read_error", "tier", string(d.src), "key", key, "err", err)
			continue
		}
		if ok {
			if c, ok := m.fromTier(d.src, b); ok {
				return c, nil
			}
		}
	}
	metrics.LookupMissesTotal.Inc()
	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.live.Fetch(ctx, key)
	})
	if err != nil {
		return Content{}, err
	}
	resp := v.(origin.Response)
	logger.L().Debug("cache_miss_fetch", "key", key, "status", resp.Status, "shared", shared)
	return Content{Body: resp.Body, Status: resp.Status, Source: FromOrigin}, nil
}
