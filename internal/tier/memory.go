package tier

import "sync"

// Memory：内存层，键 → 压缩制品
// 约束：服务期间只读；读写锁保证后台补全的存在性检查与请求读取不与载入阶段的写入竞争
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (c *Memory) Put(key string, data []byte) error {
	c.mu.Lock()
	c.m[key] = data
	c.mu.Unlock()
	return nil
}

func (c *Memory) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.m[key]
	return b, ok
}

func (c *Memory) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Merge：并入另一映射（同键覆盖），不清空已有条目
func (c *Memory) Merge(src map[string][]byte) {
	c.mu.Lock()
	for k, v := range src {
		c.m[k] = v
	}
	c.mu.Unlock()
}

// Snapshot：返回当前映射的浅拷贝，供序列化
func (c *Memory) Snapshot() map[string][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]byte, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// Clear：释放全部条目
func (c *Memory) Clear() {
	c.mu.Lock()
	c.m = make(map[string][]byte)
	c.mu.Unlock()
}

// Footprint：估算占用（键长 + 值长之和）
func (c *Memory) Footprint() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Footprint(c.m)
}

func Footprint(m map[string][]byte) int64 {
	var n int64
	for k, v := range m {
		n += int64(len(k) + len(v))
	}
	return n
}
