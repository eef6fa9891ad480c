// 包 tier：单层缓存的预算、存储目标与贪心填充
package tier

// 文档注释：层预算
// 约束：Remaining 单调不增且不为负；准入条件为 remaining-size > 0（严格大于），等于零同样拒绝。
type Budget struct {
	ceiling   int64
	remaining int64
}

func NewBudget(ceiling int64) *Budget {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Budget{ceiling: ceiling, remaining: ceiling}
}

// Fits：size 字节的制品能否准入
func (b *Budget) Fits(size int64) bool { return b.remaining-size > 0 }

// Charge：扣减预算；超出部分截断为零（用于载入快照时的估算扣减）
func (b *Budget) Charge(size int64) {
	if size <= 0 {
		return
	}
	b.remaining -= size
	if b.remaining < 0 {
		b.remaining = 0
	}
}

func (b *Budget) Ceiling() int64   { return b.ceiling }
func (b *Budget) Remaining() int64 { return b.remaining }
func (b *Budget) Used() int64      { return b.ceiling - b.remaining }
