// 包 snapshot：内存层快照的序列化与传输存储
// 背景：部署端构建一次内存映射并写出传输块；副本启动时读取、并入内存后删除。格式仅保证一次构建/消费周期内可读。
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrNotFound：传输块不存在（热启动可选，调用方按无操作处理）
var ErrNotFound = errors.New("snapshot not found")

// Store：传输块的存放位置
type Store interface {
	Write(ctx context.Context, blob []byte) error
	Read(ctx context.Context) ([]byte, error)
	// Remove 对不存在的块不报错
	Remove(ctx context.Context) error
	Location() string
}

// Encode：键 → 压缩制品映射序列化为 CBOR
func Encode(m map[string][]byte) ([]byte, error) {
	if m == nil {
		m = map[string][]byte{}
	}
	b, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode：CBOR → 映射
func Decode(b []byte) (map[string][]byte, error) {
	m := map[string][]byte{}
	if err := cbor.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return m, nil
}
