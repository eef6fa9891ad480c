package tier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// 文档注释：磁盘层，目录下每个文章键一个文件，内容为压缩制品
// 背景：部署层每次构建重建目录；运行期层只追加。写入走临时文件 + rename，避免请求读到半个文件。
type Disk struct {
	dir string
}

func NewDisk(dir string) *Disk { return &Disk{dir: dir} }

func (d *Disk) Dir() string { return d.dir }

// Ensure：目录不存在时创建
func (d *Disk) Ensure() error { return os.MkdirAll(d.dir, 0o755) }

// Reset：删除并重建目录，保证一个干净的分区
func (d *Disk) Reset() error {
	if err := os.RemoveAll(d.dir); err != nil {
		return fmt.Errorf("remove %s: %w", d.dir, err)
	}
	return d.Ensure()
}

func (d *Disk) path(key string) string { return filepath.Join(d.dir, key) }

func (d *Disk) Put(key string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, d.path(key)); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

// Get：读取制品；文件不存在返回 ok=false 且无错误
func (d *Disk) Get(key string) ([]byte, bool, error) {
	b, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (d *Disk) Has(key string) bool {
	fi, err := os.Stat(d.path(key))
	return err == nil && fi.Mode().IsRegular()
}

// Keys：目录内已缓存的文章键（排序）；目录不存在返回空
func (d *Disk) Keys() ([]string, error) {
	ents, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Size：目录内制品总字节数
func (d *Disk) Size() (int64, error) {
	keys, err := d.Keys()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		fi, err := os.Stat(d.path(k))
		if err != nil {
			continue
		}
		n += fi.Size()
	}
	return n, nil
}
