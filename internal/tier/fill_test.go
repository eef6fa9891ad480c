package tier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"edge-cdn/internal/origin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identity 不压缩，便于精确控制计费大小
type identity struct{}

func (identity) Compress(b []byte) ([]byte, error)   { return append([]byte(nil), b...), nil }
func (identity) Decompress(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

type fakeOrigin struct {
	sizes  map[string]int
	status map[string]int
	calls  []string
}

func (f *fakeOrigin) Fetch(_ context.Context, key string) (origin.Response, error) {
	f.calls = append(f.calls, key)
	if s, ok := f.status[key]; ok {
		return origin.Response{Status: s}, nil
	}
	n, ok := f.sizes[key]
	if !ok {
		return origin.Response{}, errors.New("connection refused")
	}
	return origin.Response{Status: 200, Body: bytes.Repeat([]byte{'x'}, n)}, nil
}

func rankKeys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("article-%d", i+1)
	}
	return out
}

func uniformOrigin(keys []string, size int) *fakeOrigin {
	f := &fakeOrigin{sizes: map[string]int{}, status: map[string]int{}}
	for _, k := range keys {
		f.sizes[k] = size
	}
	return f
}

func TestBudgetStrictAdmission(t *testing.T) {
	b := NewBudget(100)
	assert.True(t, b.Fits(99))
	assert.False(t, b.Fits(100), "remaining-size must stay strictly positive")
	b.Charge(40)
	assert.Equal(t, int64(60), b.Remaining())
	assert.Equal(t, int64(40), b.Used())
	b.Charge(1000)
	assert.Equal(t, int64(0), b.Remaining(), "never negative")
	assert.Equal(t, int64(100), b.Ceiling())
}

func TestFillHaltsAtFirstOverflow(t *testing.T) {
	keys := rankKeys(500)
	src := uniformOrigin(keys, 1024)
	mem := NewMemory()

	res, err := Fill(context.Background(), FillParams{
		Tier: "memory", Candidates: keys, Budget: NewBudget(2*1024 + 1),
		Fetcher: src, Codec: identity{}, Sink: mem,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"article-1", "article-2"}, res.Admitted)
	assert.True(t, res.Halted)
	assert.Equal(t, "article-3", res.HaltedAt)
	assert.Equal(t, 2, mem.Len())
	assert.Equal(t, []string{"article-1", "article-2", "article-3"}, src.calls, "nothing after the halt is fetched")
	assert.Equal(t, int64(1), res.Remaining)
}

func TestFillExactBudgetAdmitsOnlyStrictlyBelow(t *testing.T) {
	keys := rankKeys(5)
	res, err := Fill(context.Background(), FillParams{
		Tier: "memory", Candidates: keys, Budget: NewBudget(2 * 1024),
		Fetcher: uniformOrigin(keys, 1024), Codec: identity{}, Sink: NewMemory(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"article-1"}, res.Admitted)
	assert.Equal(t, "article-2", res.HaltedAt)
}

func TestFillSkipsNonSuccessStatusWithoutHalting(t *testing.T) {
	keys := rankKeys(6)
	src := uniformOrigin(keys, 10)
	src.status["article-5"] = 404
	mem := NewMemory()

	res, err := Fill(context.Background(), FillParams{
		Tier: "memory", Candidates: keys, Budget: NewBudget(1 << 20),
		Fetcher: src, Codec: identity{}, Sink: mem,
	})
	require.NoError(t, err)
	assert.False(t, res.Halted)
	assert.Equal(t, 1, res.SkippedOrigin)
	assert.False(t, mem.Has("article-5"))
	for _, k := range []string{"article-1", "article-2", "article-3", "article-4", "article-6"} {
		assert.True(t, mem.Has(k), k)
	}
}

func TestFillSkipsTransportErrors(t *testing.T) {
	src := &fakeOrigin{sizes: map[string]int{"a": 5, "c": 5}, status: map[string]int{}}
	res, err := Fill(context.Background(), FillParams{
		Tier: "disk", Candidates: []string{"a", "b", "c"}, Budget: NewBudget(100),
		Fetcher: src, Codec: identity{}, Sink: NewMemory(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, res.Admitted)
	assert.Equal(t, 1, res.SkippedOrigin)
}

func TestFillPresentCandidatesAreNotFetchedOrCharged(t *testing.T) {
	keys := rankKeys(4)
	src := uniformOrigin(keys, 10)
	budget := NewBudget(1000)

	res, err := Fill(context.Background(), FillParams{
		Tier: "runtime", Candidates: keys, Budget: budget,
		Present: func(k string) bool { return k == "article-2" },
		Fetcher: src, Codec: identity{}, Sink: NewMemory(),
	})
	require.NoError(t, err)
	assert.NotContains(t, src.calls, "article-2")
	assert.Equal(t, 1, res.SkippedPresent)
	assert.Equal(t, int64(30), res.AdmittedBytes)
	assert.Equal(t, int64(970), budget.Remaining())
}

func TestFillDoesNotBinPackAfterHalt(t *testing.T) {
	src := &fakeOrigin{sizes: map[string]int{"small": 10, "huge": 500, "tiny": 1}, status: map[string]int{}}
	res, err := Fill(context.Background(), FillParams{
		Tier: "memory", Candidates: []string{"small", "huge", "tiny"}, Budget: NewBudget(100),
		Fetcher: src, Codec: identity{}, Sink: NewMemory(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"small"}, res.Admitted)
	assert.Equal(t, "huge", res.HaltedAt)
}

func TestFillNeverExceedsBudget(t *testing.T) {
	sizes := []int{7, 13, 1, 29, 3, 17, 11, 5, 23, 2}
	for ceiling := int64(1); ceiling <= 120; ceiling++ {
		src := &fakeOrigin{sizes: map[string]int{}, status: map[string]int{}}
		var keys []string
		for i, s := range sizes {
			k := fmt.Sprintf("k%d", i)
			keys = append(keys, k)
			src.sizes[k] = s
		}
		res, err := Fill(context.Background(), FillParams{
			Tier: "prop", Candidates: keys, Budget: NewBudget(ceiling),
			Fetcher: src, Codec: identity{}, Sink: NewMemory(),
		})
		require.NoError(t, err)
		assert.Less(t, res.AdmittedBytes, ceiling)
		assert.Equal(t, ceiling-res.AdmittedBytes, res.Remaining)
		if res.Halted {
			assert.Equal(t, keys[len(res.Admitted)], res.HaltedAt, "halt is the first unfittable candidate")
		}
	}
}

func TestFillCancelledContext(t *testing.T) {
	keys := rankKeys(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fill(ctx, FillParams{
		Tier: "memory", Candidates: keys, Budget: NewBudget(100),
		Fetcher: uniformOrigin(keys, 1), Codec: identity{}, Sink: NewMemory(),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFillIntoDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	d := NewDisk(dir)
	require.NoError(t, d.Reset())
	keys := rankKeys(3)

	res, err := Fill(context.Background(), FillParams{
		Tier: "deploy", Candidates: keys, Budget: NewBudget(1000),
		Fetcher: uniformOrigin(keys, 4), Codec: identity{}, Sink: d,
	})
	require.NoError(t, err)
	assert.Len(t, res.Admitted, 3)

	got, err := d.Keys()
	require.NoError(t, err)
	assert.Equal(t, keys, got)
	b, ok, err := d.Get("article-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("xxxx"), b)
	size, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)
}

func TestFillSinkErrorSurfaces(t *testing.T) {
	d := NewDisk(filepath.Join(t.TempDir(), "never-created"))
	keys := rankKeys(1)
	_, err := Fill(context.Background(), FillParams{
		Tier: "deploy", Candidates: keys, Budget: NewBudget(100),
		Fetcher: uniformOrigin(keys, 1), Codec: identity{}, Sink: d,
	})
	assert.Error(t, err)
}

func TestDiskResetDropsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale"), []byte("old"), 0o644))
	d := NewDisk(dir)
	require.NoError(t, d.Reset())
	assert.False(t, d.Has("stale"))
	keys, err := d.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDiskGetMissing(t *testing.T) {
	d := NewDisk(t.TempDir())
	_, ok, err := d.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)
	keys, err := NewDisk(filepath.Join(t.TempDir(), "nope")).Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryMergeAndFootprint(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put("a", []byte("12")))
	m.Merge(map[string][]byte{"b": []byte("345"), "a": []byte("9")})
	assert.Equal(t, 2, m.Len())
	v, _ := m.Get("a")
	assert.Equal(t, []byte("9"), v)
	assert.Equal(t, int64(1+1+1+3), m.Footprint())

	snap := m.Snapshot()
	m.Clear()
	assert.Zero(t, m.Len())
	assert.Len(t, snap, 2, "snapshot is detached from the live map")
}
