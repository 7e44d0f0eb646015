package mmapkv

import (
	"os"
	"path/filepath"
	"testing"

	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/internal/config"
	"github.com/stretchr/testify/require"
)

func opts(dir, fileName string) Opts {
	return Opts{Options: config.Options{Filepath: dir, FileName: fileName}}
}

func tempBackend(t *testing.T) *Backend {
	t.Helper()
	dir := t.TempDir()

	b, err := Open(opts(dir, "test.mmap"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	return b
}

func TestAddThenGet(t *testing.T) {
	b := tempBackend(t)

	require.NoError(t, b.Add("example.com", []byte("v1")))

	v, err := b.Get("example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestAddDuplicateFails(t *testing.T) {
	b := tempBackend(t)

	require.NoError(t, b.Add("example.com", []byte("v1")))
	err := b.Add("example.com", []byte("v2"))
	require.ErrorIs(t, err, dnstrie.ErrAlreadyExists)
}

func TestTryAddRejectsInvalidNameWithoutError(t *testing.T) {
	b := tempBackend(t)

	ok, err := b.TryAdd("-bad.example.com", []byte("v1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTryGetMissingKey(t *testing.T) {
	b := tempBackend(t)

	_, found, err := b.TryGet("missing.example.com")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetOrAddInvokesFactoryOnce(t *testing.T) {
	b := tempBackend(t)

	calls := 0
	factory := func() []byte {
		calls++
		return []byte("first")
	}

	v1, added1, err := b.GetOrAdd("example.com", factory)
	require.NoError(t, err)
	require.True(t, added1)
	require.Equal(t, []byte("first"), v1)

	v2, added2, err := b.GetOrAdd("example.com", factory)
	require.NoError(t, err)
	require.False(t, added2)
	require.Equal(t, []byte("first"), v2)
	require.Equal(t, 1, calls)
}

func TestTryUpdateCompareAndSwap(t *testing.T) {
	b := tempBackend(t)

	require.NoError(t, b.Add("example.com", []byte("v1")))

	ok, err := b.TryUpdate("example.com", []byte("v2"), []byte("wrong"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = b.TryUpdate("example.com", []byte("v2"), []byte("v1"))
	require.NoError(t, err)
	require.True(t, ok)

	v, err := b.Get("example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestTryRemoveIsIdempotent(t *testing.T) {
	b := tempBackend(t)

	require.NoError(t, b.Add("example.com", []byte("v1")))

	old, removed, err := b.TryRemove("example.com")
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, []byte("v1"), old)

	_, removed, err = b.TryRemove("example.com")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestClearEmptiesStagingOnly(t *testing.T) {
	b := tempBackend(t)

	require.NoError(t, b.Add("example.com", []byte("v1")))

	empty, err := b.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)

	require.NoError(t, b.Clear())

	empty, err = b.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestSwapSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(opts(dir, "persist.mmap"))
	require.NoError(t, err)

	require.NoError(t, b.Add("a.example.com", []byte("1")))
	require.NoError(t, b.Add("b.example.com", []byte("2")))
	require.NoError(t, b.Close())

	reopened, err := Open(opts(dir, "persist.mmap"))
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get("a.example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestOpenRejectsCorruptMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.mmap")

	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0600))

	_, err := Open(opts(dir, "corrupt.mmap"))
	require.Error(t, err)
}

func TestEnumerateIsIsolatedFromConcurrentSwap(t *testing.T) {
	b := tempBackend(t)

	for i := 0; i < 16; i++ {
		name := string(rune('a'+i)) + ".example.com"
		require.NoError(t, b.Add(name, []byte{byte(i)}))
	}

	enum, err := b.Enumerate()
	require.NoError(t, err)
	defer enum.Close()

	require.NoError(t, b.Add("late.example.com", []byte("late")))

	count := 0
	prevKey := ""
	for enum.Next() {
		count++
		require.GreaterOrEqual(t, enum.Key(), prevKey)
		prevKey = enum.Key()
	}
	require.NoError(t, enum.Err())
	require.Equal(t, 16, count)
}

func TestReverseEnumerateOrdersDescending(t *testing.T) {
	b := tempBackend(t)

	require.NoError(t, b.Add("a.example.com", []byte("1")))
	require.NoError(t, b.Add("z.example.com", []byte("2")))

	enum, err := b.ReverseEnumerate()
	require.NoError(t, err)
	defer enum.Close()

	var keys []string
	for enum.Next() {
		keys = append(keys, enum.Key())
	}
	require.NoError(t, enum.Err())
	require.Len(t, keys, 2)
	require.Equal(t, "z.example.com", keys[0])
	require.Equal(t, "a.example.com", keys[1])
}

func TestDisableAutoSwapDefersPublishUntilExplicitSwap(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(Opts{Options: config.Options{Filepath: dir, FileName: "test.mmap", DisableAutoSwap: true}})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })

	require.NoError(t, b.Add("example.com", []byte("v1")))

	target := filepath.Join(dir, "test.mmap")
	_, statErr := os.Stat(target)
	require.True(t, os.IsNotExist(statErr), "swap should not have run yet")

	require.NoError(t, b.Swap())
	_, statErr = os.Stat(target)
	require.NoError(t, statErr)

	v, err := b.Get("example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestBulkLoadStoresEveryEntry(t *testing.T) {
	b := tempBackend(t)

	entries := []BulkEntry{
		{Name: "www.example.com", Value: []byte("1")},
		{Name: "api.example.org", Value: []byte("2")},
		{Name: "mail.example.com", Value: []byte("3")},
	}
	require.NoError(t, b.BulkLoad(entries))

	for _, e := range entries {
		v, err := b.Get(e.Name)
		require.NoError(t, err)
		require.Equal(t, e.Value, v)
	}
}

func TestBulkLoadRejectsInvalidNameWithoutPartialPublish(t *testing.T) {
	b := tempBackend(t)

	entries := []BulkEntry{
		{Name: "good.example.com", Value: []byte("1")},
		{Name: "-bad.example.com", Value: []byte("2")},
	}
	err := b.BulkLoad(entries)
	require.Error(t, err)

	_, found, err := b.TryGet("good.example.com")
	require.NoError(t, err)
	require.False(t, found, "a failed BulkLoad must not publish any of its entries")
}
