package qptrie

import (
	"testing"

	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/keyenc"
	"github.com/stretchr/testify/require"
)

func enc(t *testing.T, name string) []byte {
	t.Helper()
	key, err := keyenc.Encode(name, keyenc.Options{Mode: keyenc.ModeReverseLabel})
	require.NoError(t, err)
	return key
}

func TestTrieLookupMiss(t *testing.T) {
	tr := &Trie{}
	_, ok := tr.Lookup(enc(t, "example.com"))
	require.False(t, ok)
}

func TestTrieSetThenLookup(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "example.com"), []byte("v1"))

	v, ok := tr.Lookup(enc(t, "example.com"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
	require.Equal(t, int64(1), tr.Count())
}

func TestTrieSetOverwritesExisting(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "example.com"), []byte("v1"))
	tr.Set(enc(t, "example.com"), []byte("v2"))

	v, ok := tr.Lookup(enc(t, "example.com"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
	require.Equal(t, int64(1), tr.Count())
}

func TestTrieSetIfAbsentRefusesExisting(t *testing.T) {
	tr := &Trie{}
	require.True(t, tr.SetIfAbsent(enc(t, "example.com"), []byte("v1")))
	require.False(t, tr.SetIfAbsent(enc(t, "example.com"), []byte("v2")))

	v, _ := tr.Lookup(enc(t, "example.com"))
	require.Equal(t, []byte("v1"), v)
}

func TestTrieBranchesOnSharedPrefix(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "a.example.com"), []byte("a"))
	tr.Set(enc(t, "b.example.com"), []byte("b"))
	tr.Set(enc(t, "example.com"), []byte("root"))

	for name, want := range map[string]string{
		"a.example.com": "a",
		"b.example.com": "b",
		"example.com":   "root",
	} {
		v, ok := tr.Lookup(enc(t, name))
		require.True(t, ok, name)
		require.Equal(t, want, string(v), name)
	}
	require.Equal(t, int64(3), tr.Count())
}

func TestTrieDeleteSoleEntry(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "example.com"), []byte("v1"))

	old, removed := tr.Delete(enc(t, "example.com"))
	require.True(t, removed)
	require.Equal(t, []byte("v1"), old)
	require.True(t, tr.IsEmpty())

	_, removed = tr.Delete(enc(t, "example.com"))
	require.False(t, removed)
}

func TestTrieDeleteCollapsesTwoChildBranch(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "a.example.com"), []byte("a"))
	tr.Set(enc(t, "b.example.com"), []byte("b"))

	old, removed := tr.Delete(enc(t, "a.example.com"))
	require.True(t, removed)
	require.Equal(t, []byte("a"), old)

	v, ok := tr.Lookup(enc(t, "b.example.com"))
	require.True(t, ok)
	require.Equal(t, []byte("b"), v)
	require.Equal(t, int64(1), tr.Count())
}

func TestTrieDeleteShrinksWideBranch(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "a.example.com"), []byte("a"))
	tr.Set(enc(t, "b.example.com"), []byte("b"))
	tr.Set(enc(t, "c.example.com"), []byte("c"))

	old, removed := tr.Delete(enc(t, "b.example.com"))
	require.True(t, removed)
	require.Equal(t, []byte("b"), old)

	_, ok := tr.Lookup(enc(t, "b.example.com"))
	require.False(t, ok)

	for _, name := range []string{"a.example.com", "c.example.com"} {
		_, ok := tr.Lookup(enc(t, name))
		require.True(t, ok, name)
	}
}

func TestTrieCompareAndSwapValue(t *testing.T) {
	tr := &Trie{}
	tr.Set(enc(t, "example.com"), []byte("v1"))

	require.False(t, tr.CompareAndSwapValue(enc(t, "example.com"), []byte("v2"), []byte("wrong")))
	require.True(t, tr.CompareAndSwapValue(enc(t, "example.com"), []byte("v2"), []byte("v1")))

	v, _ := tr.Lookup(enc(t, "example.com"))
	require.Equal(t, []byte("v2"), v)
}

func TestTrieGetOrAddInvokesFactoryOnce(t *testing.T) {
	tr := &Trie{}
	calls := 0
	factory := func() []byte {
		calls++
		return []byte("first")
	}

	v1, added1 := tr.GetOrAdd(enc(t, "example.com"), factory)
	require.True(t, added1)
	require.Equal(t, []byte("first"), v1)

	v2, added2 := tr.GetOrAdd(enc(t, "example.com"), factory)
	require.False(t, added2)
	require.Equal(t, []byte("first"), v2)
	require.Equal(t, 1, calls)
}

func TestTrieAddOrUpdate(t *testing.T) {
	tr := &Trie{}
	addFactory := func() []byte { return []byte("added") }
	updateFactory := func(cur []byte) []byte { return append(append([]byte(nil), cur...), "+"...) }

	v1 := tr.AddOrUpdate(enc(t, "example.com"), addFactory, updateFactory)
	require.Equal(t, []byte("added"), v1)

	v2 := tr.AddOrUpdate(enc(t, "example.com"), addFactory, updateFactory)
	require.Equal(t, []byte("added+"), v2)
}

func TestCursorVisitsAllInAscendingOrder(t *testing.T) {
	tr := &Trie{}
	names := []string{"z.example.com", "a.example.com", "m.example.com", "example.com"}
	for _, n := range names {
		tr.Set(enc(t, n), []byte(n))
	}

	c := tr.NewCursor()
	seen := map[string]bool{}
	var last []byte
	count := 0
	for c.Next() {
		count++
		key := c.EncodedKey()
		if last != nil {
			require.True(t, string(last) <= string(key), "cursor order regressed")
		}
		last = append([]byte(nil), key...)
		name, err := keyenc.Decode(key, keyOpts)
		require.NoError(t, err)
		seen[name] = true
	}
	require.Equal(t, len(names), count)
	for _, n := range names {
		require.True(t, seen[n], n)
	}
}

func TestReverseCursorIsForwardCursorReversed(t *testing.T) {
	tr := &Trie{}
	names := []string{"z.example.com", "a.example.com", "m.example.com"}
	for _, n := range names {
		tr.Set(enc(t, n), []byte(n))
	}

	var forward []string
	fc := tr.NewCursor()
	for fc.Next() {
		forward = append(forward, string(fc.EncodedKey()))
	}

	var backward []string
	rc := tr.NewReverseCursor()
	for rc.Next() {
		backward = append(backward, string(rc.EncodedKey()))
	}

	require.Equal(t, len(forward), len(backward))
	for i := range forward {
		require.Equal(t, forward[i], backward[len(backward)-1-i])
	}
}

func TestBuildSmallUsesInlinePath(t *testing.T) {
	entries := []BuildEntry{
		{Name: "a.example.com", Value: []byte("a")},
		{Name: "b.example.com", Value: []byte("b")},
	}
	tr, err := Build(entries)
	require.NoError(t, err)
	require.Equal(t, int64(2), tr.Count())

	v, ok := tr.Lookup(enc(t, "a.example.com"))
	require.True(t, ok)
	require.Equal(t, []byte("a"), v)
}

func TestBuildLargeMatchesIncrementalInsert(t *testing.T) {
	var entries []BuildEntry
	for i := 0; i < 64; i++ {
		name := string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + ".example.com"
		entries = append(entries, BuildEntry{Name: name, Value: []byte{byte(i)}})
	}

	built, err := Build(entries)
	require.NoError(t, err)
	require.Equal(t, int64(64), built.Count())

	incremental := &Trie{}
	for _, e := range entries {
		key, err := keyenc.Encode(e.Name, keyOpts)
		require.NoError(t, err)
		incremental.Set(key, e.Value)
	}

	for _, e := range entries {
		key, err := keyenc.Encode(e.Name, keyOpts)
		require.NoError(t, err)

		bv, bok := built.Lookup(key)
		iv, iok := incremental.Lookup(key)
		require.Equal(t, iok, bok, e.Name)
		require.Equal(t, iv, bv, e.Name)
	}
}

func TestBuildDedupesLastWins(t *testing.T) {
	var entries []BuildEntry
	for i := 0; i < 20; i++ {
		entries = append(entries, BuildEntry{Name: "example.com", Value: []byte{byte(i)}})
	}
	tr, err := Build(entries)
	require.NoError(t, err)
	require.Equal(t, int64(1), tr.Count())

	v, ok := tr.Lookup(enc(t, "example.com"))
	require.True(t, ok)
	require.Equal(t, []byte{19}, v)
}

func TestBackendAddGetRemove(t *testing.T) {
	b := Open()
	require.NoError(t, b.Add("example.com", []byte("v1")))

	err := b.Add("example.com", []byte("v2"))
	require.ErrorIs(t, err, dnstrie.ErrAlreadyExists)

	v, err := b.Get("example.com")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	old, removed, err := b.TryRemove("example.com")
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, []byte("v1"), old)

	empty, err := b.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestBackendTryAddRejectsInvalidNameWithoutError(t *testing.T) {
	b := Open()
	ok, err := b.TryAdd("-bad.example.com", []byte("v1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackendEnumerateAscendingOrder(t *testing.T) {
	b := Open()
	require.NoError(t, b.Add("z.example.com", []byte("1")))
	require.NoError(t, b.Add("a.example.com", []byte("2")))

	enum, err := b.Enumerate()
	require.NoError(t, err)
	defer enum.Close()

	var keys []string
	for enum.Next() {
		keys = append(keys, enum.Key())
	}
	require.NoError(t, enum.Err())
	require.Equal(t, []string{"a.example.com", "z.example.com"}, keys)
}
