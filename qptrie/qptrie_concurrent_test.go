package qptrie

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirgallo/dnstrie/keyenc"
	"github.com/stretchr/testify/require"
)

// Concurrent/parallel stress tests, grounded on the teacher's
// tests/MariConcurrent_test.go and tests/MariParallel_test.go: chunk a
// name/value population across goroutines, drive writers and readers
// against a shared Trie with a sync.WaitGroup barrier per phase, and
// assert the invariants the CAS-retry loop in upsert (trie.go) is
// supposed to hold under a lost race.

const (
	concurrentWriterGoroutines = 8
	concurrentReaderGoroutines = 16
	concurrentInputSize        = 4096
)

func concurrentNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("host%d.stress%d.example.com", i, i%37)
	}
	return names
}

func concurrentKey(t *testing.T, name string) []byte {
	t.Helper()
	key, err := keyenc.Encode(name, keyenc.Options{Mode: keyenc.ModeReverseLabel})
	require.NoError(t, err)
	return key
}

// TestTrieConcurrentSetNeverLosesASibling exercises the exact scenario
// the GROW-case CAS-fail path must survive: many goroutines inserting
// names that share prefixes (and so frequently collide on the same
// branch offset) must all become visible, even when a branch's CAS
// loses a race and has to restart instead of falling through into
// NEW BRANCH construction.
func TestTrieConcurrentSetNeverLosesASibling(t *testing.T) {
	tr := &Trie{}
	names := concurrentNames(concurrentWriterGoroutines * concurrentInputSize)

	var wg sync.WaitGroup
	chunk := len(names) / concurrentWriterGoroutines
	for g := 0; g < concurrentWriterGoroutines; g++ {
		part := names[g*chunk : (g+1)*chunk]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range part {
				tr.Set(concurrentKey(t, name), []byte(name))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(len(names)), tr.Count())

	for _, name := range names {
		v, ok := tr.Lookup(concurrentKey(t, name))
		require.True(t, ok, "lost sibling for %q", name)
		require.Equal(t, []byte(name), v)
	}
}

// TestTrieConcurrentReadersDuringWrites runs writers and lookups on
// disjoint keys at the same time, matching the teacher's "Test Write
// Operations" / "Test Read Operations" subtests structure.
func TestTrieConcurrentReadersDuringWrites(t *testing.T) {
	tr := &Trie{}
	seeded := concurrentNames(concurrentReaderGoroutines * 64)
	for _, name := range seeded {
		tr.Set(concurrentKey(t, name), []byte(name))
	}

	fresh := make([]string, concurrentWriterGoroutines*64)
	for i := range fresh {
		fresh[i] = fmt.Sprintf("new%d.stress.example.org", i)
	}

	var writeWG, readWG sync.WaitGroup

	writeWG.Add(concurrentWriterGoroutines)
	wchunk := len(fresh) / concurrentWriterGoroutines
	for g := 0; g < concurrentWriterGoroutines; g++ {
		part := fresh[g*wchunk : (g+1)*wchunk]
		go func() {
			defer writeWG.Done()
			for _, name := range part {
				tr.Set(concurrentKey(t, name), []byte(name))
			}
		}()
	}

	readWG.Add(concurrentReaderGoroutines)
	rchunk := len(seeded) / concurrentReaderGoroutines
	for g := 0; g < concurrentReaderGoroutines; g++ {
		part := seeded[g*rchunk : (g+1)*rchunk]
		go func() {
			defer readWG.Done()
			for _, name := range part {
				v, ok := tr.Lookup(concurrentKey(t, name))
				if ok {
					require.Equal(t, []byte(name), v)
				}
			}
		}()
	}

	writeWG.Wait()
	readWG.Wait()

	for _, name := range fresh {
		_, ok := tr.Lookup(concurrentKey(t, name))
		require.True(t, ok, "lost write for %q", name)
	}
}

// TestTrieConcurrentGetOrAddPublishesOnce drives the same key from
// every writer goroutine at once. Under contention the factory may run
// more than once (see Trie.GetOrAdd), but exactly one call reports
// added=true and every caller gets the one published value.
func TestTrieConcurrentGetOrAddPublishesOnce(t *testing.T) {
	tr := &Trie{}
	key := concurrentKey(t, "contended.example.com")

	var calls, addedCount int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make([][]byte, concurrentReaderGoroutines)

	wg.Add(concurrentReaderGoroutines)
	for g := 0; g < concurrentReaderGoroutines; g++ {
		idx := g
		go func() {
			defer wg.Done()
			v, added := tr.GetOrAdd(key, func() []byte {
				mu.Lock()
				calls++
				mu.Unlock()
				return []byte("winner")
			})
			if added {
				mu.Lock()
				addedCount++
				mu.Unlock()
			}
			results[idx] = v
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), addedCount)
	require.GreaterOrEqual(t, calls, int64(1))
	for _, v := range results {
		require.Equal(t, []byte("winner"), v)
	}
}
