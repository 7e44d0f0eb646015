package mmapkv

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/sirgallo/dnstrie/keyenc"
	"github.com/stretchr/testify/require"
)

// Concurrent/parallel stress tests, grounded on the teacher's
// tests/MariConcurrent_test.go and tests/MariParallel_test.go: chunk a
// name/value population across writer and reader goroutines against one
// shared Backend, matching §5's model of readers holding a leased
// snapshot (acquireActive) while writers serialize through stagingLock.

const (
	mmapConcurrentWriterGoroutines = 8
	mmapConcurrentReaderGoroutines = 16
	mmapConcurrentPerWriter        = 64
)

// TestBackendConcurrentWritesThenReads mirrors the teacher's "Test
// Write Operations" / "Test Read Operations" subtests: every writer
// goroutine adds its own disjoint chunk of names (autoSwap publishing
// each one), then every name is confirmed visible from a fan-out of
// readers.
func TestBackendConcurrentWritesThenReads(t *testing.T) {
	b := tempBackend(t)

	total := mmapConcurrentWriterGoroutines * mmapConcurrentPerWriter
	names := make([]string, total)
	for i := range names {
		names[i] = fmt.Sprintf("w%d.concurrent%d.example.com", i, i%29)
	}

	t.Run("Write Operations", func(t *testing.T) {
		var wg sync.WaitGroup
		for g := 0; g < mmapConcurrentWriterGoroutines; g++ {
			part := names[g*mmapConcurrentPerWriter : (g+1)*mmapConcurrentPerWriter]
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i, name := range part {
					require.NoError(t, b.Add(name, []byte(name)), i)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("Read Operations", func(t *testing.T) {
		var wg sync.WaitGroup
		chunk := len(names) / mmapConcurrentReaderGoroutines
		for g := 0; g < mmapConcurrentReaderGoroutines; g++ {
			part := names[g*chunk : (g+1)*chunk]
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, name := range part {
					v, err := b.Get(name)
					require.NoError(t, err)
					require.Equal(t, []byte(name), v)
				}
			}()
		}
		wg.Wait()
	})
}

// TestBackendConcurrentReadersDuringSwap keeps an Enumerate lease open
// (a leased snapshot per §4.E) while other goroutines keep adding keys
// and triggering autoSwap publishes underneath it, asserting the leased
// enumerator's view stays internally consistent (sorted, no duplicate
// or torn keys) the way TestEnumerateIsIsolatedFromConcurrentSwap checks
// sequentially but now under concurrent writers.
func TestBackendConcurrentReadersDuringSwap(t *testing.T) {
	b := tempBackend(t)

	for i := 0; i < 32; i++ {
		require.NoError(t, b.Add(fmt.Sprintf("seed%d.example.com", i), []byte{byte(i)}))
	}

	var writeWG, readWG sync.WaitGroup

	writeWG.Add(mmapConcurrentWriterGoroutines)
	for g := 0; g < mmapConcurrentWriterGoroutines; g++ {
		goroutine := g
		go func() {
			defer writeWG.Done()
			for i := 0; i < mmapConcurrentPerWriter; i++ {
				name := fmt.Sprintf("late%d-%d.example.org", goroutine, i)
				require.NoError(t, b.Add(name, []byte(name)))
			}
		}()
	}

	readWG.Add(mmapConcurrentReaderGoroutines)
	for g := 0; g < mmapConcurrentReaderGoroutines; g++ {
		go func() {
			defer readWG.Done()
			enum, err := b.Enumerate()
			require.NoError(t, err)
			defer enum.Close()

			// Order is by encoded key (TLD first), not by the decoded
			// name string: every .com seed sorts before every .org name.
			var prevKey []byte
			for enum.Next() {
				key, err := keyenc.Encode(enum.Key(), keyOpts)
				require.NoError(t, err)
				require.GreaterOrEqual(t, bytes.Compare(key, prevKey), 0)
				prevKey = key
			}
			require.NoError(t, enum.Err())
		}()
	}

	writeWG.Wait()
	readWG.Wait()
}

// TestBackendConcurrentGetOrAddSingleWinner drives GetOrAdd on the same
// name from every goroutine at once; exactly one factory call may
// publish, matching the sequential invariant in
// TestGetOrAddInvokesFactoryOnce under contention.
func TestBackendConcurrentGetOrAddSingleWinner(t *testing.T) {
	b := tempBackend(t)

	var calls int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make([][]byte, mmapConcurrentReaderGoroutines)

	wg.Add(mmapConcurrentReaderGoroutines)
	for g := 0; g < mmapConcurrentReaderGoroutines; g++ {
		idx := g
		go func() {
			defer wg.Done()
			v, _, err := b.GetOrAdd("contended.example.com", func() []byte {
				mu.Lock()
				calls++
				mu.Unlock()
				return []byte("winner")
			})
			require.NoError(t, err)
			results[idx] = v
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), calls)
	for _, v := range results {
		require.Equal(t, []byte("winner"), v)
	}
}
