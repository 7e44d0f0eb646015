package mmapkv

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"

	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/internal/log"
	"github.com/sirgallo/dnstrie/keyenc"
)

// keyOpts is the fixed encoding mode this backend stores keys under.
// The spec names reverse-label as the MMAP default (§3.1); wire-length
// keys are never stored here and serve only as BulkLoad's sort key.
var keyOpts = keyenc.Options{Mode: keyenc.ModeReverseLabel}

// Open opens (or creates, on first swap) the backend's snapshot file,
// running crash recovery on the on-disk sidecars first (§6.2, §4.E).
// Grounded on the teacher's Mari.go Open/initializeFile sequencing,
// generalized to the staging-trie + State split.
func Open(opts Opts) (*Backend, error) {
	opts.Options = opts.Options.WithDefaults()
	if opts.Filepath == "" {
		opts.Filepath = "."
	}

	target := filepath.Join(opts.Filepath, opts.FileName)
	if err := recoverCrashedFiles(target); err != nil {
		return nil, err
	}

	b := &Backend{
		filepath:          opts.Filepath,
		fileName:          opts.FileName,
		nodeCapacityHint:  opts.NodeCapacityHint,
		valueCapacityHint: opts.ValueCapacityHint,
		autoSwap:          !opts.DisableAutoSwap,
		nodePool:          newFlatNodePool(),
	}

	if fi, err := os.Stat(target); err == nil && fi.Size() > 0 {
		state, err := openState(target)
		if err != nil {
			return nil, err
		}
		b.active.Store(state)
	} else if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return b, nil
}

func (b *Backend) targetPath() string {
	return filepath.Join(b.filepath, b.fileName)
}

// acquireActive hands out a leased reference to the current published
// snapshot, or nil if no snapshot has ever been published. Readers
// never touch stagingLock (§5).
func (b *Backend) acquireActive() *State {
	v := b.active.Load()
	if v == nil {
		return nil
	}
	s := v.(*State)
	s.addRef()
	return s
}

func (b *Backend) acquireActiveNoLease() *State {
	v := b.active.Load()
	if v == nil {
		return nil
	}
	return v.(*State)
}

// ensureStagingLoadedLocked materializes staging from the current
// active snapshot on first touch (§4.F step 1). Caller holds
// stagingLock.
func (b *Backend) ensureStagingLoadedLocked() error {
	if b.staging != nil {
		return nil
	}

	active := b.acquireActive()
	defer func() {
		if active != nil {
			active.release()
		}
	}()

	t, err := loadFromSnapshot(active)
	if err != nil {
		return err
	}

	b.staging = t
	b.stagingLoaded.Store(true)
	return nil
}

// stage runs fn against the materialized staging trie under the
// staging lock, the "mutation path" of §4.F: take the lock, ensure
// staging is materialized, apply, return.
func (b *Backend) stage(fn func(*stagingTrie) error) error {
	b.stagingLock.Lock()
	defer b.stagingLock.Unlock()

	if err := b.ensureStagingLoadedLocked(); err != nil {
		return err
	}
	return fn(b.staging)
}

// maybeAutoSwap publishes immediately after a successful single-key
// mutation unless autoSwap has been disabled (bulk-load path).
func (b *Backend) maybeAutoSwap() error {
	if !b.autoSwap {
		return nil
	}
	return b.Swap()
}

// Swap publishes the current staging contents as a new snapshot file,
// per §4.F steps 2-5: clone staging, serialize, write+replace the
// target file, open the new State, then atomically install it and
// retire the old one. A no-op if staging has never been touched.
func (b *Backend) Swap() error {
	b.stagingLock.Lock()
	defer b.stagingLock.Unlock()
	return b.swapLocked()
}

func (b *Backend) swapLocked() error {
	if b.staging == nil {
		return nil
	}

	clone := b.staging.clone()

	data, err := serializeStaging(clone, b.nodeCapacityHint, b.valueCapacityHint, b.nodePool)
	if err != nil {
		return err
	}

	target := b.targetPath()
	tmpPath, err := writeTempFile(target, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := replaceAtomically(target, tmpPath); err != nil {
		return err
	}

	newState, err := openState(target)
	if err != nil {
		// The on-disk file has already been replaced, but the
		// in-memory active snapshot is left untouched. The previous
		// file's .bak hardlink stays on disk; recoverCrashedFiles
		// promotes it on a later Open only if the target is missing.
		log.Error("mmapkv.swap").Err(err).Msg("failed to open snapshot after replace, keeping previous active")
		return err
	}

	old := b.acquireActiveNoLease()
	b.active.Store(newState)

	if old != nil {
		if err := old.retireAndTryDispose(); err != nil {
			log.Warn("mmapkv.swap").Err(err).Msg("error retiring previous snapshot")
		}
	}

	return nil
}

// Add stores value at name, failing if the key already exists.
func (b *Backend) Add(name string, value []byte) error {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return err
	}

	conflict := false
	if err := b.stage(func(t *stagingTrie) error {
		if !t.insert(key, value, false) {
			conflict = true
		}
		return nil
	}); err != nil {
		return err
	}
	if conflict {
		return dnstrie.ErrAlreadyExists
	}

	return b.maybeAutoSwap()
}

// TryAdd returns false, rather than an error, for an invalid name.
func (b *Backend) TryAdd(name string, value []byte) (bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return false, nil
	}

	added := false
	if err := b.stage(func(t *stagingTrie) error {
		added = t.insert(key, value, false)
		return nil
	}); err != nil {
		return false, err
	}

	if added {
		if err := b.maybeAutoSwap(); err != nil {
			return false, err
		}
	}
	return added, nil
}

// Get returns ErrKeyNotFound if name is absent or invalid.
func (b *Backend) Get(name string) ([]byte, error) {
	value, found, err := b.TryGet(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dnstrie.ErrKeyNotFound
	}
	return value, nil
}

// TryGet reads staging if it has been materialized (giving the calling
// process read-your-writes across a mutation it just made) and falls
// back to the lock-free published snapshot otherwise, keeping pure
// reader processes lock-free end to end (§5).
func (b *Backend) TryGet(name string) ([]byte, bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, false, nil
	}

	if b.stagingLoaded.Load() {
		b.stagingLock.Lock()
		v, found := b.staging.tryGetBytes(key)
		b.stagingLock.Unlock()
		if !found {
			return nil, false, nil
		}
		return append([]byte(nil), v...), true, nil
	}

	active := b.acquireActive()
	if active == nil {
		return nil, false, nil
	}
	defer active.release()

	offset, hasValue, err := active.findNode(key)
	if err != nil {
		return nil, false, err
	}
	if !hasValue {
		return nil, false, nil
	}

	val, err := active.readValue(offset)
	if err != nil {
		return nil, false, err
	}
	return append([]byte(nil), val...), true, nil
}

// Contains reports membership without distinguishing invalid names
// from absent ones.
func (b *Backend) Contains(name string) (bool, error) {
	_, found, err := b.TryGet(name)
	return found, err
}

// GetOrAdd invokes factory at most once, under the staging lock, when
// name is missing (§6.1).
func (b *Backend) GetOrAdd(name string, factory dnstrie.AddFactory) ([]byte, bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, false, err
	}

	var result []byte
	added := false

	if err := b.stage(func(t *stagingTrie) error {
		if v, found := t.tryGetBytes(key); found {
			result = append([]byte(nil), v...)
			return nil
		}
		v := factory()
		t.insert(key, v, true)
		result = v
		added = true
		return nil
	}); err != nil {
		return nil, false, err
	}

	if added {
		if err := b.maybeAutoSwap(); err != nil {
			return nil, false, err
		}
	}
	return result, added, nil
}

// AddOrUpdate inserts via addFactory or updates via updateFactory,
// atomically under the staging lock.
func (b *Backend) AddOrUpdate(name string, addFactory dnstrie.AddFactory, updateFactory dnstrie.UpdateFactory) ([]byte, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, err
	}

	var result []byte
	if err := b.stage(func(t *stagingTrie) error {
		if cur, found := t.tryGetBytes(key); found {
			result = updateFactory(cur)
		} else {
			result = addFactory()
		}
		t.insert(key, result, true)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := b.maybeAutoSwap(); err != nil {
		return nil, err
	}
	return result, nil
}

// TryUpdate performs a compare-and-set on the stored value bytes.
func (b *Backend) TryUpdate(name string, newValue, expected []byte) (bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return false, nil
	}

	ok := false
	if err := b.stage(func(t *stagingTrie) error {
		cur, found := t.tryGetBytes(key)
		if !found || !bytes.Equal(cur, expected) {
			return nil
		}
		t.insert(key, newValue, true)
		ok = true
		return nil
	}); err != nil {
		return false, err
	}

	if ok {
		if err := b.maybeAutoSwap(); err != nil {
			return false, err
		}
	}
	return ok, nil
}

// TryRemove is idempotent: removing an absent or invalid key reports
// found=false without error.
func (b *Backend) TryRemove(name string) ([]byte, bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, false, nil
	}

	removed := false
	var old []byte
	if err := b.stage(func(t *stagingTrie) error {
		removed, old = t.remove(key)
		return nil
	}); err != nil {
		return nil, false, err
	}

	if removed {
		if err := b.maybeAutoSwap(); err != nil {
			return nil, false, err
		}
	}
	return old, removed, nil
}

// Clear empties staging only, per §6.1: the published snapshot file is
// left untouched until the next Swap().
func (b *Backend) Clear() error {
	b.stagingLock.Lock()
	defer b.stagingLock.Unlock()

	if err := b.ensureStagingLoadedLocked(); err != nil {
		return err
	}
	b.staging.clear()
	return nil
}

// IsEmpty checks staging once materialized, else the published root.
func (b *Backend) IsEmpty() (bool, error) {
	if b.stagingLoaded.Load() {
		b.stagingLock.Lock()
		empty := b.staging.isEmpty()
		b.stagingLock.Unlock()
		return empty, nil
	}

	active := b.acquireActive()
	if active == nil {
		return true, nil
	}
	defer active.release()

	root, err := readNodeAt(active.data, active.rootOffset)
	if err != nil {
		return false, err
	}
	return !root.HasValue() && !root.HasChildren(), nil
}

// Enumerate walks the published snapshot in ascending encoded-key
// order. It holds a lease for its own lifetime and is unaffected by
// concurrent mutations or swaps (§4.I, Testable Scenario 3).
func (b *Backend) Enumerate() (dnstrie.Enumerator, error) {
	return newEnumerator(b, false)
}

// ReverseEnumerate walks in descending encoded-key order.
func (b *Backend) ReverseEnumerate() (dnstrie.Enumerator, error) {
	return newEnumerator(b, true)
}

// Close retires the backend's own hold on the active snapshot. Leases
// already handed to in-flight enumerators keep the mapping alive until
// they, too, release (§4.E).
func (b *Backend) Close() error {
	if !atomic.CompareAndSwapUint32(&b.closed, 0, 1) {
		return nil
	}

	active := b.acquireActiveNoLease()
	if active == nil {
		return nil
	}
	return active.retireAndTryDispose()
}
