package mmapkv

import (
	"bytes"
	"sort"

	"github.com/sirgallo/dnstrie/keyenc"
)

// wireKeyOpts is used only to choose BulkLoad's insertion order, never
// to store a key: the on-disk format is always keyOpts (reverse-label).
var wireKeyOpts = keyenc.Options{Mode: keyenc.ModeWireLength}

// BulkEntry is one name/value pair submitted to BulkLoad.
type BulkEntry struct {
	Name  string
	Value []byte
}

// BulkLoad stages every entry and publishes them with a single Swap(),
// regardless of the backend's autoSwap setting, per SPEC_FULL.md's
// wire-length TLD-grouping bulk-loading fast path (§4.F / §3 Wire-length
// mode notes). Entries are sorted by their ModeWireLength key -- which
// groups same-TLD names under a shared leading prefix, TLD-first --
// before being inserted into staging under their normal ModeReverseLabel
// storage key. The published file does not depend on that order:
// layoutBFS visits each node's children by byte value, so any insertion
// order yields the same layout. The wire-length key is only a sort key
// here; it is never persisted.
//
// BulkLoad fails closed: if any name is invalid, it returns that error
// before staging anything, so a bad entry never produces a partial
// publish.
func (b *Backend) BulkLoad(entries []BulkEntry) error {
	type keyed struct {
		wireKey []byte
		revKey  []byte
		value   []byte
	}

	keyedEntries := make([]keyed, len(entries))
	for i, e := range entries {
		wireKey, err := keyenc.Encode(e.Name, wireKeyOpts)
		if err != nil {
			return err
		}
		revKey, err := keyenc.Encode(e.Name, keyOpts)
		if err != nil {
			return err
		}
		keyedEntries[i] = keyed{wireKey: wireKey, revKey: revKey, value: e.Value}
	}

	sort.Slice(keyedEntries, func(i, j int) bool {
		return bytes.Compare(keyedEntries[i].wireKey, keyedEntries[j].wireKey) < 0
	})

	if err := b.stage(func(t *stagingTrie) error {
		for _, e := range keyedEntries {
			t.insert(e.revKey, e.value, true)
		}
		return nil
	}); err != nil {
		return err
	}

	return b.Swap()
}
