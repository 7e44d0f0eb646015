package qptrie

import (
	"bytes"
	"sort"

	"github.com/sirgallo/dnstrie/keyenc"
)

// BuildEntry is one input record to Build.
type BuildEntry struct {
	Name  string
	Value []byte
}

type buildEntry struct {
	encKey []byte
	value  []byte
}

// buildInlineThreshold is the point below which Build just runs
// ordinary Set calls rather than paying for a sort, per §4.G.5: "For
// small inputs, fall back to ordinary sequential Set calls."
const buildInlineThreshold = 16

// Build constructs a fresh trie from a finite (name, value) sequence
// in one pass: sort by encoded key, drop all but the last occurrence
// of a duplicate, then recursively partition on the first offset
// where a group's keys disagree (§4.G.5). The result is observationally
// equivalent to inserting the same entries one at a time in order
// with last-wins semantics (Testable Property 8), though its branch
// shapes can be wider than an incrementally-grown trie's, since a
// single partition step can separate more than two bit values at once.
//
// Grounded on the teacher's batch construction absence: sirgallo/mari
// has no bulk loader, so this follows the general sort-then-partition
// shape used by radix-tree bulk builders, applied to this trie's own
// bitmap/twig representation.
func Build(entries []BuildEntry) (*Trie, error) {
	raw := make([]buildEntry, 0, len(entries))
	for _, e := range entries {
		key, err := keyenc.Encode(e.Name, keyenc.Options{Mode: keyenc.ModeReverseLabel})
		if err != nil {
			return nil, err
		}
		raw = append(raw, buildEntry{encKey: key, value: e.Value})
	}

	t := &Trie{}

	if len(raw) <= buildInlineThreshold {
		for _, e := range raw {
			t.Set(e.encKey, e.value)
		}
		return t, nil
	}

	sort.SliceStable(raw, func(i, j int) bool {
		return bytes.Compare(raw[i].encKey, raw[j].encKey) < 0
	})
	raw = dedupLastWins(raw)

	root := buildRecursive(raw, 0)
	t.root.Store(&nodeBox{n: root})
	t.count.Store(int64(len(raw)))
	return t, nil
}

// dedupLastWins keeps the last occurrence of each run of equal keys in
// a sorted slice, matching AddOrUpdate/last-write-wins semantics for
// duplicate names in the input.
func dedupLastWins(sorted []buildEntry) []buildEntry {
	out := sorted[:0:0]
	for i, e := range sorted {
		if i+1 < len(sorted) && bytes.Equal(sorted[i+1].encKey, e.encKey) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// buildRecursive partitions a sorted, deduplicated, non-empty slice on
// the smallest offset at which its keys disagree, recursing per
// resulting bit group.
func buildRecursive(entries []buildEntry, offset int) Node {
	if len(entries) == 1 {
		return &Leaf{EncodedKey: entries[0].encKey, Value: entries[0].value}
	}

	splitOffset := findSplitOffset(entries, offset)
	groups := partitionByBit(entries, splitOffset)

	var bitmap uint64
	for _, g := range groups {
		bitmap |= uint64(1) << g.bit
	}

	twigs := make([]Node, 0, len(groups))
	for _, g := range groups {
		twigs = append(twigs, buildRecursive(g.entries, splitOffset+1))
	}

	br := &Branch{KeyOffset: splitOffset}
	br.state.Store(&BranchState{Bitmap: bitmap, Twigs: twigs})
	return br
}

// findSplitOffset returns the smallest offset >= start at which not
// every entry's keyBit agrees. Always terminates: entries is
// deduplicated, so any two distinct entries diverge at some finite
// offset (at worst where the shorter one runs out and keyBit starts
// returning the end-of-key sentinel).
func findSplitOffset(entries []buildEntry, start int) int {
	for offset := start; ; offset++ {
		first := keyBit(entries[0].encKey, offset)
		for _, e := range entries[1:] {
			if keyBit(e.encKey, offset) != first {
				return offset
			}
		}
	}
}

type bitGroup struct {
	bit     uint
	entries []buildEntry
}

// partitionByBit groups entries by their bit at offset, returned in
// ascending bit order so the caller can build twigs directly in the
// slot order the bitmap invariant requires.
func partitionByBit(entries []buildEntry, offset int) []bitGroup {
	byBit := make(map[uint][]buildEntry)
	var bits []uint
	for _, e := range entries {
		bit := keyBit(e.encKey, offset)
		if _, seen := byBit[bit]; !seen {
			bits = append(bits, bit)
		}
		byBit[bit] = append(byBit[bit], e)
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })

	groups := make([]bitGroup, 0, len(bits))
	for _, b := range bits {
		groups = append(groups, bitGroup{bit: b, entries: byBit[b]})
	}
	return groups
}
