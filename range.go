package dnstrie

import "bytes"

// KeyValuePair is one result of RangeScan.
type KeyValuePair struct {
	Name  string
	Value []byte
}

// RangeOpts configures RangeScan. A nil Encode disables bound filtering
// and the scan degenerates to a bounded Enumerate. Transform, if set, is
// applied to every pair before it is appended to the result, mirroring
// the teacher's MariOpTransform.
type RangeOpts struct {
	// Encode produces the backend's comparison key for a domain name, so
	// bounds compare in the same order Enumerate yields keys in (reverse-
	// label order, not the domain string's own lexical order). Backends
	// constructed via mmapkv.Open/qptrie.Open should pass their keyenc
	// encoder here.
	Encode func(name string) ([]byte, error)

	// Limit caps the number of pairs returned; 0 means unlimited.
	Limit int

	// Transform rewrites each pair before collection.
	Transform func(KeyValuePair) KeyValuePair
}

// RangeScan collects every key/value pair in [startName, endName]
// (inclusive on both ends) from backend's ascending enumeration order,
// stopping early once endName is passed or Limit pairs have been
// collected. Grounded on the teacher's Range.go: "since the trie is
// sorted by nature, begin at the root, and recursively build the
// sorted result set between start and end." That recursive-descent
// bound pruning is reimplemented here as a linear scan over Enumerate
// since neither core exposes a seek-to-key primitive on its ordered
// walk, at the cost of a full scan rather than a subtree-only descent.
func RangeScan(backend Backend, startName, endName string, opts RangeOpts) ([]KeyValuePair, error) {
	transform := opts.Transform
	if transform == nil {
		transform = func(kv KeyValuePair) KeyValuePair { return kv }
	}

	var startKey, endKey []byte
	if opts.Encode != nil {
		var err error
		if startKey, err = opts.Encode(startName); err != nil {
			return nil, err
		}
		if endKey, err = opts.Encode(endName); err != nil {
			return nil, err
		}
		if bytes.Compare(startKey, endKey) > 0 {
			return nil, ErrInvalidArgument
		}
	}

	enumerator, err := backend.Enumerate()
	if err != nil {
		return nil, err
	}
	defer enumerator.Close()

	var results []KeyValuePair
	for enumerator.Next() {
		name := enumerator.Key()

		if opts.Encode != nil {
			key, err := opts.Encode(name)
			if err != nil {
				return nil, err
			}
			if bytes.Compare(key, startKey) < 0 {
				continue
			}
			if bytes.Compare(key, endKey) > 0 {
				break
			}
		}

		value := append([]byte(nil), enumerator.Value()...)
		results = append(results, transform(KeyValuePair{Name: name, Value: value}))

		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, enumerator.Err()
}
