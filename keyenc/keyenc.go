// Package keyenc validates DNS-style domain names and encodes them into
// the canonical byte keys consumed by both trie cores (component A of
// the design, §4.A). It owns the fixed 256→41 character table and both
// concatenation orders: reverse-label (the stored key of both cores) and
// wire-length (used only as a bulk-load sort key).
package keyenc

import (
	"fmt"
	"strconv"
	"strings"

	dnstrie "github.com/sirgallo/dnstrie"
)

// Mode selects the byte key concatenation order (§3.1).
type Mode int

const (
	// ModeReverseLabel traverses labels right-to-left, mapping each
	// character through the table and emitting a 0 after every label,
	// the last one included. This is the encoding both backends store.
	ModeReverseLabel Mode = iota

	// ModeWireLength emits [labelLen][mapped bytes...] per label,
	// TLD-first, without a terminator. Used as mmapkv BulkLoad's sort key.
	ModeWireLength
)

// MaxDomainLength is the RFC 1035 §3.1 name-length bound.
const MaxDomainLength = 255

// MaxLabelLength is the RFC 1035 §3.1 label-length bound.
const MaxLabelLength = 63

// MaxLabelCount is the RFC 1035 §2.3.4 label-count bound.
const MaxLabelCount = 127

// wildcardCode is the single byte emitted for a lone "*" label.
const wildcardCode = 1

// charTable maps an input byte to its 0..40 code, or -1 if the byte has
// no code in the DNS hostname alphabet. '*' is intentionally excluded
// here: the wildcard token is only valid as an entire label and is
// handled as a special case, never as a character within a longer label.
var charTable [256]int16

func init() {
	for i := range charTable {
		charTable[i] = -1
	}

	charTable['.'] = 0
	charTable['-'] = 2
	charTable['/'] = 3

	for d := byte('0'); d <= '9'; d++ {
		charTable[d] = int16(4 + (d - '0'))
	}

	charTable['_'] = 14

	for c := byte('a'); c <= 'z'; c++ {
		charTable[c] = int16(15 + (c - 'a'))
	}
	for c := byte('A'); c <= 'Z'; c++ {
		charTable[c] = int16(15 + (c - 'A'))
	}
}

// Options configures Encode.
type Options struct {
	Mode Mode
}

// Encode validates d and produces its canonical byte key. An empty
// string encodes to an empty key representing the root node. Domain
// strings are matched case-insensitively: upper and lower-case letters
// share a code, so "WWW.Example.COM" and "www.example.com" encode
// identically.
func Encode(d string, opts Options) ([]byte, error) {
	if len(d) == 0 {
		return []byte{}, nil
	}
	if len(d) > MaxDomainLength {
		return nil, dnstrie.NewInvalidDomainNameError(d, dnstrie.KindLength)
	}

	labels, err := splitLabels(d)
	if err != nil {
		return nil, err
	}
	if len(labels) > MaxLabelCount {
		return nil, dnstrie.NewInvalidDomainNameError(d, dnstrie.KindLabelCount)
	}

	mapped := make([][]byte, len(labels))
	for i, label := range labels {
		mb, err := encodeLabel(d, label)
		if err != nil {
			return nil, err
		}
		mapped[i] = mb
	}

	switch opts.Mode {
	case ModeWireLength:
		return encodeWire(mapped), nil
	default:
		return encodeReverseLabel(mapped), nil
	}
}

// splitLabels splits on '.' and rejects empty labels (leading dot,
// trailing dot, consecutive dots) and oversized labels up front; hyphen
// and character validation happens per-label in encodeLabel so that a
// wildcard label can be recognized before hyphen checks apply to it.
func splitLabels(d string) ([]string, error) {
	labels := strings.Split(d, ".")
	for _, label := range labels {
		if len(label) == 0 {
			return nil, dnstrie.NewInvalidDomainNameError(d, dnstrie.KindLabelLength)
		}
		if len(label) > MaxLabelLength {
			return nil, dnstrie.NewInvalidDomainNameError(d, dnstrie.KindLabelLength)
		}
	}
	return labels, nil
}

// encodeLabel validates and maps a single label's characters, resolving
// escapes (\DDD, \X) on the slow path described in §4.G.6.
func encodeLabel(fullName, label string) ([]byte, error) {
	if label == "*" {
		return []byte{wildcardCode}, nil
	}

	if label[0] == '-' || label[len(label)-1] == '-' {
		return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindHyphen)
	}

	if strings.IndexByte(label, '\\') >= 0 {
		return encodeLabelSlow(fullName, label)
	}
	return encodeLabelFast(fullName, label)
}

// encodeLabelFast is the no-escape path: one table lookup per byte.
func encodeLabelFast(fullName, label string) ([]byte, error) {
	out := make([]byte, 0, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c == '*' {
			// '*' only has meaning as a whole label; inside a longer
			// label it is just an invalid character.
			return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindCharacter)
		}
		code := charTable[c]
		if code < 0 {
			return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindCharacter)
		}
		out = append(out, byte(code))
	}
	return out, nil
}

// encodeLabelSlow resolves RFC 1035 §5.1 escapes: \DDD (decimal octet,
// 0..255) and \X (literal byte X, re-validated through the table).
func encodeLabelSlow(fullName, label string) ([]byte, error) {
	out := make([]byte, 0, len(label))

	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != '\\' {
			if c == '*' {
				return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindCharacter)
			}
			code := charTable[c]
			if code < 0 {
				return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindCharacter)
			}
			out = append(out, byte(code))
			continue
		}

		// c == '\\'
		rest := label[i+1:]
		if len(rest) >= 3 && isDigit(rest[0]) && isDigit(rest[1]) && isDigit(rest[2]) {
			n, convErr := strconv.Atoi(rest[:3])
			if convErr != nil || n > 255 {
				return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindEscape)
			}
			code := charTable[byte(n)]
			if code < 0 {
				return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindEscape)
			}
			out = append(out, byte(code))
			i += 3
			continue
		}

		if len(rest) >= 1 {
			literal := rest[0]
			code := charTable[literal]
			if code < 0 {
				return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindEscape)
			}
			out = append(out, byte(code))
			i += 1
			continue
		}

		return nil, dnstrie.NewInvalidDomainNameError(fullName, dnstrie.KindEscape)
	}

	return out, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// encodeReverseLabel concatenates labels right-to-left with a 0
// separator terminating each label (§3.1 reverse-label mode).
func encodeReverseLabel(mapped [][]byte) []byte {
	total := 0
	for _, m := range mapped {
		total += len(m) + 1
	}

	key := make([]byte, 0, total)
	for i := len(mapped) - 1; i >= 0; i-- {
		key = append(key, mapped[i]...)
		key = append(key, 0)
	}
	return key
}

// encodeWire concatenates labels TLD-first as [len][bytes...] with no
// terminator (§3.1 wire-length mode).
func encodeWire(mapped [][]byte) []byte {
	total := 0
	for _, m := range mapped {
		total += len(m) + 1
	}

	key := make([]byte, 0, total)
	for i := len(mapped) - 1; i >= 0; i-- {
		key = append(key, byte(len(mapped[i])))
		key = append(key, mapped[i]...)
	}
	return key
}

// reverseTable maps a 0..40 code back to its source byte, the inverse
// of charTable. Index 1 (wildcard) is handled structurally instead.
var reverseTable [41]byte

func init() {
	reverseTable[2] = '-'
	reverseTable[3] = '/'
	for d := 0; d < 10; d++ {
		reverseTable[4+d] = byte('0' + d)
	}
	reverseTable[14] = '_'
	for c := 0; c < 26; c++ {
		reverseTable[15+c] = byte('a' + c)
	}
}

// Decode reverses Encode, used by enumeration to recover a displayable
// domain name from a stored byte key (Testable Property 1:
// decode(encode(d)) == d, up to case folding).
func Decode(key []byte, opts Options) (string, error) {
	if len(key) == 0 {
		return "", nil
	}

	switch opts.Mode {
	case ModeWireLength:
		return decodeWire(key)
	default:
		return decodeReverseLabel(key)
	}
}

// decodeReverseLabel splits on 0 separators and reverses run order back
// to normal (leftmost label first) reading order.
func decodeReverseLabel(key []byte) (string, error) {
	var runs [][]byte
	start := 0
	for i, b := range key {
		if b == 0 {
			runs = append(runs, key[start:i])
			start = i + 1
		}
	}

	labels := make([]string, len(runs))
	for i, run := range runs {
		lbl, err := decodeLabel(run)
		if err != nil {
			return "", err
		}
		labels[len(runs)-1-i] = lbl
	}
	return strings.Join(labels, "."), nil
}

// decodeWire parses [len][bytes...] runs (TLD-first) and reverses them
// back to normal reading order.
func decodeWire(key []byte) (string, error) {
	var labels []string

	i := 0
	for i < len(key) {
		l := int(key[i])
		i++
		if i+l > len(key) {
			return "", fmt.Errorf("keyenc: truncated wire key")
		}
		lbl, err := decodeLabel(key[i : i+l])
		if err != nil {
			return "", err
		}
		labels = append(labels, lbl)
		i += l
	}

	for l, r := 0, len(labels)-1; l < r; l, r = l+1, r-1 {
		labels[l], labels[r] = labels[r], labels[l]
	}
	return strings.Join(labels, "."), nil
}

func decodeLabel(run []byte) (string, error) {
	if len(run) == 1 && run[0] == wildcardCode {
		return "*", nil
	}

	out := make([]byte, len(run))
	for i, code := range run {
		if int(code) >= len(reverseTable) {
			return "", fmt.Errorf("keyenc: invalid code %d", code)
		}
		ch := reverseTable[code]
		if ch == 0 {
			return "", fmt.Errorf("keyenc: invalid code %d", code)
		}
		out[i] = ch
	}
	return string(out), nil
}
