package dnstrie_test

import (
	"testing"

	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/keyenc"
	"github.com/sirgallo/dnstrie/qptrie"
	"github.com/stretchr/testify/require"
)

func encodeReverseLabel(name string) ([]byte, error) {
	return keyenc.Encode(name, keyenc.Options{Mode: keyenc.ModeReverseLabel})
}

func TestRangeScanBoundsInclusive(t *testing.T) {
	backend := qptrie.Open()
	names := []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com"}
	for _, n := range names {
		require.NoError(t, backend.Add(n, []byte(n)))
	}

	results, err := dnstrie.RangeScan(backend, "a.example.com", "c.example.com", dnstrie.RangeOpts{Encode: encodeReverseLabel})
	require.NoError(t, err)

	var got []string
	for _, kv := range results {
		got = append(got, kv.Name)
	}
	require.ElementsMatch(t, []string{"a.example.com", "b.example.com", "c.example.com"}, got)
}

func TestRangeScanLimit(t *testing.T) {
	backend := qptrie.Open()
	for _, n := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		require.NoError(t, backend.Add(n, []byte("v")))
	}

	results, err := dnstrie.RangeScan(backend, "a.example.com", "z.example.com", dnstrie.RangeOpts{
		Encode: encodeReverseLabel,
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRangeScanInvertedBoundsErrors(t *testing.T) {
	backend := qptrie.Open()
	_, err := dnstrie.RangeScan(backend, "z.example.com", "a.example.com", dnstrie.RangeOpts{Encode: encodeReverseLabel})
	require.ErrorIs(t, err, dnstrie.ErrInvalidArgument)
}

func TestRangeScanTransform(t *testing.T) {
	backend := qptrie.Open()
	require.NoError(t, backend.Add("a.example.com", []byte("v")))

	results, err := dnstrie.RangeScan(backend, "a.example.com", "a.example.com", dnstrie.RangeOpts{
		Encode: encodeReverseLabel,
		Transform: func(kv dnstrie.KeyValuePair) dnstrie.KeyValuePair {
			kv.Value = []byte("rewritten")
			return kv
		},
	})
	require.NoError(t, err)
	require.Equal(t, "rewritten", string(results[0].Value))
}
