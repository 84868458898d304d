package vod

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	ranges, ok := parseRange("bytes=500-2499", 10000)
	require.True(t, ok)
	require.Equal(t, []byteRange{{Start: 500, End: 2500}}, ranges)

	ranges, ok = parseRange("bytes=500-", 10000)
	require.True(t, ok)
	require.Equal(t, []byteRange{{Start: 500, End: 10000}}, ranges)

	ranges, ok = parseRange("bytes=-500", 10000)
	require.True(t, ok)
	require.Equal(t, []byteRange{{Start: 9500, End: 10000}}, ranges)

	// Last byte clamped to the resource size.
	ranges, ok = parseRange("bytes=9000-20000", 10000)
	require.True(t, ok)
	require.Equal(t, []byteRange{{Start: 9000, End: 10000}}, ranges)

	ranges, ok = parseRange("bytes=0-0,100-199", 10000)
	require.True(t, ok)
	require.Len(t, ranges, 2)

	for _, header := range []string{"", "bytes=", "bytes=abc-", "bytes=-", "bytes=20000-", "items=1-2"} {
		_, ok = parseRange(header, 10000)
		require.False(t, ok, "header %q", header)
	}
}

func TestAppendClipped(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	// Region fully inside the span.
	out := appendClipped(nil, data, 100, byteRange{Start: 90, End: 200})
	require.Equal(t, data, out)

	// Span starts inside the region.
	out = appendClipped(nil, data, 100, byteRange{Start: 105, End: 200})
	require.Equal(t, data[5:], out)

	// Span ends inside the region.
	out = appendClipped(nil, data, 100, byteRange{Start: 0, End: 103})
	require.Equal(t, data[:3], out)

	// Disjoint.
	require.Empty(t, appendClipped(nil, data, 100, byteRange{Start: 200, End: 300}))
	require.Empty(t, appendClipped(nil, data, 100, byteRange{Start: 0, End: 100}))
}
