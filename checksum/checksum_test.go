package checksum

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZeroSum(t *testing.T) {
	var s Sum
	require.True(t, s.IsZero())
	require.Equal(t, "<none>", s.String())
	require.Equal(t, uint64(0), s.Truncated())
}

func TestWriterMatchesSha256(t *testing.T) {
	w := NewWriter()
	_, err := w.Write([]byte("hello, "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world!"))
	require.NoError(t, err)

	want := sha256.Sum256([]byte("hello, world!"))
	require.Equal(t, Sum(want), w.Sum())
	require.False(t, w.Sum().IsZero())
}

func TestTruncatedIsLeadingEightBytes(t *testing.T) {
	want := sha256.Sum256([]byte("truncate me"))
	sum := Sum(want)
	got := sum.Truncated()
	require.NotZero(t, got)

	other := sum
	other[7] ^= 0xff // flip a byte inside the truncated prefix
	require.NotEqual(t, got, other.Truncated())
}
