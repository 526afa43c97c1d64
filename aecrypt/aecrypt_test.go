package aecrypt_test

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := sha256.Sum256([]byte("shared-token"))
	c, err := aecrypt.New(key)
	require.NoError(t, err)

	ct, err := c.Seal([]byte("hello peer"))
	require.NoError(t, err)

	pt, err := c.Open(ct)
	require.NoError(t, err)
	require.Equal(t, "hello peer", string(pt))
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := sha256.Sum256([]byte("shared-token"))
	c, err := aecrypt.New(key)
	require.NoError(t, err)

	ct, err := c.Seal([]byte("hello peer"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF

	_, err = c.Open(ct)
	require.Error(t, err)
}

func TestPullIVDeterministic(t *testing.T) {
	key := sha256.Sum256([]byte("shared-token"))
	c, err := aecrypt.New(key)
	require.NoError(t, err)

	ct1 := c.SealDeterministic(42, []byte("payload"))
	ct2 := c.SealDeterministic(42, []byte("payload"))
	require.Equal(t, ct1[:12], ct2[:12], "PULL IV must be deterministic for the same challenge")

	pt, err := c.Open(ct1)
	require.NoError(t, err)
	require.Equal(t, "payload", string(pt))
}

func TestFresh(t *testing.T) {
	now := time.Now()
	require.True(t, aecrypt.Fresh(now.Add(-2*time.Second), now, aecrypt.DefaultValidity))
	require.False(t, aecrypt.Fresh(now.Add(-10*time.Second), now, aecrypt.DefaultValidity))
}
