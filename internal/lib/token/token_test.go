package token

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_Issue(t *testing.T) {
	issuer := NewIssuer(0)

	tok, err := issuer.Issue()
	require.NoError(t, err)
	assert.Len(t, tok, DefaultSize*2)

	raw, err := hex.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultSize)
}

func TestIssuer_TooSmallSizeFallsBack(t *testing.T) {
	tok, err := NewIssuer(4).Issue()
	require.NoError(t, err)
	assert.Len(t, tok, DefaultSize*2)
}

func TestIssuer_Unique(t *testing.T) {
	issuer := NewIssuer(16)
	seen := make(map[string]struct{}, 1000)

	for range 1000 {
		tok, err := issuer.Issue()
		require.NoError(t, err)
		assert.Len(t, tok, 32)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %s", tok)
		seen[tok] = struct{}{}
	}
}
