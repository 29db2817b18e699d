package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedSystem(t *testing.T) {
	blocks := CachedSystem("You grade promo codes.", "1h")
	require.Len(t, blocks, 1)
	assert.Equal(t, "You grade promo codes.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestCachedSystem_EmptyText(t *testing.T) {
	assert.Nil(t, CachedSystem("", "5m"))
}
