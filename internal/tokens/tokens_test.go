package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Count(t *testing.T) {
	c, err := NewCounter("not-a-real-model")
	require.NoError(t, err)
	assert.Equal(t, "cl100k_base", c.Name())

	n, err := c.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGuard_Bytes(t *testing.T) {
	g := Guard{MaxBytes: 10}
	m, err := g.Check(strings.Repeat("a", 11))
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "bytes", le.Unit)
	assert.Equal(t, 11, le.Actual)
	assert.Equal(t, 11, m.Bytes)
	assert.Equal(t, -1, m.Tokens)

	_, err = g.Check("short")
	require.NoError(t, err)
}

func TestGuard_Tokens(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)

	g := Guard{MaxTokens: 3, Counter: c}
	_, err = g.Check("one two three four five six")
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "tokens", le.Unit)
	assert.Equal(t, 3, le.Limit)

	m, err := g.Check("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Tokens)
}

func TestGuard_Unlimited(t *testing.T) {
	m, err := Guard{}.Check(strings.Repeat("x", 1<<20))
	require.NoError(t, err)
	assert.Equal(t, 1<<20, m.Bytes)
}

func TestGuard_TokenLimitNeedsCounter(t *testing.T) {
	_, err := Guard{MaxTokens: 5}.Check("x")
	require.Error(t, err)
}
