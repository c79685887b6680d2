package questionables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsConnected("a"))
	assert.False(t, r.Remove("a"))

	assert.True(t, r.Add("a"))
	assert.False(t, r.Add("a"))
	assert.True(t, r.IsConnected("a"))

	assert.False(t, r.Remove("a"))
	assert.True(t, r.IsConnected("a"))

	assert.True(t, r.Remove("a"))
	assert.False(t, r.IsConnected("a"))
}

func TestRandom(t *testing.T) {
	a, b := NewRandom(9), NewRandom(9)

	code := newCode(a)
	assert.Equal(t, code, newCode(b))
	assert.Len(t, code, CodeLength)
	for _, c := range code {
		assert.Contains(t, CodeChars, string(c))
	}

	assert.Len(t, newRef(a), refLength)

	_, err := NewSeed()
	assert.NoError(t, err)
}
