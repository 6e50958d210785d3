package aml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "viktor petrov", normalizeName("  Viktor   PETROV "))
	assert.Equal(t, "oconnor jr", normalizeName("O'Connor, Jr."))
	assert.Equal(t, "", normalizeName("!!!"))
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("viktor petrov", "viktor petrov"))
	// One substitution across thirteen characters.
	assert.InDelta(t, 1.0-1.0/13.0, nameSimilarity("dmitry volkov", "dmitri volkov"), 0.001)
	assert.Less(t, nameSimilarity("john smith", "viktor petrov"), 0.5)
}

func TestScreeningListMatch(t *testing.T) {
	list := NewScreeningList([]string{"Dmitri Volkov", "Viktor Petrov", ""})

	entry, score, ok := list.Match("Dmitri Volkov")
	require.True(t, ok)
	assert.Equal(t, "dmitri volkov", entry)
	assert.Equal(t, 1.0, score)

	// Transliteration variant still hits.
	entry, score, ok = list.Match("Dmitry Volkov")
	require.True(t, ok)
	assert.Equal(t, "dmitri volkov", entry)
	assert.Greater(t, score, 0.85)

	_, _, ok = list.Match("John Smith")
	assert.False(t, ok)

	_, _, ok = list.Match("")
	assert.False(t, ok)

	_, _, ok = NewScreeningList(nil).Match("Dmitri Volkov")
	assert.False(t, ok)
}
