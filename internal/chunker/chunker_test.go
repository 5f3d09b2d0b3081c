package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkInvalidParams(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 10},
		{"negative size", -5, 10},
		{"zero overlap", 100, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Chunk("some text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, ErrInvalidChunkParams)
		})
	}
}

func TestChunkEmptyText(t *testing.T) {
	chunks, err := Chunk("", 100, 20)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkSingleWindow(t *testing.T) {
	chunks, err := Chunk("short text", 100, 20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ID)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 10, chunks[0].EndOffset)
}

func TestChunkOverlapWindows(t *testing.T) {
	text := "Grace period is 30 days. Waiting period is 36 months."
	require.Equal(t, 54, len([]rune(text)))

	chunks, err := Chunk(text, 40, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 40, chunks[0].EndOffset)
	assert.Equal(t, 30, chunks[1].StartOffset)
	assert.Equal(t, 54, chunks[1].EndOffset)

	// Consecutive windows share exactly overlap runes.
	runes := []rune(text)
	assert.Equal(t, string(runes[30:40]), chunks[0].Text[30:40])
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("policy clause text. ", 50)
	first, err := Chunk(text, 100, 20)
	require.NoError(t, err)
	second, err := Chunk(text, 100, 20)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunkFullCoverage(t *testing.T) {
	text := strings.Repeat("abcdefghij", 35) // 350 runes
	chunks, err := Chunk(text, 100, 20)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Every rune position is covered by at least one chunk.
	covered := make([]bool, len([]rune(text)))
	for _, c := range chunks {
		for i := c.StartOffset; i < c.EndOffset; i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		require.True(t, ok, "rune %d not covered", i)
	}

	// IDs are sequential from zero and text matches the offsets.
	runes := []rune(text)
	for i, c := range chunks {
		assert.Equal(t, i, c.ID)
		assert.Equal(t, string(runes[c.StartOffset:c.EndOffset]), c.Text)
	}
}

func TestChunkSkipsWhitespaceOnlyWindows(t *testing.T) {
	text := "word" + strings.Repeat(" ", 200) + "tail"
	chunks, err := Chunk(text, 50, 10)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestChunkMultibyteRunes(t *testing.T) {
	text := strings.Repeat("保険契約の条項。", 10) // 80 runes
	chunks, err := Chunk(text, 30, 10)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	for _, c := range chunks {
		assert.Equal(t, string(runes[c.StartOffset:c.EndOffset]), c.Text)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(runes), last.EndOffset)
}
