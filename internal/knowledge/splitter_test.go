package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	got := NewSplitter().Split("hello world")
	require.Equal(t, []TextChunk{{Text: "hello world", StartIndex: 0}}, got)
}

func TestSplitter_MergesOnCoarsestSeparator(t *testing.T) {
	t.Parallel()

	s := &Splitter{ChunkSize: 10, ChunkOverlap: 0}
	got := s.Split("aaa bbb ccc ddd")
	require.Equal(t, []TextChunk{
		{Text: "aaa bbb", StartIndex: 0},
		{Text: "ccc ddd", StartIndex: 8},
	}, got)
}

func TestSplitter_CarriesOverlap(t *testing.T) {
	t.Parallel()

	s := &Splitter{ChunkSize: 10, ChunkOverlap: 4}
	got := s.Split("aaa bbb ccc ddd")
	require.Equal(t, []TextChunk{
		{Text: "aaa bbb", StartIndex: 0},
		{Text: "bbb ccc", StartIndex: 4},
		{Text: "ccc ddd", StartIndex: 8},
	}, got)
}

func TestSplitter_PrefersParagraphs(t *testing.T) {
	t.Parallel()

	para := strings.Repeat("x", 30)
	text := para + "\n\n" + para
	s := &Splitter{ChunkSize: 40, ChunkOverlap: 0}
	got := s.Split(text)
	require.Len(t, got, 2)
	require.Equal(t, para, got[0].Text)
	require.Equal(t, para, got[1].Text)
	require.Equal(t, 32, got[1].StartIndex)
}

func TestSplitter_DefaultSizesBoundChunks(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	got := NewSplitter().Split(text)
	require.Greater(t, len(got), 1)
	for i, c := range got {
		require.LessOrEqual(t, len([]rune(c.Text)), DefaultChunkSize, "chunk %d", i)
		require.GreaterOrEqual(t, c.StartIndex, 0, "chunk %d", i)
	}
}

func TestSplitter_RuneOffsets(t *testing.T) {
	t.Parallel()

	s := &Splitter{ChunkSize: 6, ChunkOverlap: 0}
	got := s.Split("héé ñño")
	require.Equal(t, []TextChunk{
		{Text: "héé", StartIndex: 0},
		{Text: "ñño", StartIndex: 4},
	}, got)
}
