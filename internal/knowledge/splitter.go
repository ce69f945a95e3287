package knowledge

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts text into overlapping chunks, preferring to break on the coarsest
// separator that keeps pieces under ChunkSize. Sizes are measured in runes.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter() *Splitter {
	return &Splitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap, Separators: DefaultSeparators}
}

// TextChunk is a piece of text and its rune offset in the source.
type TextChunk struct {
	Text       string
	StartIndex int
}

// Split returns the chunks of text with their start offsets.
func (s *Splitter) Split(text string) []TextChunk {
	pieces := s.splitText(text, s.separators())
	out := make([]TextChunk, 0, len(pieces))

	// Offsets are searched forward from the previous chunk, less the overlap, so a
	// repeated sentence maps to the right occurrence.
	prevLen := 0
	prevStart := -1
	for _, p := range pieces {
		from := 0
		if prevStart >= 0 {
			from = max(0, prevStart+prevLen-s.ChunkOverlap)
		}
		byteFrom := runeToByteOffset(text, from)
		start := -1
		if i := strings.Index(text[byteFrom:], p); i >= 0 {
			start = from + utf8.RuneCountInString(text[byteFrom:byteFrom+i])
		} else if i := strings.Index(text, p); i >= 0 {
			start = utf8.RuneCountInString(text[:i])
		}
		out = append(out, TextChunk{Text: p, StartIndex: start})
		if start >= 0 {
			prevStart = start
			prevLen = utf8.RuneCountInString(p)
		}
	}
	return out
}

func (s *Splitter) separators() []string {
	if len(s.Separators) == 0 {
		return DefaultSeparators
	}
	return s.Separators
}

func (s *Splitter) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, separator)
	var final []string
	var good []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// splitKeepSeparator splits on sep and keeps sep at the start of the following piece.
func splitKeepSeparator(text string, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeSplits packs small pieces into chunks of at most ChunkSize runes, carrying up to
// ChunkOverlap runes of trailing pieces into the next chunk.
func (s *Splitter) mergeSplits(splits []string) []string {
	var docs []string
	var current []string
	currentLens := []int{}
	total := 0
	for _, d := range splits {
		n := utf8.RuneCountInString(d)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0)) {
				total -= currentLens[0]
				current = current[1:]
				currentLens = currentLens[1:]
			}
		}
		current = append(current, d)
		currentLens = append(currentLens, n)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func runeToByteOffset(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == runes {
			return i
		}
		n++
	}
	return len(s)
}
