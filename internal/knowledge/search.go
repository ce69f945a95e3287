package knowledge

import (
	"math"
	"sort"
	"strings"
)

const (
	DefaultSearchK = 4
	maxSearchK     = 50
)

func clampK(k int) int {
	if k <= 0 {
		return DefaultSearchK
	}
	if k > maxSearchK {
		return maxSearchK
	}
	return k
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a []float64, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topMatches sorts by score desc, then by chunk id for stable output, and keeps k.
func topMatches(matches []Match, k int) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			if matches[i].DocumentID == matches[j].DocumentID {
				return matches[i].ChunkIndex < matches[j].ChunkIndex
			}
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func tokenize(input string) []string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil
	}
	parts := strings.FieldsFunc(input, func(r rune) bool {
		return !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if _, exists := seen[part]; exists {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// lexicalScore is the fallback ranking when no embedder is configured: the share of
// query terms found in the chunk, with filename hits counted double.
func lexicalScore(c Chunk, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	content := strings.ToLower(c.Content)
	filename := strings.ToLower(c.Filename)
	score := 0.0
	for _, term := range terms {
		if strings.Contains(content, term) {
			score += 1
		}
		if strings.Contains(filename, term) {
			score += 2
		}
	}
	return score / float64(3*len(terms))
}
