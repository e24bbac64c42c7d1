package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// Match sources reported on retrieved symbols.
const (
	MatchVector     = "vector"
	MatchMention    = "mention"
	MatchRelation   = "relation"
	MatchDefinition = "definition"
)

type ScoredSymbol struct {
	Symbol     domain.Symbol `json:"symbol"`
	Similarity float64       `json:"similarity"`
	Score      float64       `json:"score"`
	MatchedBy  []string      `json:"matched_by"`
}

// RetrieveRelated runs hybrid retrieval: embedding similarity at or above
// minSimilarity, unioned with symbols pinned by the query through explicit
// mentions, relation edges, or definition terms. Results are ranked by
// similarity * (0.5 + 0.5*confidence), ties broken by the most recent
// snapshot timestamp then id.
func (g *MemoryGraph) RetrieveRelated(ctx context.Context, query string, topK int, minSimilarity float64) ([]ScoredSymbol, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryEmpty
	}
	if topK <= 0 {
		return []ScoredSymbol{}, nil
	}

	var qvec []float32
	if g.embedder != nil {
		v, err := g.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		qvec = v
	}

	normQuery := " " + phraseForm(query) + " "
	terms := contentTerms(query)

	g.mu.RLock()
	// Symbols named verbatim in the query.
	mentioned := make(map[string]bool)
	for id, s := range g.symbols {
		if containsPhrase(normQuery, s.Term) || containsPhrase(normQuery, id) {
			mentioned[id] = true
		}
	}

	candidates := make([]ScoredSymbol, 0)
	for id, s := range g.symbols {
		var matched []string
		sim := 0.0
		if emb, ok := g.embeddings[id]; ok && qvec != nil {
			sim = cosineSimilarity(qvec, emb)
			if sim >= minSimilarity {
				matched = append(matched, MatchVector)
			}
		}

		pinned := false
		if mentioned[id] {
			matched = append(matched, MatchMention)
			pinned = true
		}
		relStrength, related := relatesTo(s, mentioned, terms)
		if related {
			matched = append(matched, MatchRelation)
			pinned = true
		}
		if definitionMatches(s.Definition, terms) {
			matched = append(matched, MatchDefinition)
			pinned = true
		}
		if len(matched) == 0 {
			continue
		}
		// A pinned symbol is never ranked as if it failed the threshold.
		if pinned && sim < minSimilarity {
			sim = math.Max(minSimilarity, 0)
		}
		score := sim * (0.5 + 0.5*s.Confidence)
		if len(matched) == 1 && related {
			// Reached only through an edge: rank by how firmly it was asserted.
			score *= relStrength
		}
		candidates = append(candidates, ScoredSymbol{
			Symbol:     s.Clone(),
			Similarity: sim,
			Score:      score,
			MatchedBy:  matched,
		})
	}
	g.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ta, tb := a.Symbol.SnapshotAt, b.Symbol.SnapshotAt
		switch {
		case ta != nil && tb != nil && !ta.Equal(*tb):
			return ta.After(*tb)
		case ta != nil && tb == nil:
			return true
		case ta == nil && tb != nil:
			return false
		}
		return a.Symbol.ID < b.Symbol.ID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// relatesTo reports whether any relation of s points at a mentioned symbol
// or at an id equal to a query term, and the strongest such relation.
// Logical relations always qualify; other kinds only when the target is
// mentioned.
func relatesTo(s domain.Symbol, mentioned map[string]bool, terms map[string]bool) (float64, bool) {
	best, found := 0.0, false
	for target, rel := range s.Relations {
		if mentioned[target] || (rel.Kind.IsLogical() && terms[target]) {
			best = math.Max(best, rel.Strength())
			found = true
		}
	}
	return best, found
}

func definitionMatches(definition string, terms map[string]bool) bool {
	if definition == "" || len(terms) == 0 {
		return false
	}
	for t := range contentTerms(definition) {
		if terms[t] {
			return true
		}
	}
	return false
}

// phraseForm lower-cases text and replaces every non alphanumeric rune with
// a single space, so ids like integrated_information match prose.
func phraseForm(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

func containsPhrase(paddedQuery, phrase string) bool {
	p := phraseForm(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(paddedQuery, " "+p+" ")
}

var retrievalStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "how": true, "if": true,
	"in": true, "into": true, "is": true, "it": true, "its": true, "not": true,
	"of": true, "on": true, "or": true, "so": true, "such": true, "than": true,
	"that": true, "the": true, "their": true, "then": true, "there": true,
	"these": true, "this": true, "to": true, "was": true, "what": true,
	"when": true, "which": true, "who": true, "why": true, "will": true,
	"with": true,
}

// contentTerms returns the distinct non-stopword words of text, three runes
// or longer.
func contentTerms(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(phraseForm(text)) {
		if len([]rune(w)) < 3 || retrievalStopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
