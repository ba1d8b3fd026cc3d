package engine

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/recall/internal/vectorstore"
)

// Default hybrid weights. They need not sum to 1; both component scores are
// expected in [0,1] and are combined without renormalization.
const (
	DefaultDenseWeight   = 0.7
	DefaultKeywordWeight = 0.3
)

var (
	wordRe = regexp.MustCompile(`\b\w+\b`)
	// identRe keeps original-case identifiers, error codes and IDs.
	identRe = regexp.MustCompile(`\b[A-Z0-9][A-Za-z0-9_-]+\b`)
	hexRe   = regexp.MustCompile(`0x[0-9A-Fa-f]+`)
)

// ExtractKeywords tokenizes text into a keyword set: lowercased words,
// original-case identifiers, and hex codes.
func ExtractKeywords(text string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		keywords[w] = struct{}{}
	}
	for _, w := range identRe.FindAllString(text, -1) {
		keywords[w] = struct{}{}
	}
	for _, w := range hexRe.FindAllString(text, -1) {
		keywords[w] = struct{}{}
	}
	return keywords
}

// KeywordOverlap scores content against query keywords as
// |query ∩ content| / |query|, in [0,1]. An empty query scores zero.
func KeywordOverlap(queryKeywords map[string]struct{}, content string) float64 {
	if len(queryKeywords) == 0 {
		return 0
	}
	contentKeywords := ExtractKeywords(content)
	overlap := 0
	for k := range queryKeywords {
		if _, ok := contentKeywords[k]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryKeywords))
}

// Combine merges a dense similarity score and a keyword overlap score.
func Combine(dense, keyword, denseWeight, keywordWeight float64) float64 {
	return denseWeight*dense + keywordWeight*keyword
}

// HybridResult is a search hit with its score breakdown.
type HybridResult struct {
	SearchResult
	DenseScore    float64
	KeywordScore  float64
	CombinedScore float64

	// MatchedKeywords lists the query keywords found in the content.
	// Populated by keyword-only search.
	MatchedKeywords []string
}

// HybridOptions tunes HybridSearch.
type HybridOptions struct {
	Limit         int
	DenseWeight   float64
	KeywordWeight float64
}

func (o *HybridOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = 5
	}
	if o.DenseWeight == 0 && o.KeywordWeight == 0 {
		o.DenseWeight = DefaultDenseWeight
		o.KeywordWeight = DefaultKeywordWeight
	}
}

// HybridSearch reranks a dense search with keyword overlap. It over-fetches
// (2x limit) so reranking has candidates to promote. The sort is stable:
// equal combined scores keep the dense ranking order, so deterministic
// inputs produce a deterministic order.
func (e *Engine) HybridSearch(ctx context.Context, query string, opts HybridOptions) ([]HybridResult, error) {
	opts.normalize()

	dense, err := e.Search(ctx, query, SearchOptions{Limit: opts.Limit * 2})
	if err != nil {
		return nil, err
	}

	queryKeywords := ExtractKeywords(query)
	results := make([]HybridResult, 0, len(dense))
	for _, d := range dense {
		kw := KeywordOverlap(queryKeywords, d.Record.Content)
		results = append(results, HybridResult{
			SearchResult:  d,
			DenseScore:    d.Score,
			KeywordScore:  kw,
			CombinedScore: Combine(d.Score, kw, opts.DenseWeight, opts.KeywordWeight),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// KeywordSearch scores by keyword overlap alone, scrolling the agent's
// records. Useful for exact terms (error codes, identifiers) that embedding
// similarity misses. Zero-overlap records are dropped.
func (e *Engine) KeywordSearch(ctx context.Context, query string, limit int) ([]HybridResult, error) {
	if limit <= 0 {
		limit = 5
	}

	points, err := e.scan(ctx, vectorstore.Filter{}, "keyword_search")
	if err != nil {
		return nil, err
	}

	queryKeywords := ExtractKeywords(query)
	var results []HybridResult
	for _, p := range points {
		contentKeywords := ExtractKeywords(p.Record.Content)
		var matched []string
		for k := range queryKeywords {
			if _, ok := contentKeywords[k]; ok {
				matched = append(matched, k)
			}
		}
		if len(matched) == 0 {
			continue
		}
		sort.Strings(matched)
		score := float64(len(matched)) / float64(len(queryKeywords))
		results = append(results, HybridResult{
			SearchResult:    SearchResult{Record: p.Record},
			KeywordScore:    score,
			CombinedScore:   score,
			MatchedKeywords: matched,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].KeywordScore > results[j].KeywordScore
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordScanLimit bounds the scroll for keyword-only search. Sized for the
// expected per-agent corpus; beyond this, use hybrid search instead.
const keywordScanLimit = 1000
