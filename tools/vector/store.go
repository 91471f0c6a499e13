// Package vector provides a small in-process document store and the tools
// agents use to save documents into it and search them.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Embedder turns texts into vectors. Implementations must return one
// vector per input text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Document is a stored text.
type Document struct {
	ID      string
	Content string
	vector  []float64
}

// Result is a search hit.
type Result struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Store is a process-local document store safe for concurrent use. With an
// Embedder it ranks by cosine similarity; without one it ranks by the share
// of query terms found in a document.
type Store struct {
	mu       sync.RWMutex
	embedder Embedder
	docs     []Document
}

// NewStore creates an empty store. embedder may be nil.
func NewStore(embedder Embedder) *Store {
	return &Store{embedder: embedder}
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Add stores content and returns its id.
func (s *Store) Add(ctx context.Context, content string) (string, error) {
	var vec []float64
	if s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{content})
		if err != nil {
			return "", fmt.Errorf("embed document: %w", err)
		}
		if len(vecs) != 1 {
			return "", fmt.Errorf("embed document: got %d vectors", len(vecs))
		}
		vec = vecs[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("doc_%d", len(s.docs))
	s.docs = append(s.docs, Document{ID: id, Content: content, vector: vec})
	return id, nil
}

// Search returns up to limit documents ranked by relevance to query.
// Documents without any relevance are left out.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var qvec []float64
	if s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
		}
		qvec = vecs[0]
	}
	terms := tokenize(query)

	s.mu.RLock()
	results := make([]Result, 0, len(s.docs))
	for _, d := range s.docs {
		var score float64
		if qvec != nil {
			score = cosine(qvec, d.vector)
		} else {
			score = overlap(terms, tokenize(d.Content))
		}
		if score > 0 {
			results = append(results, Result{ID: d.ID, Content: d.Content, Score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float64) float64 {
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

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
