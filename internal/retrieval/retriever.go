// Package retrieval ranks stored document chunks against a query embedding
// by cosine distance, scoped to a single owner.
package retrieval

import (
	"math"
	"sort"

	"docuchat/internal/model"
	"docuchat/internal/repository"
)

// ChunkLister supplies the embedded chunks of one user's documents.
type ChunkLister interface {
	ListEmbeddedByUserID(userID uint) ([]repository.ChunkWithFilename, error)
}

// Match is one retrieval result. Distance is cosine distance in [0, 2];
// Score is the similarity surfaced to callers.
type Match struct {
	Chunk    model.DocumentChunk
	Filename string
	Distance float64
}

// Score returns 1 - distance rounded to 4 decimal places.
func (m Match) Score() float64 {
	return math.Round((1-m.Distance)*10000) / 10000
}

type Retriever struct {
	chunks ChunkLister
}

func NewRetriever(chunks ChunkLister) *Retriever {
	return &Retriever{chunks: chunks}
}

// Search returns up to topK matches for the user's documents, closest first.
// Chunks without a parseable embedding are skipped. A positive maxDistance
// drops matches farther than the threshold; zero disables the cut-off. Ties
// break on chunk id so results are deterministic per call.
func (r *Retriever) Search(queryVec []float32, userID uint, topK int, maxDistance float64) ([]Match, error) {
	if topK <= 0 || len(queryVec) == 0 {
		return nil, nil
	}

	candidates, err := r.chunks.ListEmbeddedByUserID(userID)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, row := range candidates {
		vec := row.EmbeddingVector()
		if len(vec) == 0 {
			continue
		}
		distance, ok := cosineDistance(queryVec, vec)
		if !ok {
			continue
		}
		if maxDistance > 0 && distance > maxDistance {
			continue
		}
		matches = append(matches, Match{
			Chunk:    row.DocumentChunk,
			Filename: row.Filename,
			Distance: distance,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Chunk.ID < matches[j].Chunk.ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// cosineDistance returns 1 - cos(a, b). The second return is false when the
// vectors cannot be compared (dimension mismatch or zero norm).
func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA <= 0 || normB <= 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), true
}
