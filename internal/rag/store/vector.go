package store

import (
	"math"
	"sort"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/pkg/models"
)

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Zero vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ValidateVector checks a query or chunk vector against the store's
// configured dimension.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) == 0 {
		return ragerr.New(ragerr.KindValidation, "embedding is empty")
	}
	if dimension > 0 && len(vector) != dimension {
		return ragerr.New(ragerr.KindDimensionMismatch, "embedding dimension mismatch: got %d, want %d", len(vector), dimension)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ragerr.New(ragerr.KindValidation, "embedding contains invalid values")
		}
	}
	return nil
}

// SortResults orders results by descending score, breaking ties by
// ascending (file_id, chunk index) so equal scores are deterministic.
func SortResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.FileID != results[j].Chunk.FileID {
			return results[i].Chunk.FileID < results[j].Chunk.FileID
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}

// Truncate applies the score threshold and limit to sorted results.
func Truncate(results []models.SearchResult, minScore float32, limit int) []models.SearchResult {
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// MatchesFilters reports whether a chunk's document passes the
// metadata filters. Used by the exact-scan backends; SQL backends
// express the same predicate in their queries.
func MatchesFilters(doc *models.Document, f models.SearchFilters) bool {
	if len(f.FileIDs) > 0 && !contains(f.FileIDs, doc.FileID) {
		return false
	}
	if len(f.FileTypes) > 0 && !contains(f.FileTypes, doc.FileType) {
		return false
	}
	if len(f.Languages) > 0 && !contains(f.Languages, doc.Language) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
