package vector

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is one masked snippet with its embedding
type Document struct {
	ID        int64     `db:"id" json:"id"`
	Text      string    `db:"text" json:"text"`
	TextHash  string    `db:"text_hash" json:"text_hash"`
	Source    string    `db:"source" json:"source"`
	Embedding []float32 `db:"-" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SimilarityResult represents a vector similarity search result
type SimilarityResult struct {
	Document   *Document `json:"document"`
	Similarity float32   `json:"similarity"`
	Distance   float32   `json:"distance"`
}

// SearchOptions contains options for vector similarity search
type SearchOptions struct {
	Limit         int     `json:"limit"`
	MinSimilarity float32 `json:"min_similarity"`
	Source        string  `json:"source,omitempty"`
}

// Stats represents index statistics
type Stats struct {
	TotalDocuments int64  `json:"total_documents" db:"total_documents"`
	Sources        int64  `json:"sources" db:"sources"`
	Backend        string `json:"backend" db:"-"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Skipped  int64         `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// TextHash returns the deduplication key of a snippet.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
