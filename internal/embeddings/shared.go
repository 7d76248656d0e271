package embeddings

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
)

// EmbeddingDimensions defines the standard embedding size
const EmbeddingDimensions = 384

// termPattern keeps masking tokens such as "ACC:bkfjdoeapmgc" whole so that
// the same pseudonym in a query and a snippet lands in the same feature.
var termPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?::[\p{L}\p{N}]+)?`)

// Terms splits text into lower-cased terms.
func Terms(text string) []string {
	raw := termPattern.FindAllString(text, -1)
	for i, t := range raw {
		raw[i] = strings.ToLower(t)
	}
	return raw
}

// NormalizeEmbedding scales embedding to unit length in place. A zero vector
// is returned unchanged.
func NormalizeEmbedding(embedding []float32) []float32 {
	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return embedding
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range embedding {
		embedding[i] *= inv
	}
	return embedding
}

// CosineSimilarity returns the cosine similarity of two vectors, or 0 when
// their lengths differ or either is zero.
func CosineSimilarity(vec1, vec2 []float32) float32 {
	if len(vec1) != len(vec2) || len(vec1) == 0 {
		return 0
	}
	var dot, n1, n2 float64
	for i := range vec1 {
		dot += float64(vec1[i]) * float64(vec2[i])
		n1 += float64(vec1[i]) * float64(vec1[i])
		n2 += float64(vec2[i]) * float64(vec2[i])
	}
	if n1 == 0 || n2 == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(n1) * math.Sqrt(n2)))
}

// statsRecorder maintains ModelStats for a service.
type statsRecorder struct {
	mu    sync.RWMutex
	stats ModelStats
}

func newStatsRecorder(serviceType string, loadTime time.Duration) *statsRecorder {
	return &statsRecorder{stats: ModelStats{
		ServiceType:   serviceType,
		StartTime:     time.Now(),
		ModelLoadTime: loadTime,
	}}
}

func (r *statsRecorder) record(inferences, failed int64, tokens int, cacheHits int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.stats
	prevSuccess := s.SuccessfulRuns

	s.TotalInferences += inferences + failed
	s.SuccessfulRuns += inferences
	s.FailedRuns += failed
	s.TotalTokens += int64(tokens)
	s.CacheHits += int64(cacheHits)
	s.LastInferenceTime = time.Now()

	if total := s.SuccessfulRuns + s.FailedRuns; total > 0 {
		s.ErrorRate = float64(s.FailedRuns) / float64(total)
	}
	if s.SuccessfulRuns > 0 {
		s.CacheHitRatio = float64(s.CacheHits) / float64(s.SuccessfulRuns)
		if inferences > 0 {
			total := time.Duration(prevSuccess)*s.AvgInferenceTime + duration
			s.AvgInferenceTime = total / time.Duration(s.SuccessfulRuns)
		}
	}
}

func (r *statsRecorder) snapshot() *ModelStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := r.stats
	return &stats
}
