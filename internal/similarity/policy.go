// Package similarity holds the acceptance policy for nearest-neighbor
// cache candidates.
package similarity

import "math"

// Policy decides whether a similarity score is good enough to serve a
// cached result. The threshold is a step function of prompt length: short
// prompts move proportionally further in embedding space per changed word,
// so the two bounds are tuned independently and must never be derived from
// one another. Empirically a single attribute swap ("red car" vs "blue
// car") has to land below the applicable bound while plain rephrasings
// ("large" vs "big") land above it.
type Policy struct {
	// ShortThreshold applies to prompts shorter than LengthCutoff runes.
	ShortThreshold float64
	// LongThreshold applies at and above LengthCutoff.
	LongThreshold float64
	LengthCutoff  int
}

// DefaultPolicy returns the tuned production bounds.
func DefaultPolicy() Policy {
	return Policy{
		ShortThreshold: 0.86,
		LongThreshold:  0.92,
		LengthCutoff:   48,
	}
}

// Threshold returns the acceptance bound for a prompt of the given rune
// length. No interpolation between the two bounds.
func (p Policy) Threshold(promptLen int) float64 {
	if promptLen < p.LengthCutoff {
		return p.ShortThreshold
	}
	return p.LongThreshold
}

// Accepts reports whether score clears the threshold.
func (p Policy) Accepts(score, threshold float64) bool {
	return score >= threshold
}

// Cosine computes cosine similarity in [-1, 1]. A zero vector on either
// side scores 0 rather than dividing by zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZero reports whether every component of v is zero. A well-behaved
// embedding model never produces one, but a zero query vector would make
// every index distance meaningless, so callers skip the search instead.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
