package model

type CacheStatus string

const (
	CacheStatusHit     CacheStatus = "HIT"
	CacheStatusSimilar CacheStatus = "SIMILAR"
	CacheStatusMiss    CacheStatus = "MISS"
)

// CacheResult is what one request resolves to: the image bytes plus the
// annotations the handler exposes as response headers.
type CacheResult struct {
	Status      CacheStatus
	Key         string
	MatchedKey  string
	Score       float64
	Data        []byte
	ContentType string
}

// UpstreamModel describes one generator model reported by the upstream API.
type UpstreamModel struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
