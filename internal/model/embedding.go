package model

// EmbeddingRecord ties a prompt embedding to its cache entry, one-to-one by
// cache key. The record never owns the blob.
type EmbeddingRecord struct {
	Key       string    `json:"key"`
	Model     string    `json:"model"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Embedding []float32 `json:"embedding"`
	Ctime     int64     `json:"ctime"`
}

// VectorFilter restricts nearest-neighbor candidates to records produced
// with the same generation shape, so a 512x512 request never matches a
// 1024x1024 record.
type VectorFilter struct {
	Model  string
	Width  int
	Height int
}

// SimilarityMatch is one nearest-neighbor candidate, scored by cosine
// similarity in [-1, 1].
type SimilarityMatch struct {
	Key   string
	Score float64
}
