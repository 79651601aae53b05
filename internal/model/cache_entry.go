package model

// CacheEntry is the metadata half of one cached generation result. The
// image bytes live in the blob store under BlobKey(Key); the entry itself
// is immutable once written.
type CacheEntry struct {
	Key         string `json:"key"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Seed        *int64 `json:"seed,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Ctime       int64  `json:"ctime"`
}
