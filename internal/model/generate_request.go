package model

// GenerateRequest is a fully normalized image-generation request: defaults
// are already applied, so two requests that only differ in "unspecified vs
// default" carry identical generation params here.
type GenerateRequest struct {
	Prompt string
	Model  string
	Width  int
	Height int
	Seed   *int64

	// Cache-control fields. These never participate in the cache key and
	// are stripped before the request reaches the upstream generator.
	NoCache       bool
	MinSimilarity float64
}
