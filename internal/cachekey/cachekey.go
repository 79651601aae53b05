// Package cachekey derives the canonical identity of a generation request.
// Only output-affecting parameters participate; cache-control fields never
// do.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/pixelgate/pixelgate/internal/model"
)

// Canonicalize builds the cache key for a prompt and its allow-listed
// params: param names sorted lexicographically, empty values dropped,
// joined as name=value pairs. The same logical input always yields the
// same key regardless of map iteration order.
func Canonicalize(prompt string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name, value := range params {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+params[name])
	}
	return prompt + "|" + strings.Join(pairs, "&")
}

// Params extracts the allow-listed generation parameters from a normalized
// request. Callers must have applied defaults first, so "unspecified" and
// "explicit default" canonicalize identically. Seed is the only truly
// optional param: absent means the upstream picks one, which is part of the
// output identity, so it only appears when set.
func Params(req *model.GenerateRequest) map[string]string {
	params := map[string]string{
		"model":  req.Model,
		"width":  strconv.Itoa(req.Width),
		"height": strconv.Itoa(req.Height),
	}
	if req.Seed != nil {
		params["seed"] = strconv.FormatInt(*req.Seed, 10)
	}
	return params
}

// ForRequest is the composition most callers want.
func ForRequest(req *model.GenerateRequest) string {
	return Canonicalize(req.Prompt, Params(req))
}

// BlobKey maps a cache key to the object key used in the blob store. Keys
// are hashed so raw prompt text never appears in object paths.
func BlobKey(cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return hex.EncodeToString(sum[:])
}
