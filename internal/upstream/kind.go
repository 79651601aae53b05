package upstream

import (
	"fmt"

	appErr "github.com/pixelgate/pixelgate/internal/pkg/errors"
)

// Kind names a generation backend the upstream understands.
type Kind string

const (
	KindFlux  Kind = "flux"
	KindTurbo Kind = "turbo"
)

// ResolveKind maps a request model name to a known backend.
func ResolveKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindFlux:
		return KindFlux, nil
	case KindTurbo:
		return KindTurbo, nil
	default:
		return "", fmt.Errorf("unknown model: %s, %w", name, appErr.ErrInvalid)
	}
}
