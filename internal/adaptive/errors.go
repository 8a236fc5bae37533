package adaptive

import "errors"

// Sentinel errors for the adaptive package.
// Use errors.Is to check: errors.Is(err, adaptive.ErrInvalidConfig)
var (
	ErrInvalidConfig     = errors.New("adaptive: invalid config")
	ErrBinLayoutMismatch = errors.New("adaptive: bin layout mismatch")
)
