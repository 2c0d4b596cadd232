// Package gosharpcos exposes the sharpened cosine similarity layer.
package gosharpcos

import (
	"github.com/FlavioCFOliveira/GoSharpCos/internal/layer"
)

// Re-export common types for easier access
type (
	Layer      = layer.Layer
	Config     = layer.Config
	SharpCos2D = layer.SharpCos2D
)

// Configuration errors
var (
	ErrInvalidGroups = layer.ErrInvalidGroups
	ErrFeatureCount  = layer.ErrFeatureCount
)

// NewConfig returns a Config with the default hyperparameters for the
// given channel counts.
func NewConfig(channelsIn, features int) Config {
	return layer.NewConfig(channelsIn, features)
}

// New creates a sharpened cosine similarity layer.
func New(cfg Config) (*SharpCos2D, error) {
	return layer.NewSharpCos2D(cfg)
}
