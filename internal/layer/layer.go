// Package layer provides neural network layer implementations.
package layer

// Layer is a differentiable layer: a forward transform plus access to its
// trainable parameters. Gradients are computed by an external
// differentiation engine over the forward expression, and optimizer
// updates arrive through SetParams between forward calls; layers carry no
// backward code of their own.
type Layer interface {
	Forward(x []float64) []float64
	Params() []float64
	SetParams([]float64)
}
