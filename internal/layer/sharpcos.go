package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Config holds the construction parameters for a SharpCos2D layer.
// NewConfig fills in the defaults; only ChannelsIn and Features are
// mandatory.
type Config struct {
	ChannelsIn    int
	Features      int // number of output channels
	KernelSize    int
	Padding       int
	Stride        int
	Groups        int
	SharedWeights bool

	// Initialization hyperparameters for the sharpening exponent p and
	// the norm floor q. Raw parameter values are stored pre-scaled and
	// mapped through an exponential at forward time, keeping the
	// effective values strictly positive with smooth gradients.
	PInit  float64
	QInit  float64
	PScale float64
	QScale float64

	// Eps is the smoothing constant used in the local norm and as the
	// sharpening base offset.
	Eps float64

	// Seed for the layer's own generator. Zero selects a deterministic
	// seed derived from the layer dimensions.
	Seed uint64
}

// NewConfig returns a Config with the default hyperparameters.
func NewConfig(channelsIn, features int) Config {
	return Config{
		ChannelsIn:    channelsIn,
		Features:      features,
		KernelSize:    3,
		Padding:       0,
		Stride:        1,
		Groups:        1,
		SharedWeights: true,
		PInit:         0.7,
		QInit:         1.0,
		PScale:        5.0,
		QScale:        0.3,
		Eps:           1e-6,
	}
}

// SharpCos2D computes a sharpened cosine similarity between local input
// patches and learned kernels. It behaves like a 2D correlation layer
// whose kernels and input windows are both l2-normalized, followed by a
// sign-preserving power sharpening with a learned per-kernel exponent.
//
// Parameters are flat row-major slices, as in the other layers. The
// weight bank has logical shape [nKernels, channelsPerKernel, k, k];
// pRaw holds one raw exponent per kernel and qRaw a single raw norm
// floor. Both are mapped through exp at forward time, so the effective
// p and q are strictly positive for every raw value an optimizer can
// produce.
type SharpCos2D struct {
	channelsIn        int
	features          int
	kernelSize        int
	stride            int
	padding           int
	groups            int
	sharedWeights     bool
	channelsPerKernel int
	nKernels          int

	pScale float64
	qScale float64
	eps    float64

	// Learnable parameters. Mutated only through SetParams, never by
	// Forward.
	weights []float64 // [nKernels, channelsPerKernel, k, k]
	pRaw    []float64 // [nKernels]
	qRaw    float64

	// Explicitly set input dimensions (if set, overrides inference)
	setInputHeight int
	setInputWidth  int

	// Pre-allocated forward buffers
	normWeights []float64 // tiled and normalized bank [features, channelsPerKernel, k, k]
	pBuf        []float64 // effective exponent per output channel [features]
	sqBuf       []float64 // squared input
	xnormBuf    []float64 // local window norms [groups, outH, outW]
	outputBuf   []float64 // [features, outH, outW]
}

var _ Layer = (*SharpCos2D)(nil)

// NewSharpCos2D creates a sharpened cosine similarity layer from cfg.
// It returns ErrInvalidGroups when cfg.Groups is neither 1 nor
// cfg.ChannelsIn, and ErrFeatureCount when cfg.Features is not a
// multiple of cfg.Groups.
func NewSharpCos2D(cfg Config) (*SharpCos2D, error) {
	if cfg.Groups != 1 && cfg.Groups != cfg.ChannelsIn {
		return nil, fmt.Errorf("%w: groups=%d, channels_in=%d", ErrInvalidGroups, cfg.Groups, cfg.ChannelsIn)
	}
	if cfg.Features%cfg.Groups != 0 {
		return nil, fmt.Errorf("%w: features=%d, groups=%d", ErrFeatureCount, cfg.Features, cfg.Groups)
	}

	// With a single group there is nothing to share across.
	shared := cfg.SharedWeights
	if cfg.Groups == 1 {
		shared = false
	}

	// Exact division: groups is either 1 or channelsIn.
	channelsPerKernel := cfg.ChannelsIn / cfg.Groups
	weightsPerKernel := channelsPerKernel * cfg.KernelSize * cfg.KernelSize
	nKernels := cfg.Features
	if shared {
		nKernels = cfg.Features / cfg.Groups
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(cfg.ChannelsIn*1000 + cfg.Features*100 + cfg.KernelSize + 7)
	}
	rng := NewRNG(seed)

	// Uniform in [-s, s] with s = sqrt(3/weightsPerKernel) gives each
	// kernel an expected l2-norm of about 1, so the normalization in the
	// forward pass is only a small correction.
	scale := math.Sqrt(3.0 / float64(weightsPerKernel))
	weights := make([]float64, nKernels*weightsPerKernel)
	for i := range weights {
		weights[i] = rng.RandFloat()*2*scale - scale
	}

	pRaw := make([]float64, nKernels)
	for i := range pRaw {
		pRaw[i] = cfg.PInit * cfg.PScale
	}

	return &SharpCos2D{
		channelsIn:        cfg.ChannelsIn,
		features:          cfg.Features,
		kernelSize:        cfg.KernelSize,
		stride:            cfg.Stride,
		padding:           cfg.Padding,
		groups:            cfg.Groups,
		sharedWeights:     shared,
		channelsPerKernel: channelsPerKernel,
		nKernels:          nKernels,
		pScale:            cfg.PScale,
		qScale:            cfg.QScale,
		eps:               cfg.Eps,
		weights:           weights,
		pRaw:              pRaw,
		qRaw:              cfg.QInit * cfg.QScale,
	}, nil
}

// OutputSize returns the output spatial dimensions for an input of the
// given height and width.
func (s *SharpCos2D) OutputSize(height, width int) (int, int) {
	// Output size: (input + 2*padding - kernel) / stride + 1
	outH := (height+2*s.padding-s.kernelSize)/s.stride + 1
	outW := (width+2*s.padding-s.kernelSize)/s.stride + 1
	return outH, outW
}

// SetInputDimensions explicitly sets the input dimensions for subsequent
// forward passes. This allows non-square inputs and avoids automatic
// inference.
func (s *SharpCos2D) SetInputDimensions(height, width int) {
	s.setInputHeight = height
	s.setInputWidth = width
}

// inputDims resolves the spatial dimensions for an input of the given
// total length, either from SetInputDimensions or by square inference.
func (s *SharpCos2D) inputDims(total int) (int, int) {
	if total%s.channelsIn != 0 {
		panic("SharpCos2D: input length not divisible by channels_in")
	}
	channelSize := total / s.channelsIn
	if s.setInputHeight > 0 && s.setInputWidth > 0 {
		if s.setInputHeight*s.setInputWidth != channelSize {
			panic(fmt.Sprintf("SharpCos2D: input dimensions %dx%d don't match channel size %d",
				s.setInputHeight, s.setInputWidth, channelSize))
		}
		return s.setInputHeight, s.setInputWidth
	}
	h := int(math.Sqrt(float64(channelSize)))
	if h*h != channelSize {
		panic(fmt.Sprintf("SharpCos2D: cannot infer non-square dimensions from channel size %d; call SetInputDimensions", channelSize))
	}
	return h, h
}

// effectiveP fills dst (length features) with the sharpening exponent of
// each output channel: exp(pRaw/pScale), tiled across groups when the
// weight bank is shared.
func (s *SharpCos2D) effectiveP(dst []float64) {
	for f := 0; f < s.features; f++ {
		j := f
		if s.sharedWeights {
			j = f % s.nKernels
		}
		dst[f] = math.Exp(s.pRaw[j] / s.pScale)
	}
}

// effectiveQ returns the norm floor exp(-qRaw/qScale). Larger raw values
// shrink the floor.
func (s *SharpCos2D) effectiveQ() float64 {
	return math.Exp(-s.qRaw / s.qScale)
}

// weightNorm returns the l2-norm of one kernel, reduced over its channel
// and spatial axes. No smoothing epsilon is applied: a kernel driven to
// an exactly zero norm by training yields Inf downstream, a known latent
// failure mode that is left unguarded rather than silently patched.
func (s *SharpCos2D) weightNorm(kernel []float64) float64 {
	return floats.Norm(kernel, 2)
}

// Forward performs a forward pass on a single sample.
// input: flattened [channelsIn, height, width]
// Returns: flattened [features, outH, outW]
// The returned slice is an internal buffer, valid until the next call.
func (s *SharpCos2D) Forward(input []float64) []float64 {
	h, w := s.inputDims(len(input))
	return s.forwardSample(input, h, w)
}

// ForwardBatch performs a forward pass on a batch.
// input: flattened [batch, channelsIn, height, width]
// Returns: freshly allocated [batch, features, outH, outW]
func (s *SharpCos2D) ForwardBatch(input []float64, batch int) []float64 {
	if batch <= 0 {
		panic("SharpCos2D: batch must be positive")
	}
	if len(input)%batch != 0 {
		panic("SharpCos2D: input length not divisible by batch")
	}
	sample := len(input) / batch
	h, w := s.inputDims(sample)
	outH, outW := s.OutputSize(h, w)
	outSample := s.features * outH * outW

	out := make([]float64, batch*outSample)
	for b := 0; b < batch; b++ {
		res := s.forwardSample(input[b*sample:(b+1)*sample], h, w)
		copy(out[b*outSample:], res)
	}
	return out
}

func (s *SharpCos2D) forwardSample(input []float64, h, w int) []float64 {
	outH, outW := s.OutputSize(h, w)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("SharpCos2D: input %dx%d too small for kernel %d with stride %d, padding %d",
			h, w, s.kernelSize, s.stride, s.padding))
	}

	k := s.kernelSize
	kk := k * k
	wpk := s.channelsPerKernel * kk
	outSize := outH * outW
	outputsPerGroup := s.features / s.groups

	// Ensure buffers are sized correctly
	if len(s.normWeights) < s.features*wpk {
		s.normWeights = make([]float64, s.features*wpk)
	}
	if len(s.pBuf) < s.features {
		s.pBuf = make([]float64, s.features)
	}
	if len(s.xnormBuf) < s.groups*outSize {
		s.xnormBuf = make([]float64, s.groups*outSize)
	}
	if len(s.outputBuf) < s.features*outSize {
		s.outputBuf = make([]float64, s.features*outSize)
	}

	// Re-parametrize p and q: both strictly positive for any raw value.
	s.effectiveP(s.pBuf)
	q := s.effectiveQ()

	// Expand the bank to one kernel per output channel (a tiled copy when
	// weights are shared across groups) and normalize each kernel to unit
	// l2-norm.
	for f := 0; f < s.features; f++ {
		j := f
		if s.sharedWeights {
			j = f % s.nKernels
		}
		src := s.weights[j*wpk : (j+1)*wpk]
		dst := s.normWeights[f*wpk : (f+1)*wpk]
		copy(dst, src)
		floats.Scale(1/s.weightNorm(src), dst)
	}

	// Local window energy per group, smoothed and floored by q.
	s.localNorms(s.xnormBuf[:s.groups*outSize], input, h, w, outH, outW, q)

	// Grouped correlation against the normalized kernels.
	raw := s.outputBuf[:s.features*outSize]
	for i := range raw {
		raw[i] = 0
	}
	for f := 0; f < s.features; f++ {
		g := f / outputsPerGroup
		wBase := f * wpk
		outBase := f * outSize
		for c := 0; c < s.channelsPerKernel; c++ {
			off := (g*s.channelsPerKernel + c) * h * w
			plane := input[off : off+h*w]
			wChan := s.normWeights[wBase+c*kk : wBase+(c+1)*kk]
			if s.padding == 0 {
				// Interior windows only: each kernel row meets a
				// contiguous input row segment.
				for oh := 0; oh < outH; oh++ {
					ih := oh * s.stride
					rowOut := raw[outBase+oh*outW : outBase+oh*outW+outW]
					for kh := 0; kh < k; kh++ {
						inRow := plane[(ih+kh)*w:]
						wRow := wChan[kh*k : kh*k+k]
						for ow := 0; ow < outW; ow++ {
							iw := ow * s.stride
							rowOut[ow] += floats.Dot(wRow, inRow[iw:iw+k])
						}
					}
				}
			} else {
				for kh := 0; kh < k; kh++ {
					for kw := 0; kw < k; kw++ {
						wv := wChan[kh*k+kw]
						for oh := 0; oh < outH; oh++ {
							ih := oh*s.stride + kh - s.padding
							if ih < 0 || ih >= h {
								continue
							}
							inRow := plane[ih*w:]
							rowOut := outBase + oh*outW
							for ow := 0; ow < outW; ow++ {
								iw := ow*s.stride + kw - s.padding
								if iw >= 0 && iw < w {
									raw[rowOut+ow] += wv * inRow[iw]
								}
							}
						}
					}
				}
			}
		}

		// Divide by the group's window norm to get the cosine
		// similarity, then sharpen keeping the original sign. The
		// epsilon keeps the base of the fractional power away from
		// zero; the sign is carried separately because a negative base
		// under a non-integer exponent is undefined.
		p := s.pBuf[f]
		xnorm := s.xnormBuf[g*outSize : (g+1)*outSize]
		out := raw[outBase : outBase+outSize]
		for i := 0; i < outSize; i++ {
			cs := out[i] / xnorm[i]
			switch {
			case cs > 0:
				out[i] = math.Pow(cs+s.eps, p)
			case cs < 0:
				out[i] = -math.Pow(-cs+s.eps, p)
			default:
				out[i] = 0
			}
		}
	}

	return raw
}

// Params returns all layer parameters flattened (copy): the weight bank,
// then the raw per-kernel exponents, then the raw norm floor.
func (s *SharpCos2D) Params() []float64 {
	total := len(s.weights) + len(s.pRaw) + 1
	params := make([]float64, 0, total)
	params = append(params, s.weights...)
	params = append(params, s.pRaw...)
	params = append(params, s.qRaw)
	return params
}

// SetParams updates all layer parameters from a flattened slice
// (in-place), in the same order as Params.
func (s *SharpCos2D) SetParams(params []float64) {
	copy(s.weights, params[:len(s.weights)])
	copy(s.pRaw, params[len(s.weights):len(s.weights)+len(s.pRaw)])
	s.qRaw = params[len(s.weights)+len(s.pRaw)]
}

// Clone creates a deep copy of the layer.
func (s *SharpCos2D) Clone() *SharpCos2D {
	clone := *s
	clone.weights = append([]float64(nil), s.weights...)
	clone.pRaw = append([]float64(nil), s.pRaw...)
	// Forward buffers are per-instance
	clone.normWeights = nil
	clone.pBuf = nil
	clone.sqBuf = nil
	clone.xnormBuf = nil
	clone.outputBuf = nil
	return &clone
}

// InSize returns the number of input channels.
func (s *SharpCos2D) InSize() int {
	return s.channelsIn
}

// OutSize returns the number of output channels.
func (s *SharpCos2D) OutSize() int {
	return s.features
}

// GetKernelSize returns the kernel size.
func (s *SharpCos2D) GetKernelSize() int {
	return s.kernelSize
}

// GetStride returns the stride.
func (s *SharpCos2D) GetStride() int {
	return s.stride
}

// GetPadding returns the padding.
func (s *SharpCos2D) GetPadding() int {
	return s.padding
}

// Groups returns the number of channel groups.
func (s *SharpCos2D) Groups() int {
	return s.groups
}

// SharedWeights reports whether one kernel bank is shared across all
// groups. Always false for a single group.
func (s *SharpCos2D) SharedWeights() bool {
	return s.sharedWeights
}

// NKernels returns the number of learned kernels in the weight bank.
func (s *SharpCos2D) NKernels() int {
	return s.nKernels
}

// ChannelsPerKernel returns the number of input channels each kernel
// spans.
func (s *SharpCos2D) ChannelsPerKernel() int {
	return s.channelsPerKernel
}
