package layer

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// localNorms fills dst ([groups, outH, outW]) with the l2-norm of the
// input values under each kernel window, smoothed by eps and floored by
// the learned q.
//
// Summing the squared inputs over a sliding window is algebraically the
// same as correlating the squared input with an all-ones kernel of the
// real kernels' [groups, channelsPerKernel, k, k] shape, with identical
// stride, padding and grouping. That is what happens here, without ever
// materializing patches or the unit kernel: the stride-1 unpadded path
// accumulates contiguous row blocks, the general path walks kernel taps
// with bound checks.
//
// Each group's map serves the features/groups output channels of that
// group; callers index it per group rather than replicating it.
func (s *SharpCos2D) localNorms(dst, input []float64, h, w, outH, outW int, q float64) {
	k := s.kernelSize
	outSize := outH * outW
	plane := h * w

	if len(s.sqBuf) < len(input) {
		s.sqBuf = make([]float64, len(input))
	}
	sq := s.sqBuf[:len(input)]
	vecmath.MulBlock(sq, input, input)

	for i := range dst {
		dst[i] = 0
	}

	for g := 0; g < s.groups; g++ {
		base := g * outSize
		for c := 0; c < s.channelsPerKernel; c++ {
			sqPlane := sq[(g*s.channelsPerKernel+c)*plane:][:plane]
			if s.padding == 0 && s.stride == 1 {
				for oh := 0; oh < outH; oh++ {
					row := dst[base+oh*outW : base+oh*outW+outW]
					for kh := 0; kh < k; kh++ {
						src := sqPlane[(oh+kh)*w:]
						for kw := 0; kw < k; kw++ {
							vecmath.AddBlockInPlace(row, src[kw:kw+outW])
						}
					}
				}
			} else {
				for kh := 0; kh < k; kh++ {
					for kw := 0; kw < k; kw++ {
						for oh := 0; oh < outH; oh++ {
							ih := oh*s.stride + kh - s.padding
							if ih < 0 || ih >= h {
								continue
							}
							srcRow := sqPlane[ih*w:]
							rowOut := base + oh*outW
							for ow := 0; ow < outW; ow++ {
								iw := ow*s.stride + kw - s.padding
								if iw >= 0 && iw < w {
									dst[rowOut+ow] += srcRow[iw]
								}
							}
						}
					}
				}
			}
		}
	}

	for i := range dst {
		dst[i] = math.Sqrt(dst[i]+s.eps) + q
	}
}
