package layer

import (
	"math"
	"testing"
)

// refLocalNorms computes the window norms by explicit patch extraction,
// as a reference for the ones-kernel formulation.
func refLocalNorms(scs *SharpCos2D, input []float64, h, w, outH, outW int, q float64) []float64 {
	k := scs.kernelSize
	out := make([]float64, scs.groups*outH*outW)
	for g := 0; g < scs.groups; g++ {
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				sum := 0.0
				for c := 0; c < scs.channelsPerKernel; c++ {
					plane := input[(g*scs.channelsPerKernel+c)*h*w:]
					for kh := 0; kh < k; kh++ {
						ih := oh*scs.stride + kh - scs.padding
						if ih < 0 || ih >= h {
							continue
						}
						for kw := 0; kw < k; kw++ {
							iw := ow*scs.stride + kw - scs.padding
							if iw < 0 || iw >= w {
								continue
							}
							v := plane[ih*w+iw]
							sum += v * v
						}
					}
				}
				out[g*outH*outW+oh*outW+ow] = math.Sqrt(sum+scs.eps) + q
			}
		}
	}
	return out
}

func TestLocalNormsWindowedSum(t *testing.T) {
	cfg := NewConfig(1, 1)
	cfg.KernelSize = 2
	scs, err := NewSharpCos2D(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// 3x3 input, 2x2 windows
	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	q := scs.effectiveQ()

	dst := make([]float64, 4)
	scs.localNorms(dst, input, 3, 3, 2, 2, q)

	// Sums of squares per window: 46, 74, 154, 206
	sums := []float64{
		1 + 4 + 16 + 25,
		4 + 9 + 25 + 36,
		16 + 25 + 49 + 64,
		25 + 36 + 64 + 81,
	}
	for i, sum := range sums {
		want := math.Sqrt(sum+scs.eps) + q
		if math.Abs(dst[i]-want) > 1e-12 {
			t.Errorf("window %d: norm = %v, want %v", i, dst[i], want)
		}
	}
}

func TestLocalNormsMatchReference(t *testing.T) {
	cases := []struct {
		name           string
		channels       int
		groups         int
		k, stride, pad int
		h, w           int
	}{
		{"fast path", 3, 1, 3, 1, 0, 7, 9},
		{"padded", 3, 1, 3, 1, 1, 7, 9},
		{"strided", 2, 1, 3, 2, 0, 9, 9},
		{"padded strided", 2, 1, 2, 2, 1, 8, 8},
		{"grouped fast path", 4, 4, 3, 1, 0, 6, 6},
		{"grouped padded", 4, 4, 3, 1, 1, 6, 6},
	}
	for _, tc := range cases {
		cfg := NewConfig(tc.channels, tc.groups*2)
		cfg.Groups = tc.groups
		cfg.KernelSize = tc.k
		cfg.Stride = tc.stride
		cfg.Padding = tc.pad
		scs, err := NewSharpCos2D(cfg)
		if err != nil {
			t.Fatal(err)
		}

		input := make([]float64, tc.channels*tc.h*tc.w)
		rng := NewRNG(11)
		for i := range input {
			input[i] = rng.RandFloat()*2 - 1
		}

		outH, outW := scs.OutputSize(tc.h, tc.w)
		q := scs.effectiveQ()
		got := make([]float64, tc.groups*outH*outW)
		scs.localNorms(got, input, tc.h, tc.w, outH, outW, q)
		want := refLocalNorms(scs, input, tc.h, tc.w, outH, outW, q)

		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-10 {
				t.Errorf("%s: norm[%d] = %v, want %v", tc.name, i, got[i], want[i])
			}
		}
	}
}

func TestLocalNormsGrouped(t *testing.T) {
	// Each group's norm map must only see its own channel.
	cfg := NewConfig(2, 2)
	cfg.Groups = 2
	cfg.KernelSize = 2
	cfg.SharedWeights = false
	scs, err := NewSharpCos2D(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Channel 0 all ones, channel 1 all twos, 3x3 each.
	input := make([]float64, 2*9)
	for i := 0; i < 9; i++ {
		input[i] = 1
		input[9+i] = 2
	}
	q := scs.effectiveQ()

	dst := make([]float64, 2*4)
	scs.localNorms(dst, input, 3, 3, 2, 2, q)

	want0 := math.Sqrt(4+scs.eps) + q  // four 1s per window
	want1 := math.Sqrt(16+scs.eps) + q // four 4s per window
	for i := 0; i < 4; i++ {
		if math.Abs(dst[i]-want0) > 1e-12 {
			t.Errorf("group 0 window %d: %v, want %v", i, dst[i], want0)
		}
		if math.Abs(dst[4+i]-want1) > 1e-12 {
			t.Errorf("group 1 window %d: %v, want %v", i, dst[4+i], want1)
		}
	}
}

func TestLocalNormFloorShrinksWithRawQ(t *testing.T) {
	// Larger raw q shrinks the floor; the floor stays strictly positive.
	cfg := NewConfig(1, 1)
	scs, err := NewSharpCos2D(cfg)
	if err != nil {
		t.Fatal(err)
	}

	prev := math.Inf(1)
	for _, raw := range []float64{-3, 0, 0.3, 3, 30} {
		scs.qRaw = raw
		q := scs.effectiveQ()
		if q <= 0 {
			t.Fatalf("qRaw=%v: floor %v not positive", raw, q)
		}
		if q >= prev {
			t.Fatalf("qRaw=%v: floor %v did not shrink below %v", raw, q, prev)
		}
		prev = q
	}
}
