package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/FlavioCFOliveira/GoSharpCos/gosharpcos"
)

// Demo programs for the sharpened cosine similarity layer
func main() {
	rand.Seed(42)

	fmt.Println("=== SharpCos2D Examples ===")

	fmt.Println("Example 1: Ungrouped layer on an 8x8 image")
	exampleUngrouped()

	fmt.Println("\nExample 2: Depthwise groups with a shared kernel bank")
	exampleShared()
}

func exampleUngrouped() {
	cfg := gosharpcos.NewConfig(3, 6)
	scs, err := gosharpcos.New(cfg)
	if err != nil {
		panic(err)
	}

	// Input: [3 channels, 8 height, 8 width]
	input := make([]float64, 3*8*8)
	for i := range input {
		input[i] = rand.Float64()*2 - 1
	}

	output := scs.Forward(input)
	outH, outW := scs.OutputSize(8, 8)
	fmt.Printf("  kernels: %d, shared weights: %v\n", scs.NKernels(), scs.SharedWeights())
	fmt.Printf("  output: [%d, %d, %d] (%d values)\n", scs.OutSize(), outH, outW, len(output))
	fmt.Printf("  output range: [%.4f, %.4f]\n", minOf(output), maxOf(output))
}

func exampleShared() {
	cfg := gosharpcos.NewConfig(4, 8)
	cfg.Groups = 4
	cfg.Padding = 1
	scs, err := gosharpcos.New(cfg)
	if err != nil {
		panic(err)
	}

	input := make([]float64, 4*8*8)
	for i := range input {
		input[i] = rand.Float64()*2 - 1
	}

	output := scs.ForwardBatch(input, 1)
	outH, outW := scs.OutputSize(8, 8)
	fmt.Printf("  kernels: %d, channels per kernel: %d\n", scs.NKernels(), scs.ChannelsPerKernel())
	fmt.Printf("  output: [1, %d, %d, %d] (%d values)\n", scs.OutSize(), outH, outW, len(output))
	fmt.Printf("  output range: [%.4f, %.4f]\n", minOf(output), maxOf(output))
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}
