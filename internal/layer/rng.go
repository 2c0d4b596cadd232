package layer

// RNG is a small deterministic generator used for parameter
// initialization. Layers own their generator and seed it explicitly, so
// construction is reproducible without touching the process-wide source.
type RNG struct {
	state uint64
}

// NewRNG creates a generator seeded with the given value.
func NewRNG(seed uint64) *RNG {
	return &RNG{state: seed}
}

// next advances the state one SplitMix64 step.
func (r *RNG) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// RandFloat returns a uniform value in [0, 1).
func (r *RNG) RandFloat() float64 {
	return float64(r.next()>>11) / (1 << 53)
}
