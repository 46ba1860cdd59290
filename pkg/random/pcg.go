// Package random provides a deterministic pseudo-random stream for the
// simulation. The generator is PCG32 (pcg32_random_r from the PCG
// reference implementation), chosen because its output is defined purely
// in terms of 64-bit integer arithmetic and therefore bit-identical on
// every platform and build. Two consumers seeded the same way that perform
// the same sequence of draws observe the same values, which is what makes
// replays and server/client verification possible.
package random

const (
	defaultState = 0x853c49e6748fea9b
	defaultSeq   = 0xda3e39cb94b95bdb

	multiplier = 6364136223846793005
)

// PCG32 is a PCG XSH RR 64/32 generator. The zero value is not usable;
// create one with NewPCG32 or NewPCG32Seeded.
type PCG32 struct {
	state uint64
	inc   uint64
}

// NewPCG32 returns a generator seeded with the reference default stream.
func NewPCG32() *PCG32 {
	p := &PCG32{}
	p.Seed(defaultState, defaultSeq)
	return p
}

// NewPCG32Seeded returns a generator seeded with the given state and
// sequence selector.
func NewPCG32Seeded(initState, initSeq uint64) *PCG32 {
	p := &PCG32{}
	p.Seed(initState, initSeq)
	return p
}

// Seed resets the stream. Matches pcg32_srandom_r from the reference
// implementation exactly; changing this breaks replay compatibility.
func (p *PCG32) Seed(initState, initSeq uint64) {
	p.state = 0
	p.inc = (initSeq << 1) | 1
	p.Uint32()
	p.state += initState
	p.Uint32()
}

// Uint32 returns the next value in the stream and advances it.
func (p *PCG32) Uint32() uint32 {
	old := p.state
	p.state = old*multiplier + p.inc
	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// Uint64 returns the next two stream values combined into 64 bits.
func (p *PCG32) Uint64() uint64 {
	hi := uint64(p.Uint32())
	lo := uint64(p.Uint32())
	return hi<<32 | lo
}

// IntN returns a uniform value in [0, n). Uses the unbiased bounded
// variant from the reference implementation so the sequence of draws stays
// reproducible for any n.
func (p *PCG32) IntN(n int) int {
	if n <= 0 {
		panic("random: IntN called with non-positive n")
	}
	bound := uint32(n)
	threshold := -bound % bound
	for {
		r := p.Uint32()
		if r >= threshold {
			return int(r % bound)
		}
	}
}

// Float32 returns a uniform value in [0, 1) with 24 bits of precision.
func (p *PCG32) Float32() float32 {
	return float32(p.Uint32()>>8) / (1 << 24)
}

// Float64 returns a uniform value in [0, 1) with 52 bits of precision.
func (p *PCG32) Float64() float64 {
	return float64(p.Uint64()>>12) / (1 << 52)
}
