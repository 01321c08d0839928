package volume

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is the single source of randomness for the engine: trade sizing,
// direction coin flips, active-set shuffles and timing jitter all go through
// it, so tests can script the whole control flow.
type Rand interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand returns a time-seeded, mutex-guarded PCG source.
func NewRand() Rand {
	seed := uint64(time.Now().UnixNano())
	return &lockedRand{rng: rand.New(rand.NewPCG(seed, seed>>1))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, swap)
}
