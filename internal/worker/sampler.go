package worker

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultReplaceRate is the chance that a repeated error replaces the stored
// example during report consolidation.
const DefaultReplaceRate = 0.1

// Sampler decides whether a repeated error's example replaces the stored one.
type Sampler interface {
	Replace() bool
}

// RateSampler replaces with a fixed probability. Safe for concurrent use.
type RateSampler struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rate float64
}

// NewRateSampler returns a sampler with the given replacement rate, seeded
// deterministically from seed.
func NewRateSampler(rate float64, seed uint64) *RateSampler {
	return &RateSampler{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		rate: rate,
	}
}

// NewDefaultSampler returns a time-seeded sampler at DefaultReplaceRate.
func NewDefaultSampler() *RateSampler {
	return NewRateSampler(DefaultReplaceRate, uint64(time.Now().UnixNano()))
}

// Replace reports whether to swap in the new example.
func (s *RateSampler) Replace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.rate
}
