package linkctl

import (
	"math/rand/v2"
	"time"
)

// Clock abstracts time.Now so ping-tick/beacon-tick tests can drive the
// controller with synthetic timestamps (spec.md §3 Controller.clock).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RNG abstracts the randomized-scan-start source (spec.md §3
// Controller.rng, §9 "randomized scan start is deliberate").
type RNG interface {
	IntN(n int) int
}

type systemRNG struct{}

func (systemRNG) IntN(n int) int { return rand.IntN(n) }
