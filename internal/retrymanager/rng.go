package retrymanager

import "math/rand"

// defaultRNG is the production jitter source: uniform in [0, 1).
func defaultRNG() float64 { return rand.Float64() }
