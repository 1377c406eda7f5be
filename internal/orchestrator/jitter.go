package orchestrator

import (
	"math/rand"
	"time"
)

// JitterSource hands out deterministic per-instance jitter. The run seed
// XORed with the instance ID fixes each instance's offset, so the same seed
// replays the same ramp spread while instances stay decorrelated.
type JitterSource struct {
	runSeed int64
}

// NewJitterSource creates a jitter source from a run-level seed.
func NewJitterSource(seed int64) *JitterSource {
	return &JitterSource{runSeed: seed}
}

// ForInstance returns a generator whose sequence is fixed by the instance ID.
func (j *JitterSource) ForInstance(instanceID int) *rand.Rand {
	return rand.New(rand.NewSource(int64(instanceID) ^ j.runSeed))
}

// InstanceJitter returns the instance's jitter in [0, maxJitter).
func (j *JitterSource) InstanceJitter(instanceID int, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(j.ForInstance(instanceID).Int63n(int64(maxJitter)))
}
