// ABOUTME: Backend selection strategy for model-based dispatch
// ABOUTME: Default implementation picks uniformly at random among live instances

package gateway

import "math/rand/v2"

// Selector chooses one agent from a model pool. Implementations must be
// safe for concurrent use; pools are immutable after startup.
type Selector interface {
	Pick(pool []*Agent) *Agent
}

// UniformRandom returns the default strategy: every live instance in the
// pool is equally likely. Load-aware strategies can replace it without
// touching the dispatch handlers.
func UniformRandom() Selector {
	return uniformRandom{}
}

type uniformRandom struct{}

func (uniformRandom) Pick(pool []*Agent) *Agent {
	if len(pool) == 0 {
		return nil
	}
	return pool[rand.IntN(len(pool))]
}
