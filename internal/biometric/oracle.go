// Package biometric holds the simulated biometric verification oracle.
// A real deployment must replace this with a device-attestation verifier;
// the simulation exists so the MFA flow can be exercised end to end.
package biometric

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	scanDelay   = 1500 * time.Millisecond
	successRate = 0.9
)

// SimulatedOracle approximates a biometric device: a scan delay followed
// by a probabilistic outcome.
type SimulatedOracle struct {
	mu     sync.Mutex
	rng    *rand.Rand
	delay  time.Duration
	logger *zap.Logger
}

// NewSimulatedOracle seeds the oracle from the current time.
func NewSimulatedOracle(logger *zap.Logger) *SimulatedOracle {
	return &SimulatedOracle{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		delay:  scanDelay,
		logger: logger,
	}
}

// NewTestOracle builds an oracle with a fixed seed and no delay, so tests
// are deterministic and fast.
func NewTestOracle(seed int64) *SimulatedOracle {
	return &SimulatedOracle{
		rng:    rand.New(rand.NewSource(seed)),
		logger: zap.NewNop(),
	}
}

// Attempt simulates a biometric scan for the user. It honors context
// cancellation during the scan delay and succeeds ~90% of the time.
func (o *SimulatedOracle) Attempt(ctx context.Context, userID string) (bool, error) {
	if o.delay > 0 {
		timer := time.NewTimer(o.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	o.mu.Lock()
	success := o.rng.Float64() > 1-successRate
	o.mu.Unlock()

	o.logger.Debug("biometric simulation",
		zap.String("user_id", userID),
		zap.Bool("success", success),
	)
	return success, nil
}
