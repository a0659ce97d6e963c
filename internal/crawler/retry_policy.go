package crawler

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// PassPolicy decides whether the orchestrator starts another fetch pass and
// how long it waits first.
type PassPolicy struct {
	// MaxPasses caps the number of passes; zero means no cap.
	MaxPasses int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter randomizes the upper half of each delay.
	Jitter bool
}

// NewExponentialPassPolicy builds a policy with sane defaults.
func NewExponentialPassPolicy() PassPolicy {
	return PassPolicy{
		MaxPasses: 10,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    true,
	}
}

// ShouldContinue reports whether another pass is warranted after completing
// pass number completed (1-based) with transientErrors retryable failures.
func (p PassPolicy) ShouldContinue(completed, transientErrors int) bool {
	if transientErrors == 0 {
		return false
	}
	if p.MaxPasses > 0 && completed >= p.MaxPasses {
		return false
	}
	return true
}

// Backoff returns the wait before pass completed+1.
func (p PassPolicy) Backoff(completed int) time.Duration {
	if p.BaseDelay <= 0 || completed <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(completed-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if !p.Jitter {
		return time.Duration(delay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
