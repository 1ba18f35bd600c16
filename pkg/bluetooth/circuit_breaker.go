/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bluetooth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

// ErrCircuitOpen is returned when the breaker rejects an operation without
// touching the radio.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds configuration for a per-peer circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long to wait before transitioning from open to
	// half-open.
	RecoveryTimeout time.Duration
	// HalfOpenMaxAttempts caps the probes admitted while half-open.
	HalfOpenMaxAttempts int
}

// BreakerConfigFromConfig extracts the breaker settings from the daemon
// configuration.
func BreakerConfigFromConfig(cfg *models.Config) BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    cfg.BreakerFailureThreshold,
		RecoveryTimeout:     cfg.BreakerRecoveryTimeout(),
		HalfOpenMaxAttempts: cfg.BreakerHalfOpenMaxAttempts,
	}
}

// CircuitBreaker isolates one misbehaving peer so its radio trouble cannot
// stall the pipeline. Failures are counted consecutively: any success while
// closed zeroes the count, and a single successful half-open probe closes
// the circuit again.
type CircuitBreaker struct {
	config       BreakerConfig
	state        models.BreakerState
	failureCount int
	probeCount   int
	openedAt     time.Time
	mu           sync.RWMutex
	clock        clock.Clock
	logger       logger.Logger
	name         string // peer address, for logging
}

// NewCircuitBreaker creates a closed circuit breaker for one peer.
func NewCircuitBreaker(name string, config BreakerConfig, clk clock.Clock, log logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  models.BreakerClosed,
		clock:  clk,
		logger: log,
		name:   name,
	}
}

// Execute runs fn through the circuit breaker and records its outcome. When
// the circuit is open the call is rejected with ErrCircuitOpen and fn never
// runs.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("peer %s: %w", cb.name, ErrCircuitOpen)
	}

	err := fn()
	cb.RecordResult(err)

	return err
}

// Allow reports whether an operation may proceed, admitting half-open
// probes once the recovery timeout has elapsed. Callers that use Allow
// directly (for operations whose outcome arrives asynchronously) must
// follow up with RecordResult, RecordSuccess, or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case models.BreakerClosed:
		return true

	case models.BreakerOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.config.RecoveryTimeout {
			return false
		}

		cb.state = models.BreakerHalfOpen
		cb.probeCount = 1
		cb.logger.Info().
			Str("peer", cb.name).
			Msg("Circuit breaker transitioning to half-open")

		return true

	case models.BreakerHalfOpen:
		if cb.probeCount >= cb.config.HalfOpenMaxAttempts {
			return false
		}

		cb.probeCount++

		return true

	default:
		return false
	}
}

// RecordResult records the outcome of an operation admitted by Allow.
func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.onSuccess()
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.onFailure()
}

// onFailure handles a failed operation. Caller holds the lock.
func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++

	switch cb.state {
	case models.BreakerClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.open()
			cb.logger.Warn().
				Str("peer", cb.name).
				Int("failure_count", cb.failureCount).
				Msg("Circuit breaker opened due to failures")
		}

	case models.BreakerHalfOpen:
		cb.open()
		cb.logger.Warn().
			Str("peer", cb.name).
			Msg("Circuit breaker reopened after failed probe")
	}
}

// onSuccess handles a successful operation. Caller holds the lock.
func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case models.BreakerHalfOpen:
		cb.state = models.BreakerClosed
		cb.failureCount = 0
		cb.probeCount = 0
		cb.logger.Info().
			Str("peer", cb.name).
			Msg("Circuit breaker closed after successful recovery")

	case models.BreakerClosed:
		cb.failureCount = 0
	}
}

// open moves to the open state and restarts the recovery timer. Caller
// holds the lock.
func (cb *CircuitBreaker) open() {
	cb.state = models.BreakerOpen
	cb.openedAt = cb.clock.Now()
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() models.BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.failureCount
}
