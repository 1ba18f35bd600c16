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

package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

// ErrCaptureUnavailable means neither the primary nor an enabled fallback
// source could start. The pipeline cannot run without capture.
var ErrCaptureUnavailable = errors.New("capture unavailable")

var errEngineStarted = errors.New("capture engine already started")

const engineBuffer = 256

// Engine selects a capture source and applies the capture policy to its
// events, in order: dead-zone suppression on raw deltas, sensitivity
// scaling, then coalescing. Motion faster than the configured rate limit is
// summed inside the current window and forwarded as one event, so total
// displacement is preserved. Key and button transitions are forwarded
// immediately: coalescing them would drop presses.
type Engine struct {
	primary     CaptureSource
	fallback    CaptureSource
	useFallback bool
	deadZone    int32
	sensitivity float64
	window      time.Duration
	clock       clock.Clock
	logger      logger.Logger

	mu     sync.Mutex
	active CaptureSource
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a capture engine. fallback may be nil when no secondary
// capability exists; it is consulted only when enabled in configuration.
func NewEngine(cfg *models.Config, primary, fallback CaptureSource, clk clock.Clock, log logger.Logger) *Engine {
	return &Engine{
		primary:     primary,
		fallback:    fallback,
		useFallback: cfg.InputFallback,
		deadZone:    int32(cfg.DeadZoneThreshold),
		sensitivity: cfg.MouseSensitivity,
		window:      cfg.CoalesceWindow(),
		clock:       clk,
		logger:      log,
	}
}

// Start opens a capture source and returns the policy-filtered event
// stream. The channel closes when the engine stops. If the primary source
// fails and fallback is enabled, the engine switches over transparently and
// the degradation is visible through ActiveSource, not as an error.
func (e *Engine) Start(ctx context.Context) (<-chan models.InputEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return nil, errEngineStarted
	}

	src := e.primary

	raw, err := src.Start(ctx)
	if err != nil {
		if !e.useFallback || e.fallback == nil {
			return nil, fmt.Errorf("%w: primary source %q: %w", ErrCaptureUnavailable, src.Name(), err)
		}

		e.logger.Warn().
			Err(err).
			Str("primary", src.Name()).
			Str("fallback", e.fallback.Name()).
			Msg("Primary capture source failed, switching to fallback")

		src = e.fallback

		raw, err = src.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback source %q: %w", ErrCaptureUnavailable, src.Name(), err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan models.InputEvent, engineBuffer)
	done := make(chan struct{})

	e.active = src
	e.cancel = cancel
	e.done = done

	go e.process(runCtx, raw, out, done)

	return out, nil
}

// Stop cancels processing and releases the capture source. Idempotent; the
// engine can be started again afterwards.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return nil
	}

	e.cancel()
	<-e.done

	err := e.active.Stop()
	e.active = nil

	return err
}

// ActiveSource reports which source is currently capturing, or empty when
// the engine is stopped.
func (e *Engine) ActiveSource() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return ""
	}

	return e.active.Name()
}

// process applies policy on a single goroutine. Pending motion accumulates
// per window and drains on the window ticker, so two events arriving inside
// one window leave as one event carrying the summed delta.
func (e *Engine) process(ctx context.Context, raw <-chan models.InputEvent, out chan<- models.InputEvent, done chan struct{}) {
	defer close(done)
	defer close(out)

	ticker := e.clock.Ticker(e.window)
	defer ticker.Stop()

	var pendingMove, pendingWheel models.InputEvent

	haveMove := false
	haveWheel := false

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-raw:
			if !ok {
				return
			}

			switch ev.Kind {
			case models.KindMouseMove:
				dx, dy, keep := e.applyMotionPolicy(ev.DeltaX, ev.DeltaY)
				if !keep {
					continue
				}

				if haveMove {
					pendingMove.DeltaX += dx
					pendingMove.DeltaY += dy
					pendingMove.Timestamp = ev.Timestamp
				} else {
					pendingMove = models.InputEvent{
						Kind:      models.KindMouseMove,
						DeltaX:    dx,
						DeltaY:    dy,
						Timestamp: ev.Timestamp,
					}
					haveMove = true
				}

			case models.KindMouseWheel:
				if haveWheel {
					pendingWheel.WheelDelta += ev.WheelDelta
					pendingWheel.Timestamp = ev.Timestamp
				} else {
					pendingWheel = ev
					haveWheel = true
				}

			default:
				if !send(ctx, out, ev) {
					return
				}
			}

		case <-ticker.Chan():
			if haveMove {
				if !send(ctx, out, pendingMove) {
					return
				}

				haveMove = false
			}

			if haveWheel {
				if !send(ctx, out, pendingWheel) {
					return
				}

				haveWheel = false
			}
		}
	}
}

// applyMotionPolicy runs dead-zone suppression on the raw delta, then
// sensitivity scaling. Either step may eliminate the event entirely.
func (e *Engine) applyMotionPolicy(dx, dy int32) (int32, int32, bool) {
	if abs32(dx)+abs32(dy) < e.deadZone {
		return 0, 0, false
	}

	if e.sensitivity != 1.0 {
		dx = int32(math.Round(float64(dx) * e.sensitivity))
		dy = int32(math.Round(float64(dy) * e.sensitivity))
	}

	if dx == 0 && dy == 0 {
		return 0, 0, false
	}

	return dx, dy, true
}

func send(ctx context.Context, out chan<- models.InputEvent, ev models.InputEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}

	return v
}
