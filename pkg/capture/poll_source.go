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
	"sync"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

// PollSource is the fallback capture source: it samples the cursor position
// at the configured polling interval and emits the difference as relative
// motion. It covers pointer movement only; key and button transitions need
// the global hook capability, which is exactly what is missing when this
// source is selected.
type PollSource struct {
	interval time.Duration
	clock    clock.Clock
	logger   logger.Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPollSource creates the cursor-polling fallback source.
func NewPollSource(interval time.Duration, clk clock.Clock, log logger.Logger) *PollSource {
	return &PollSource{
		interval: interval,
		clock:    clk,
		logger:   log,
	}
}

// Name implements CaptureSource.
func (*PollSource) Name() string { return "poll" }

// Start begins sampling the cursor.
func (s *PollSource) Start(ctx context.Context) (<-chan models.InputEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, errSourceStarted
	}

	out := make(chan models.InputEvent, sourceBuffer)
	stop := make(chan struct{})
	done := make(chan struct{})

	s.stop = stop
	s.done = done
	s.started = true

	go s.poll(ctx, out, stop, done)

	s.logger.Warn().
		Dur("interval", s.interval).
		Msg("Cursor polling started; key capture is unavailable in this mode")

	return out, nil
}

// Stop ends sampling. Idempotent.
func (s *PollSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	close(s.stop)
	<-s.done

	s.started = false

	return nil
}

func (s *PollSource) poll(ctx context.Context, out chan<- models.InputEvent, stop, done chan struct{}) {
	defer close(done)
	defer close(out)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	lastX, lastY := robotgo.Location()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			x, y := robotgo.Location()

			dx := int32(x - lastX)
			dy := int32(y - lastY)
			lastX, lastY = x, y

			if dx == 0 && dy == 0 {
				continue
			}

			ev := models.InputEvent{
				Kind:      models.KindMouseMove,
				DeltaX:    dx,
				DeltaY:    dy,
				Timestamp: time.Now(),
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}
}
