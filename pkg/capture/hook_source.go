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
	"sync"
	"time"

	hook "github.com/robotn/gohook"

	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

const sourceBuffer = 256

var (
	errSourceStarted   = errors.New("capture source already started")
	errHookUnavailable = errors.New("global input hook unavailable")
)

// HookSource captures keyboard and mouse input through the OS global input
// hook. It is the primary source: it sees real key transitions and per-event
// pointer motion. Hook positions are absolute screen coordinates, so motion
// is differenced against the previous sample to produce relative deltas.
type HookSource struct {
	logger logger.Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewHookSource creates the global-hook capture source.
func NewHookSource(log logger.Logger) *HookSource {
	return &HookSource{logger: log}
}

// Name implements CaptureSource.
func (*HookSource) Name() string { return "hook" }

// Start registers the global hook and begins translating its events.
func (s *HookSource) Start(ctx context.Context) (<-chan models.InputEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, errSourceStarted
	}

	raw := hook.Start()
	if raw == nil {
		return nil, errHookUnavailable
	}

	out := make(chan models.InputEvent, sourceBuffer)
	stop := make(chan struct{})
	done := make(chan struct{})

	s.stop = stop
	s.done = done
	s.started = true

	go s.translate(ctx, raw, out, stop, done)

	s.logger.Info().Msg("Global input hook started")

	return out, nil
}

// Stop unregisters the hook. Idempotent.
func (s *HookSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	hook.End()
	close(s.stop)
	<-s.done

	s.started = false

	return nil
}

func (s *HookSource) translate(ctx context.Context, raw chan hook.Event, out chan<- models.InputEvent, stop, done chan struct{}) {
	defer close(done)
	defer close(out)

	var lastX, lastY int16

	havePos := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}

			converted, keep := s.convert(ev, &lastX, &lastY, &havePos)
			if !keep {
				continue
			}

			select {
			case out <- converted:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}
}

// convert normalizes one hook event. Key holds are dropped because the host
// synthesizes key repeat itself; unmapped keycodes are dropped because a
// wrong usage would type the wrong character.
func (s *HookSource) convert(ev hook.Event, lastX, lastY *int16, havePos *bool) (models.InputEvent, bool) {
	now := time.Now()

	switch ev.Kind {
	case hook.KeyDown, hook.KeyUp:
		usage, ok := UsageForKeycode(ev.Keycode)
		if !ok {
			s.logger.Debug().
				Uint16("keycode", ev.Keycode).
				Uint16("rawcode", ev.Rawcode).
				Msg("No HID usage for keycode, dropping")

			return models.InputEvent{}, false
		}

		kind := models.KindKeyDown
		if ev.Kind == hook.KeyUp {
			kind = models.KindKeyUp
		}

		return models.InputEvent{
			Kind:      kind,
			KeyCode:   usage,
			Pressed:   kind == models.KindKeyDown,
			Timestamp: now,
		}, true

	case hook.KeyHold:
		return models.InputEvent{}, false

	case hook.MouseDown, hook.MouseUp:
		button, ok := buttonForHook(ev.Button)
		if !ok {
			return models.InputEvent{}, false
		}

		return models.InputEvent{
			Kind:      models.KindMouseButton,
			Button:    button,
			Pressed:   ev.Kind == hook.MouseDown,
			Timestamp: now,
		}, true

	case hook.MouseMove, hook.MouseDrag:
		if !*havePos {
			*lastX, *lastY = ev.X, ev.Y
			*havePos = true

			return models.InputEvent{}, false
		}

		dx := int32(ev.X - *lastX)
		dy := int32(ev.Y - *lastY)
		*lastX, *lastY = ev.X, ev.Y

		if dx == 0 && dy == 0 {
			return models.InputEvent{}, false
		}

		return models.InputEvent{
			Kind:      models.KindMouseMove,
			DeltaX:    dx,
			DeltaY:    dy,
			Timestamp: now,
		}, true

	case hook.MouseWheel:
		if ev.Rotation == 0 {
			return models.InputEvent{}, false
		}

		return models.InputEvent{
			Kind:       models.KindMouseWheel,
			WheelDelta: ev.Rotation,
			Timestamp:  now,
		}, true
	}

	return models.InputEvent{}, false
}

func buttonForHook(button uint16) (models.MouseButton, bool) {
	switch button {
	case 1:
		return models.ButtonLeft, true
	case 2:
		return models.ButtonRight, true
	case 3:
		return models.ButtonMiddle, true
	case 4:
		return models.ButtonBack, true
	case 5:
		return models.ButtonForward, true
	default:
		return 0, false
	}
}
