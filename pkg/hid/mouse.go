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

package hid

import "github.com/openkvm/keywave/pkg/models"

// MouseState accumulates relative motion between flushes. Deltas sum until
// the builder flushes, then reset to zero; the button bitmask reflects
// currently held buttons and survives flushes.
type MouseState struct {
	buttons byte
	dx      int32
	dy      int32
	wheel   int32
}

// NewMouseState creates an empty mouse accumulator.
func NewMouseState() *MouseState {
	return &MouseState{}
}

// Move accumulates a relative displacement and reports whether the state
// changed.
func (m *MouseState) Move(dx, dy int32) bool {
	if dx == 0 && dy == 0 {
		return false
	}

	m.dx += dx
	m.dy += dy

	return true
}

// SetButton records a button transition and reports whether the state
// changed. Pressing an already-held button is a no-op.
func (m *MouseState) SetButton(button models.MouseButton, pressed bool) bool {
	if button < models.ButtonLeft || button > models.ButtonForward {
		return false
	}

	bit := byte(1) << (button - 1)
	held := m.buttons&bit != 0

	if pressed == held {
		return false
	}

	if pressed {
		m.buttons |= bit
	} else {
		m.buttons &^= bit
	}

	return true
}

// Scroll accumulates a wheel step and reports whether the state changed.
func (m *MouseState) Scroll(delta int32) bool {
	if delta == 0 {
		return false
	}

	m.wheel += delta

	return true
}

// Clear releases all buttons and drops pending motion, reporting whether
// anything was held or accumulated.
func (m *MouseState) Clear() bool {
	if m.buttons == 0 && m.dx == 0 && m.dy == 0 && m.wheel == 0 {
		return false
	}

	m.buttons = 0
	m.ResetDeltas()

	return true
}

// HasMotion reports whether displacement or wheel travel is pending.
func (m *MouseState) HasMotion() bool {
	return m.dx != 0 || m.dy != 0 || m.wheel != 0
}

// ResetDeltas zeroes the motion accumulators after a flush. Buttons are
// state, not deltas, so they persist.
func (m *MouseState) ResetDeltas() {
	m.dx = 0
	m.dy = 0
	m.wheel = 0
}

// Payload assembles the report body: button bitmask followed by X, Y and
// wheel deltas as signed bytes. Accumulated motion beyond the signed-byte
// range is clamped, matching the logical limits in the report map.
func (m *MouseState) Payload() []byte {
	return []byte{
		m.buttons,
		byte(clampDelta(m.dx)),
		byte(clampDelta(m.dy)),
		byte(clampDelta(m.wheel)),
	}
}

func clampDelta(v int32) int8 {
	if v > 127 {
		return 127
	}

	if v < -127 {
		return -127
	}

	return int8(v)
}
