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

package models

import "time"

// EventKind discriminates the variants of InputEvent.
type EventKind uint8

const (
	// KindKeyDown marks a key transition to pressed.
	KindKeyDown EventKind = iota + 1
	// KindKeyUp marks a key transition to released.
	KindKeyUp
	// KindMouseMove carries a relative pointer displacement.
	KindMouseMove
	// KindMouseButton carries a pointer button transition.
	KindMouseButton
	// KindMouseWheel carries a vertical scroll step.
	KindMouseWheel
)

func (k EventKind) String() string {
	switch k {
	case KindKeyDown:
		return "key_down"
	case KindKeyUp:
		return "key_up"
	case KindMouseMove:
		return "mouse_move"
	case KindMouseButton:
		return "mouse_button"
	case KindMouseWheel:
		return "mouse_wheel"
	default:
		return "unknown"
	}
}

// IsKey reports whether the kind is a keyboard transition.
func (k EventKind) IsKey() bool {
	return k == KindKeyDown || k == KindKeyUp
}

// MouseButton identifies a pointer button. Values match the bit position
// in the HID buttons byte (bit = MouseButton - 1).
type MouseButton uint8

const (
	ButtonLeft MouseButton = iota + 1
	ButtonRight
	ButtonMiddle
	ButtonBack
	ButtonForward
)

// InputEvent is one normalized input sample flowing through the pipeline.
// Events are passed by value and never mutated after capture.
type InputEvent struct {
	Kind       EventKind
	KeyCode    uint8       // HID usage ID, key events only
	Button     MouseButton // button events only
	Pressed    bool        // key and button events
	DeltaX     int32       // mouse move, post-sensitivity
	DeltaY     int32       // mouse move, post-sensitivity
	WheelDelta int32       // wheel events, positive scrolls up
	Timestamp  time.Time
}
