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

// Package hid assembles fixed-layout HID input reports from normalized
// input events.
package hid

// Modifier usages occupy 0xE0 (LeftControl) through 0xE7 (RightGUI) and map
// to bits 0-7 of the report's modifier byte.
const (
	usageModifierMin = 0xE0
	usageModifierMax = 0xE7
)

// KeyboardState is a fixed-capacity set of currently pressed keys. Regular
// keys occupy up to capacity slots; modifier usages set bits in the
// modifier byte and never consume a slot. When all slots are taken, a new
// key is rejected outright: it does not evict an older key, and its
// eventual release is a no-op because it was never admitted.
type KeyboardState struct {
	modifiers byte
	keys      []uint8
	capacity  int
}

// NewKeyboardState creates a keyboard accumulator holding at most capacity
// simultaneously pressed non-modifier keys.
func NewKeyboardState(capacity int) *KeyboardState {
	return &KeyboardState{
		keys:     make([]uint8, 0, capacity),
		capacity: capacity,
	}
}

// Press records a key-down for a HID usage and reports whether the state
// changed. Duplicates and rejected overflow keys leave the state untouched.
func (k *KeyboardState) Press(usage uint8) bool {
	if bit, ok := modifierBit(usage); ok {
		if k.modifiers&bit != 0 {
			return false
		}

		k.modifiers |= bit

		return true
	}

	if k.contains(usage) {
		return false
	}

	if len(k.keys) >= k.capacity {
		return false
	}

	k.keys = append(k.keys, usage)

	return true
}

// Release records a key-up and reports whether the state changed.
func (k *KeyboardState) Release(usage uint8) bool {
	if bit, ok := modifierBit(usage); ok {
		if k.modifiers&bit == 0 {
			return false
		}

		k.modifiers &^= bit

		return true
	}

	for i, pressed := range k.keys {
		if pressed == usage {
			k.keys = append(k.keys[:i], k.keys[i+1:]...)
			return true
		}
	}

	return false
}

// Clear releases every key and modifier, reporting whether anything was
// held. Used to emit a release-all report so the host never sees stuck
// keys after a capture stop.
func (k *KeyboardState) Clear() bool {
	if k.modifiers == 0 && len(k.keys) == 0 {
		return false
	}

	k.modifiers = 0
	k.keys = k.keys[:0]

	return true
}

// Pressed returns the number of non-modifier keys currently held.
func (k *KeyboardState) Pressed() int {
	return len(k.keys)
}

// Payload assembles the report body: modifier bitmask, one reserved byte,
// then one usage per slot with unused slots zeroed.
func (k *KeyboardState) Payload() []byte {
	payload := make([]byte, 2+k.capacity)
	payload[0] = k.modifiers

	copy(payload[2:], k.keys)

	return payload
}

func (k *KeyboardState) contains(usage uint8) bool {
	for _, pressed := range k.keys {
		if pressed == usage {
			return true
		}
	}

	return false
}

func modifierBit(usage uint8) (byte, bool) {
	if usage < usageModifierMin || usage > usageModifierMax {
		return 0, false
	}

	return 1 << (usage - usageModifierMin), true
}
