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

// usageByKeycode maps hook keycodes (libuiohook VC_* values, which follow
// PC scan code set 1 with an 0xE0 page for extended keys) to HID keyboard
// usages. Keys without an entry are dropped at capture: forwarding a wrong
// usage would type the wrong character on the host.
var usageByKeycode = map[uint16]uint8{
	// Letters.
	0x001E: 0x04, // A
	0x0030: 0x05, // B
	0x002E: 0x06, // C
	0x0020: 0x07, // D
	0x0012: 0x08, // E
	0x0021: 0x09, // F
	0x0022: 0x0A, // G
	0x0023: 0x0B, // H
	0x0017: 0x0C, // I
	0x0024: 0x0D, // J
	0x0025: 0x0E, // K
	0x0026: 0x0F, // L
	0x0032: 0x10, // M
	0x0031: 0x11, // N
	0x0018: 0x12, // O
	0x0019: 0x13, // P
	0x0010: 0x14, // Q
	0x0013: 0x15, // R
	0x001F: 0x16, // S
	0x0014: 0x17, // T
	0x0016: 0x18, // U
	0x002F: 0x19, // V
	0x0011: 0x1A, // W
	0x002D: 0x1B, // X
	0x0015: 0x1C, // Y
	0x002C: 0x1D, // Z

	// Digit row.
	0x0002: 0x1E, // 1
	0x0003: 0x1F, // 2
	0x0004: 0x20, // 3
	0x0005: 0x21, // 4
	0x0006: 0x22, // 5
	0x0007: 0x23, // 6
	0x0008: 0x24, // 7
	0x0009: 0x25, // 8
	0x000A: 0x26, // 9
	0x000B: 0x27, // 0

	// Controls and punctuation.
	0x001C: 0x28, // Enter
	0x0001: 0x29, // Escape
	0x000E: 0x2A, // Backspace
	0x000F: 0x2B, // Tab
	0x0039: 0x2C, // Space
	0x000C: 0x2D, // -
	0x000D: 0x2E, // =
	0x001A: 0x2F, // [
	0x001B: 0x30, // ]
	0x002B: 0x31, // backslash
	0x0027: 0x33, // ;
	0x0028: 0x34, // '
	0x0029: 0x35, // `
	0x0033: 0x36, // ,
	0x0034: 0x37, // .
	0x0035: 0x38, // /
	0x003A: 0x39, // Caps Lock

	// Function row.
	0x003B: 0x3A, // F1
	0x003C: 0x3B, // F2
	0x003D: 0x3C, // F3
	0x003E: 0x3D, // F4
	0x003F: 0x3E, // F5
	0x0040: 0x3F, // F6
	0x0041: 0x40, // F7
	0x0042: 0x41, // F8
	0x0043: 0x42, // F9
	0x0044: 0x43, // F10
	0x0057: 0x44, // F11
	0x0058: 0x45, // F12

	// Navigation cluster (extended page).
	0x0E37: 0x46, // Print Screen
	0x0046: 0x47, // Scroll Lock
	0x0E45: 0x48, // Pause
	0x0E52: 0x49, // Insert
	0x0E47: 0x4A, // Home
	0x0E49: 0x4B, // Page Up
	0x0E53: 0x4C, // Delete
	0x0E4F: 0x4D, // End
	0x0E51: 0x4E, // Page Down
	0x0E4D: 0x4F, // Right Arrow
	0x0E4B: 0x50, // Left Arrow
	0x0E50: 0x51, // Down Arrow
	0x0E48: 0x52, // Up Arrow

	// Keypad.
	0x0045: 0x53, // Num Lock
	0x0E35: 0x54, // Keypad /
	0x0037: 0x55, // Keypad *
	0x004A: 0x56, // Keypad -
	0x004E: 0x57, // Keypad +
	0x0E1C: 0x58, // Keypad Enter
	0x004F: 0x59, // Keypad 1
	0x0050: 0x5A, // Keypad 2
	0x0051: 0x5B, // Keypad 3
	0x004B: 0x5C, // Keypad 4
	0x004C: 0x5D, // Keypad 5
	0x004D: 0x5E, // Keypad 6
	0x0047: 0x5F, // Keypad 7
	0x0048: 0x60, // Keypad 8
	0x0049: 0x61, // Keypad 9
	0x0052: 0x62, // Keypad 0
	0x0053: 0x63, // Keypad .

	// Modifiers map to the 0xE0-0xE7 usage block the report builder packs
	// into the modifier byte.
	0x001D: 0xE0, // Left Control
	0x002A: 0xE1, // Left Shift
	0x0038: 0xE2, // Left Alt
	0x0E5B: 0xE3, // Left GUI
	0x0E1D: 0xE4, // Right Control
	0x0036: 0xE5, // Right Shift
	0x0E38: 0xE6, // Right Alt
	0x0E5C: 0xE7, // Right GUI
}

// UsageForKeycode translates a hook keycode to its HID usage.
func UsageForKeycode(code uint16) (uint8, bool) {
	usage, ok := usageByKeycode[code]
	return usage, ok
}
