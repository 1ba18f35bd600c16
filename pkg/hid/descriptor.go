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

// ReportMap assembles the HID report map for the composite keyboard+mouse
// profile. The layout must agree byte-for-byte with the payloads produced
// by KeyboardState and MouseState: hosts parse notifications strictly by
// this descriptor.
func ReportMap(keyboardID, mouseID uint8, keySlots int) []byte {
	keyboard := []byte{
		0x05, 0x01, // Usage Page (Generic Desktop)
		0x09, 0x06, // Usage (Keyboard)
		0xA1, 0x01, // Collection (Application)
		0x85, keyboardID, //   Report ID
		0x05, 0x07, //   Usage Page (Key Codes)
		0x19, usageModifierMin, //   Usage Minimum (Left Control)
		0x29, usageModifierMax, //   Usage Maximum (Right GUI)
		0x15, 0x00, //   Logical Minimum (0)
		0x25, 0x01, //   Logical Maximum (1)
		0x75, 0x01, //   Report Size (1)
		0x95, 0x08, //   Report Count (8)
		0x81, 0x02, //   Input (Data, Variable, Absolute): modifier bits
		0x75, 0x08, //   Report Size (8)
		0x95, 0x01, //   Report Count (1)
		0x81, 0x01, //   Input (Constant): reserved byte
		0x75, 0x08, //   Report Size (8)
		0x95, byte(keySlots), //   Report Count: key slots
		0x15, 0x00, //   Logical Minimum (0)
		0x25, 0x65, //   Logical Maximum (101)
		0x05, 0x07, //   Usage Page (Key Codes)
		0x19, 0x00, //   Usage Minimum (0)
		0x29, 0x65, //   Usage Maximum (101)
		0x81, 0x00, //   Input (Data, Array): key usages
		0xC0, // End Collection
	}

	mouse := []byte{
		0x05, 0x01, // Usage Page (Generic Desktop)
		0x09, 0x02, // Usage (Mouse)
		0xA1, 0x01, // Collection (Application)
		0x85, mouseID, //   Report ID
		0x09, 0x01, //   Usage (Pointer)
		0xA1, 0x00, //   Collection (Physical)
		0x05, 0x09, //     Usage Page (Buttons)
		0x19, 0x01, //     Usage Minimum (1)
		0x29, 0x05, //     Usage Maximum (5)
		0x15, 0x00, //     Logical Minimum (0)
		0x25, 0x01, //     Logical Maximum (1)
		0x95, 0x05, //     Report Count (5)
		0x75, 0x01, //     Report Size (1)
		0x81, 0x02, //     Input (Data, Variable, Absolute): button bits
		0x95, 0x01, //     Report Count (1)
		0x75, 0x03, //     Report Size (3)
		0x81, 0x01, //     Input (Constant): pad to a byte
		0x05, 0x01, //     Usage Page (Generic Desktop)
		0x09, 0x30, //     Usage (X)
		0x09, 0x31, //     Usage (Y)
		0x09, 0x38, //     Usage (Wheel)
		0x15, 0x81, //     Logical Minimum (-127)
		0x25, 0x7F, //     Logical Maximum (127)
		0x75, 0x08, //     Report Size (8)
		0x95, 0x03, //     Report Count (3)
		0x81, 0x06, //     Input (Data, Variable, Relative)
		0xC0, //   End Collection
		0xC0, // End Collection
	}

	return append(keyboard, mouse...)
}
