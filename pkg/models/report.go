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

// ReportType classifies a HID report.
type ReportType uint8

const (
	// ReportKeyboard is a keyboard input report: modifier bitmask, one
	// reserved byte, then the pressed-key usage slots.
	ReportKeyboard ReportType = iota + 1
	// ReportMouse is a mouse input report: buttons bitmask followed by
	// signed X, Y and wheel deltas.
	ReportMouse
)

func (t ReportType) String() string {
	switch t {
	case ReportKeyboard:
		return "keyboard"
	case ReportMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// Report is one assembled HID input report. The builder creates a report on
// flush, the transport consumes it exactly once, and the payload is never
// modified after assembly.
type Report struct {
	Type    ReportType
	ID      uint8
	Payload []byte
}
