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
	"context"

	"github.com/openkvm/keywave/pkg/models"
)

//go:generate mockgen -destination=mock_bluetooth.go -package=bluetooth github.com/openkvm/keywave/pkg/bluetooth Radio

// LinkEventKind identifies a link-layer event reported by the radio.
type LinkEventKind int

const (
	// LinkConnected means a central established a link to us.
	LinkConnected LinkEventKind = iota + 1
	// LinkDisconnected means the link to a central dropped.
	LinkDisconnected
	// LinkSecurityChanged means the link's encryption or authentication
	// status changed, usually as the outcome of pairing.
	LinkSecurityChanged
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkSecurityChanged:
		return "security_changed"
	default:
		return "unknown"
	}
}

// LinkEvent describes a change on a peer link. Addr is the peer's Bluetooth
// address as reported by the radio; the security flags describe the link at
// the time of the event.
type LinkEvent struct {
	Kind          LinkEventKind
	Addr          string
	Authenticated bool
	Encrypted     bool
	Bonded        bool
}

// Radio is the capability-provider boundary to the platform Bluetooth
// stack. Implementations register the HID GATT service, advertise it, and
// surface link events; they know nothing about peer policy, which lives in
// the transport. All methods must be safe to call from a single goroutine;
// the event channel closes when the radio shuts down.
type Radio interface {
	// Start powers the adapter, registers the GATT services, and begins
	// reporting link events.
	Start(ctx context.Context) (<-chan LinkEvent, error)

	// Advertise begins or resumes advertising. Calling it while already
	// advertising is a no-op.
	Advertise(ctx context.Context) error

	// StopAdvertising halts advertising without touching existing links.
	StopAdvertising(ctx context.Context) error

	// Pair initiates pairing with a connected peer. The outcome arrives
	// later as a LinkSecurityChanged event.
	Pair(ctx context.Context, addr string) error

	// Notify delivers one report to one peer as a GATT notification.
	// Notifications are unacknowledged: a nil return means handed to the
	// stack, not received by the host.
	Notify(ctx context.Context, addr string, report models.Report) error

	// Disconnect tears down the link to a peer.
	Disconnect(ctx context.Context, addr string) error

	// Stop stops advertising, drops all links, and releases the adapter.
	Stop() error
}
