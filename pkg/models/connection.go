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

// ConnectionState tracks one peer through the transport lifecycle.
type ConnectionState string

const (
	PeerDisconnected  ConnectionState = "disconnected"
	PeerConnecting    ConnectionState = "connecting"
	PeerConnected     ConnectionState = "connected"
	PeerPairing       ConnectionState = "pairing"
	PeerPaired        ConnectionState = "paired"
	PeerDisconnecting ConnectionState = "disconnecting"
	PeerFailed        ConnectionState = "failed"
)

// Ready reports whether the peer may receive input reports.
func (s ConnectionState) Ready() bool {
	return s == PeerConnected || s == PeerPaired
}

// BreakerState mirrors the per-peer circuit breaker for observability.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// PeerStatus is a point-in-time snapshot of one peer, published on the
// status feed and returned by the status API.
type PeerStatus struct {
	Address     string          `json:"address"`
	State       ConnectionState `json:"state"`
	Encrypted   bool            `json:"encrypted"`
	Bonded      bool            `json:"bonded"`
	Breaker     BreakerState    `json:"breaker"`
	Failures    int             `json:"failures"`
	ReportsSent uint64          `json:"reports_sent"`
	ConnectedAt time.Time       `json:"connected_at,omitempty"`
}
