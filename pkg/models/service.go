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

// ServiceState describes the bridge orchestrator lifecycle.
type ServiceState string

const (
	ServiceStopped  ServiceState = "stopped"
	ServiceStarting ServiceState = "starting"
	ServiceRunning  ServiceState = "running"
	ServiceStopping ServiceState = "stopping"
	ServiceError    ServiceState = "error"
)

// StatusEventKind classifies entries on the status feed.
type StatusEventKind string

const (
	StatusServiceChange StatusEventKind = "service_state"
	StatusPeerChange    StatusEventKind = "peer_state"
	StatusWarning       StatusEventKind = "warning"
)

// StatusEvent is one entry on the orchestrator status feed. Subscribers
// receive events in emission order; a subscriber that falls behind has
// events dropped rather than stalling the bridge.
type StatusEvent struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      StatusEventKind `json:"kind"`
	Service   ServiceState    `json:"service_state,omitempty"`
	Peer      *PeerStatus     `json:"peer,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ServiceStatus is the aggregate snapshot served by the status API.
type ServiceStatus struct {
	State         ServiceState `json:"state"`
	DeviceName    string       `json:"device_name"`
	CaptureSource string       `json:"capture_source,omitempty"`
	Advertising   bool         `json:"advertising"`
	Uptime        string       `json:"uptime,omitempty"`
	StartedAt     time.Time    `json:"started_at,omitempty"`
	Peers         []PeerStatus `json:"peers"`
	LastError     string       `json:"last_error,omitempty"`
}
