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
	"time"

	"github.com/openkvm/keywave/pkg/models"
	"github.com/openkvm/keywave/pkg/security"
)

// peer tracks one remote address through the connection lifecycle. A peer
// survives disconnects so its circuit breaker keeps its memory across
// reconnection attempts. All fields are owned by the transport run loop;
// the transport mutex guards them only for external status readers.
type peer struct {
	addr         string
	state        models.ConnectionState
	link         security.LinkState
	bonded       bool
	breaker      *CircuitBreaker
	pendingSince time.Time
	connectedAt  time.Time
	reportsSent  uint64
}

func newPeer(addr string, breaker *CircuitBreaker) *peer {
	return &peer{
		addr:    addr,
		state:   models.PeerDisconnected,
		breaker: breaker,
	}
}

// pending reports whether the peer sits in a state bounded by the
// connection timeout.
func (p *peer) pending() bool {
	return p.state == models.PeerConnecting || p.state == models.PeerPairing
}

// active reports whether the peer currently holds or is establishing a
// link.
func (p *peer) active() bool {
	return p.state.Ready() || p.pending()
}

// status builds an observable snapshot. Caller must hold the transport
// mutex.
func (p *peer) status() models.PeerStatus {
	return models.PeerStatus{
		Address:     p.addr,
		State:       p.state,
		Encrypted:   p.link.Encrypted,
		Bonded:      p.bonded,
		Breaker:     p.breaker.State(),
		Failures:    p.breaker.Failures(),
		ReportsSent: p.reportsSent,
		ConnectedAt: p.connectedAt,
	}
}

// readyState picks the ready state matching the link's security level.
func (p *peer) readyState() models.ConnectionState {
	if p.link.Encrypted || p.bonded {
		return models.PeerPaired
	}

	return models.PeerConnected
}
