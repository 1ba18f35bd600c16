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

// Package bluetooth owns the peer lifecycle of the HID peripheral: it
// advertises the service, walks each peer through the connection state
// machine behind the security gate, and delivers reports as GATT
// notifications with a per-peer circuit breaker between the pipeline and
// the radio.
package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
	"github.com/openkvm/keywave/pkg/security"
)

var errRadioStopped = errors.New("radio stopped unexpectedly")

// Transport drives the radio from a single run loop. Peer state is owned
// exclusively by that loop; the mutex exists so status readers can take
// consistent snapshots, never for cross-component coordination.
type Transport struct {
	cfg       *models.Config
	radio     Radio
	gate      *security.Gate
	clock     clock.Clock
	logger    logger.Logger
	breakers  BreakerConfig
	advPacing *rate.Limiter

	mu          sync.RWMutex
	peers       map[string]*peer
	advertising bool

	onChange func(models.PeerStatus)
}

// NewTransport creates a transport over the given radio. The gate is
// consulted on every connection attempt, link security change, and report
// send.
func NewTransport(cfg *models.Config, radio Radio, gate *security.Gate, clk clock.Clock, log logger.Logger) *Transport {
	return &Transport{
		cfg:       cfg,
		radio:     radio,
		gate:      gate,
		clock:     clk,
		logger:    log,
		breakers:  BreakerConfigFromConfig(cfg),
		advPacing: rate.NewLimiter(rate.Every(cfg.AdvertisingInterval()), 1),
		peers:     make(map[string]*peer),
	}
}

// OnPeerChange registers a callback invoked with a snapshot after every
// peer state change. Must be set before Run; the callback runs on the
// transport loop and must not block.
func (t *Transport) OnPeerChange(fn func(models.PeerStatus)) {
	t.onChange = fn
}

// Run starts the radio and processes link events, incoming reports, and
// maintenance ticks until ctx is canceled or the reports channel closes.
// Reports are delivered in order, at most once per peer per flush.
func (t *Transport) Run(ctx context.Context, reports <-chan models.Report) error {
	links, err := t.radio.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting radio: %w", err)
	}

	if err := t.radio.Advertise(ctx); err != nil {
		_ = t.radio.Stop()

		return fmt.Errorf("starting advertising: %w", err)
	}

	t.setAdvertising(true)

	t.logger.Info().
		Str("device", t.cfg.DeviceName).
		Str("service_uuid", t.cfg.ServiceUUID).
		Msg("Advertising HID service")

	ticker := t.clock.Ticker(t.maintenanceInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.shutdown()
			return nil

		case ev, ok := <-links:
			if !ok {
				t.shutdown()
				return errRadioStopped
			}

			t.handleLinkEvent(ctx, ev)

		case report, ok := <-reports:
			if !ok {
				t.shutdown()
				return nil
			}

			t.broadcast(ctx, report)

		case <-ticker.Chan():
			t.checkTimeouts(ctx)
			t.maybeResumeAdvertising(ctx)
		}
	}
}

// Peers returns status snapshots for every known peer, ordered by address.
func (t *Transport) Peers() []models.PeerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]models.PeerStatus, 0, len(t.peers))
	for _, p := range t.peers {
		statuses = append(statuses, p.status())
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Address < statuses[j].Address
	})

	return statuses
}

// Advertising reports whether the transport believes the radio is
// currently advertising.
func (t *Transport) Advertising() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.advertising
}

func (t *Transport) handleLinkEvent(ctx context.Context, ev LinkEvent) {
	switch ev.Kind {
	case LinkConnected:
		t.handleConnect(ctx, ev)
	case LinkDisconnected:
		t.handleDisconnect(ctx, ev)
	case LinkSecurityChanged:
		t.handleSecurityChange(ctx, ev)
	default:
		t.logger.Debug().
			Str("peer", ev.Addr).
			Int("kind", int(ev.Kind)).
			Msg("Ignoring unknown link event")
	}
}

func (t *Transport) handleConnect(ctx context.Context, ev LinkEvent) {
	p := t.peerFor(ev.Addr)
	t.updateLink(p, ev)
	t.transition(p, models.PeerConnecting)

	err := t.gate.Authorize(p.addr, p.link)
	switch {
	case err == nil:
		if !p.breaker.Allow() {
			t.logger.Debug().
				Str("peer", p.addr).
				Msg("Connection rejected, circuit open")
			t.disconnectPeer(ctx, p, models.PeerFailed)

			return
		}

		t.markReady(ctx, p)

	case errors.Is(err, security.ErrAuthenticationRequired),
		errors.Is(err, security.ErrEncryptionRequired):
		t.startPairing(ctx, p)

	default:
		t.logger.Warn().
			Err(err).
			Str("peer", p.addr).
			Msg("Peer denied by security policy")
		t.disconnectPeer(ctx, p, models.PeerFailed)
	}
}

func (t *Transport) handleDisconnect(ctx context.Context, ev LinkEvent) {
	p, ok := t.lookup(ev.Addr)
	if !ok {
		return
	}

	t.updateLink(p, ev)
	t.transition(p, models.PeerDisconnected)

	if t.cfg.AutoReconnect && !t.hasActivePeers() {
		t.resumeAdvertising(ctx)
	}
}

func (t *Transport) handleSecurityChange(ctx context.Context, ev LinkEvent) {
	p, ok := t.lookup(ev.Addr)
	if !ok {
		t.logger.Debug().
			Str("peer", ev.Addr).
			Msg("Security change for unknown peer")

		return
	}

	t.updateLink(p, ev)

	// Authorization is never cached: the new link state is judged afresh.
	err := t.gate.Authorize(p.addr, p.link)
	switch {
	case err == nil:
		t.markReady(ctx, p)

	case errors.Is(err, security.ErrAuthenticationRequired),
		errors.Is(err, security.ErrEncryptionRequired):
		// A ready link downgraded below policy has to pair again; a peer
		// already mid-pairing just keeps waiting.
		if p.state.Ready() {
			t.startPairing(ctx, p)
		}

	default:
		t.logger.Warn().
			Err(err).
			Str("peer", p.addr).
			Msg("Peer denied by security policy")
		t.disconnectPeer(ctx, p, models.PeerFailed)
	}
}

// markReady moves a peer into the ready state matching its link security
// and records the successful attempt with its breaker.
func (t *Transport) markReady(ctx context.Context, p *peer) {
	p.breaker.RecordSuccess()

	// A connected host owns the device; advertising resumes when it leaves.
	t.suspendAdvertising(ctx)

	t.transition(p, p.readyState())
}

// startPairing initiates pairing as a breaker-gated attempt. The outcome
// arrives asynchronously as a security change or a connection timeout.
func (t *Transport) startPairing(ctx context.Context, p *peer) {
	t.transition(p, models.PeerPairing)

	if !p.breaker.Allow() {
		t.logger.Debug().
			Str("peer", p.addr).
			Msg("Pairing suppressed, circuit open")
		t.disconnectPeer(ctx, p, models.PeerFailed)

		return
	}

	if err := t.radio.Pair(ctx, p.addr); err != nil {
		t.logger.Warn().
			Err(err).
			Str("peer", p.addr).
			Msg("Pairing initiation failed")
		p.breaker.RecordFailure()
		t.disconnectPeer(ctx, p, models.PeerFailed)
	}
}

// broadcast delivers one report to every ready peer that passes the
// security gate. Per-peer failures are isolated: they feed the peer's
// breaker and never affect other peers or the pipeline.
func (t *Transport) broadcast(ctx context.Context, report models.Report) {
	for _, p := range t.peers {
		if !p.state.Ready() {
			continue
		}

		if err := t.gate.Authorize(p.addr, p.link); err != nil {
			t.logger.Debug().
				Err(err).
				Str("peer", p.addr).
				Msg("Report withheld by security policy")

			continue
		}

		prevBreaker := p.breaker.State()

		err := p.breaker.Execute(func() error {
			return t.radio.Notify(ctx, p.addr, report)
		})

		switch {
		case errors.Is(err, ErrCircuitOpen):
			t.logger.Debug().
				Str("peer", p.addr).
				Msg("Report dropped, circuit open")
		case err != nil:
			t.logger.Debug().
				Err(err).
				Str("peer", p.addr).
				Str("report", report.Type.String()).
				Msg("Notification failed")
		default:
			t.mu.Lock()
			p.reportsSent++
			t.mu.Unlock()
		}

		if p.breaker.State() != prevBreaker {
			t.emitChange(p)
		}
	}
}

// checkTimeouts fails peers stuck in Connecting or Pairing longer than the
// configured connection timeout.
func (t *Transport) checkTimeouts(ctx context.Context) {
	now := t.clock.Now()

	for _, p := range t.peers {
		if !p.pending() || now.Sub(p.pendingSince) < t.cfg.ConnectionTimeout() {
			continue
		}

		t.logger.Warn().
			Str("peer", p.addr).
			Str("state", string(p.state)).
			Dur("timeout", t.cfg.ConnectionTimeout()).
			Msg("Connection attempt timed out")

		p.breaker.RecordFailure()
		t.disconnectPeer(ctx, p, models.PeerFailed)
	}
}

// disconnectPeer tears down the link and settles the peer in final.
func (t *Transport) disconnectPeer(ctx context.Context, p *peer, final models.ConnectionState) {
	if err := t.radio.Disconnect(ctx, p.addr); err != nil {
		t.logger.Debug().
			Err(err).
			Str("peer", p.addr).
			Msg("Disconnect failed")
	}

	t.transition(p, final)
}

// maybeResumeAdvertising restores discoverability once no peer holds or is
// establishing a link.
func (t *Transport) maybeResumeAdvertising(ctx context.Context) {
	if !t.cfg.AutoReconnect || t.Advertising() || t.hasActivePeers() {
		return
	}

	t.resumeAdvertising(ctx)
}

// resumeAdvertising restarts advertising, paced so a flapping peer cannot
// hammer the radio. Skipped attempts are retried on the maintenance tick.
func (t *Transport) resumeAdvertising(ctx context.Context) {
	if t.Advertising() {
		return
	}

	if !t.advPacing.Allow() {
		return
	}

	if err := t.radio.Advertise(ctx); err != nil {
		t.logger.Warn().
			Err(err).
			Msg("Failed to resume advertising")

		return
	}

	t.setAdvertising(true)
	t.logger.Info().Msg("Advertising resumed")
}

// suspendAdvertising stops advertising while a host is connected.
func (t *Transport) suspendAdvertising(ctx context.Context) {
	if !t.Advertising() {
		return
	}

	if err := t.radio.StopAdvertising(ctx); err != nil {
		t.logger.Debug().
			Err(err).
			Msg("Failed to stop advertising")

		return
	}

	t.setAdvertising(false)
	t.logger.Debug().Msg("Advertising suspended while peer connected")
}

// shutdown tears down every link and the advertisement. The run loop's
// context is already done, so teardown runs under its own bounded one.
func (t *Transport) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ConnectionTimeout())
	defer cancel()

	for _, p := range t.peers {
		if !p.active() {
			continue
		}

		t.transition(p, models.PeerDisconnecting)

		if err := t.radio.Disconnect(ctx, p.addr); err != nil {
			t.logger.Debug().
				Err(err).
				Str("peer", p.addr).
				Msg("Disconnect failed during shutdown")
		}

		t.transition(p, models.PeerDisconnected)
	}

	if err := t.radio.StopAdvertising(ctx); err != nil {
		t.logger.Debug().Err(err).Msg("Failed to stop advertising during shutdown")
	}

	t.setAdvertising(false)

	if err := t.radio.Stop(); err != nil {
		t.logger.Warn().Err(err).Msg("Radio stop failed")
	}

	t.logger.Info().Msg("Transport stopped")
}

// transition moves a peer to a new state, maintaining the timestamps the
// state machine depends on, and publishes the change.
func (t *Transport) transition(p *peer, state models.ConnectionState) {
	t.mu.Lock()

	if p.state == state {
		t.mu.Unlock()
		return
	}

	prev := p.state
	p.state = state

	switch state {
	case models.PeerConnecting, models.PeerPairing:
		p.pendingSince = t.clock.Now()
	case models.PeerConnected, models.PeerPaired:
		p.pendingSince = time.Time{}

		if p.connectedAt.IsZero() {
			p.connectedAt = t.clock.Now()
		}
	case models.PeerDisconnected, models.PeerFailed:
		p.pendingSince = time.Time{}
		p.connectedAt = time.Time{}
		p.link = security.LinkState{}
	}

	status := p.status()
	t.mu.Unlock()

	t.logger.Info().
		Str("peer", p.addr).
		Str("from", string(prev)).
		Str("to", string(state)).
		Msg("Peer state changed")

	if t.onChange != nil {
		t.onChange(status)
	}
}

// peerFor returns the peer record for addr, creating it on first contact.
func (t *Transport) peerFor(addr string) *peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.peers[addr]; ok {
		return p
	}

	breaker := NewCircuitBreaker(addr, t.breakers, t.clock, t.logger)
	p := newPeer(addr, breaker)
	t.peers[addr] = p

	return p
}

func (t *Transport) lookup(addr string) (*peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.peers[addr]

	return p, ok
}

func (t *Transport) updateLink(p *peer, ev LinkEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p.link = security.LinkState{
		Authenticated: ev.Authenticated,
		Encrypted:     ev.Encrypted,
	}
	p.bonded = ev.Bonded
}

func (t *Transport) hasActivePeers() bool {
	for _, p := range t.peers {
		if p.active() {
			return true
		}
	}

	return false
}

func (t *Transport) setAdvertising(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advertising = on
}

func (t *Transport) emitChange(p *peer) {
	if t.onChange == nil {
		return
	}

	t.mu.RLock()
	status := p.status()
	t.mu.RUnlock()

	t.onChange(status)
}

// maintenanceInterval derives the timeout-sweep cadence from the connection
// timeout so short timeouts are still detected promptly.
func (t *Transport) maintenanceInterval() time.Duration {
	interval := t.cfg.ConnectionTimeout() / 4

	if interval > time.Second {
		interval = time.Second
	}

	if interval < 25*time.Millisecond {
		interval = 25 * time.Millisecond
	}

	return interval
}
