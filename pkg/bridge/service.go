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

// Package bridge wires the capture engine, report builder, and transport
// into one service: local input in, GATT notifications out. The service
// owns the pipeline lifecycle and publishes state and peer changes on a
// status feed.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openkvm/keywave/pkg/bluetooth"
	"github.com/openkvm/keywave/pkg/capture"
	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/hid"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
	"github.com/openkvm/keywave/pkg/security"
)

var errAlreadyRunning = errors.New("service already running")

const (
	// reportBuffer absorbs flush bursts so the builder never stalls on a
	// transport busy with a slow peer.
	reportBuffer = 32

	// subscriberBuffer is the per-subscriber status feed depth. A
	// subscriber that falls this far behind loses events.
	subscriberBuffer = 64
)

// Service is the bridge orchestrator. One Service runs at most one pipeline
// at a time; after Stop it can be started again.
type Service struct {
	cfg       *models.Config
	engine    *capture.Engine
	builder   *hid.Builder
	transport *bluetooth.Transport
	clock     clock.Clock
	logger    logger.Logger

	mu            sync.Mutex
	state         models.ServiceState
	lastErr       error
	startedAt     time.Time
	builderCancel context.CancelFunc
	transportStop context.CancelFunc
	pumpDone      chan struct{}
	abort         chan struct{}
	done          chan struct{}

	subMu sync.RWMutex
	subs  map[string]chan models.StatusEvent
}

// New assembles the pipeline around the given hardware boundaries. The
// radio and capture sources are injected; everything between them is owned
// by the service.
func New(cfg *models.Config, radio bluetooth.Radio, primary, fallback capture.CaptureSource, clk clock.Clock, log logger.Logger) *Service {
	gate := security.NewGate(cfg, log)

	s := &Service{
		cfg:       cfg,
		engine:    capture.NewEngine(cfg, primary, fallback, clk, log),
		builder:   hid.NewBuilder(cfg, clk, log),
		transport: bluetooth.NewTransport(cfg, radio, gate, clk, log),
		clock:     clk,
		logger:    log,
		state:     models.ServiceStopped,
		subs:      make(map[string]chan models.StatusEvent),
	}

	s.transport.OnPeerChange(s.publishPeer)

	return s
}

// Start brings the pipeline up. Capture failures surface synchronously;
// transport failures after startup move the service to the error state and
// appear on the status feed.
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()

	if s.state == models.ServiceStarting || s.state == models.ServiceRunning || s.state == models.ServiceStopping {
		state := s.state
		s.mu.Unlock()

		return fmt.Errorf("%w: %s", errAlreadyRunning, state)
	}

	s.setStateLocked(models.ServiceStarting)
	s.mu.Unlock()

	// The pipeline outlives the Start call; only Stop tears it down.
	raw, err := s.engine.Start(context.Background())
	if err != nil {
		s.fail(err)

		return err
	}

	builderCtx, builderCancel := context.WithCancel(context.Background())
	transportCtx, transportStop := context.WithCancel(context.Background())
	reports := make(chan models.Report, reportBuffer)
	lanes := &pipeline{
		builderCancel: builderCancel,
		pumpDone:      make(chan struct{}),
		abort:         make(chan struct{}),
		done:          make(chan struct{}),
	}

	s.mu.Lock()
	s.builderCancel = builderCancel
	s.transportStop = transportStop
	s.pumpDone = lanes.pumpDone
	s.abort = lanes.abort
	s.done = lanes.done
	s.startedAt = s.clock.Now()
	s.lastErr = nil
	s.mu.Unlock()

	// Running is set before the pipeline goroutine exists so a transport
	// that dies immediately still lands on the error state last.
	s.setState(models.ServiceRunning)

	go s.run(raw, builderCtx, transportCtx, reports, lanes)

	s.logger.Info().
		Str("device", s.cfg.DeviceName).
		Str("capture_source", s.engine.ActiveSource()).
		Msg("Bridge started")

	return nil
}

// Stop winds the pipeline down in order: capture first, so the release-all
// flush reaches the host before the links drop, then the builder, then the
// transport. ctx bounds the wait.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()

	// Only a running pipeline has anything to unwind; Starting is a
	// synchronous window inside Start and never observed across calls.
	if s.state != models.ServiceRunning {
		s.mu.Unlock()

		return nil
	}

	s.setStateLocked(models.ServiceStopping)
	pumpDone := s.pumpDone
	builderCancel := s.builderCancel
	transportStop := s.transportStop
	done := s.done
	s.mu.Unlock()

	s.engine.Stop()

	// The pump flushes the release-all reports before it exits.
	select {
	case <-pumpDone:
	case <-ctx.Done():
		transportStop()

		return fmt.Errorf("stopping capture pump: %w", ctx.Err())
	}

	builderCancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		transportStop()

		return fmt.Errorf("stopping transport: %w", ctx.Err())
	}
}

// Status assembles the aggregate snapshot.
func (s *Service) Status() models.ServiceStatus {
	s.mu.Lock()
	state := s.state
	lastErr := s.lastErr
	startedAt := s.startedAt
	s.mu.Unlock()

	status := models.ServiceStatus{
		State:       state,
		DeviceName:  s.cfg.DeviceName,
		Advertising: s.transport.Advertising(),
		Peers:       s.transport.Peers(),
	}

	if lastErr != nil {
		status.LastError = lastErr.Error()
	}

	if state == models.ServiceRunning || state == models.ServiceStopping {
		status.CaptureSource = s.engine.ActiveSource()
		status.StartedAt = startedAt
		status.Uptime = s.clock.Now().Sub(startedAt).Round(time.Second).String()
	}

	return status
}

// Subscribe registers a status feed consumer. The returned channel closes
// on Unsubscribe; events are dropped rather than queued when the consumer
// lags.
func (s *Service) Subscribe() (string, <-chan models.StatusEvent) {
	id := uuid.New().String()
	ch := make(chan models.StatusEvent, subscriberBuffer)

	s.subMu.Lock()
	s.subs[id] = ch
	s.subMu.Unlock()

	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (s *Service) Unsubscribe(id string) {
	s.subMu.Lock()
	ch, ok := s.subs[id]

	if ok {
		delete(s.subs, id)
	}
	s.subMu.Unlock()

	if ok {
		close(ch)
	}
}

// pipeline holds the coordination channels of one Start/Stop generation.
// Passing it through run keeps teardown on the generation it belongs to
// even if the service is restarted while an old finish is still unwinding.
type pipeline struct {
	builderCancel context.CancelFunc
	pumpDone      chan struct{}
	abort         chan struct{}
	done          chan struct{}
}

// run owns the pipeline goroutines. The reports channel closes once both
// producers are done, which lets the transport drain every queued report
// before it shuts down.
func (s *Service) run(raw <-chan models.InputEvent, builderCtx, transportCtx context.Context, reports chan models.Report, lanes *pipeline) {
	var producers errgroup.Group

	producers.Go(func() error {
		defer close(lanes.pumpDone)

		s.pump(raw, reports, lanes.abort)

		return nil
	})

	producers.Go(func() error {
		return s.builder.Run(builderCtx, reports)
	})

	go func() {
		_ = producers.Wait()
		close(reports)
	}()

	err := s.transport.Run(transportCtx, reports)

	s.finish(err, lanes)
}

// pump feeds captured events into the builder. When capture ends it clears
// the accumulated state and flushes directly, so the host sees every key
// and button released even though the builder may already be gone.
func (s *Service) pump(raw <-chan models.InputEvent, reports chan<- models.Report, abort <-chan struct{}) {
	for ev := range raw {
		s.builder.Submit(ev)
	}

	s.builder.ReleaseAll()

	for _, report := range s.builder.Flush() {
		select {
		case reports <- report:
		case <-abort:
			return
		}
	}
}

// finish unwinds whatever is still running after the transport exits,
// regardless of which lane died first.
func (s *Service) finish(err error, lanes *pipeline) {
	close(lanes.abort)
	s.engine.Stop()
	<-lanes.pumpDone
	lanes.builderCancel()

	if err != nil {
		s.logger.Error().Err(err).Msg("Bridge pipeline failed")
		s.fail(err)
	} else {
		s.setState(models.ServiceStopped)
		s.logger.Info().Msg("Bridge stopped")
	}

	close(lanes.done)
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.setStateLocked(models.ServiceError)
	s.mu.Unlock()

	s.publish(models.StatusEvent{
		Kind:    models.StatusWarning,
		Message: err.Error(),
	})
}

func (s *Service) setState(state models.ServiceState) {
	s.mu.Lock()
	s.setStateLocked(state)
	s.mu.Unlock()
}

// setStateLocked transitions the lifecycle state and publishes the change.
// Callers hold s.mu.
func (s *Service) setStateLocked(state models.ServiceState) {
	if s.state == state {
		return
	}

	s.logger.Info().
		Str("from", string(s.state)).
		Str("to", string(state)).
		Msg("Service state changed")

	s.state = state

	s.publish(models.StatusEvent{
		Kind:    models.StatusServiceChange,
		Service: state,
	})
}

func (s *Service) publishPeer(peer models.PeerStatus) {
	s.publish(models.StatusEvent{
		Kind: models.StatusPeerChange,
		Peer: &peer,
	})
}

// publish fans an event out to every subscriber without ever blocking the
// pipeline.
func (s *Service) publish(ev models.StatusEvent) {
	ev.ID = uuid.New().String()
	ev.Timestamp = s.clock.Now()

	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug().
				Str("subscriber", id).
				Str("kind", string(ev.Kind)).
				Msg("Status event dropped, subscriber too slow")
		}
	}
}
