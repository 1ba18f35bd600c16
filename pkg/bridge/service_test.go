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

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openkvm/keywave/pkg/bluetooth"
	"github.com/openkvm/keywave/pkg/capture"
	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

const hostAddr = "AA:BB:CC:DD:EE:10"

const waitTimeout = 2 * time.Second

// testServiceConfig disables batching so every input event forces a flush,
// making the whole pipeline event-driven under test.
func testServiceConfig() *models.Config {
	cfg := models.DefaultConfig()
	cfg.Batching = false
	cfg.RequireAuthentication = false
	cfg.RequireEncryption = false
	cfg.ListenAddr = ""

	return cfg
}

type serviceHarness struct {
	svc    *Service
	radio  *bluetooth.MockRadio
	source *capture.MockCaptureSource

	raw      chan models.InputEvent
	links    chan bluetooth.LinkEvent
	notifies chan models.Report
	events   <-chan models.StatusEvent
}

func newServiceHarness(t *testing.T, cfg *models.Config) *serviceHarness {
	t.Helper()

	ctrl := gomock.NewController(t)

	clk := clock.NewMockClock(ctrl)
	clk.EXPECT().Now().Return(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)).AnyTimes()
	clk.EXPECT().Ticker(gomock.Any()).DoAndReturn(func(time.Duration) clock.Ticker {
		ticker := clock.NewMockTicker(ctrl)
		ticker.EXPECT().Chan().Return(make(chan time.Time)).AnyTimes()
		ticker.EXPECT().Stop().AnyTimes()

		return ticker
	}).AnyTimes()

	h := &serviceHarness{
		radio:    bluetooth.NewMockRadio(ctrl),
		source:   capture.NewMockCaptureSource(ctrl),
		raw:      make(chan models.InputEvent),
		links:    make(chan bluetooth.LinkEvent),
		notifies: make(chan models.Report, 16),
	}

	h.svc = New(cfg, h.radio, h.source, nil, clk, logger.NewTestLogger())
	_, h.events = h.svc.Subscribe()

	return h
}

// start registers the harness defaults and brings the service up. Tests
// needing different radio or source behavior register their expectations
// first; gomock matches in registration order.
func (h *serviceHarness) start(t *testing.T) {
	t.Helper()

	h.source.EXPECT().Name().Return("hook").AnyTimes()
	h.source.EXPECT().Start(gomock.Any()).Return(h.raw, nil).MaxTimes(1)
	h.source.EXPECT().Stop().Return(nil).AnyTimes()

	h.radio.EXPECT().Start(gomock.Any()).Return(h.links, nil).MaxTimes(1)
	h.radio.EXPECT().Advertise(gomock.Any()).Return(nil).AnyTimes()
	h.radio.EXPECT().StopAdvertising(gomock.Any()).Return(nil).AnyTimes()
	h.radio.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, report models.Report) error {
			h.notifies <- report

			return nil
		}).AnyTimes()
	h.radio.EXPECT().Disconnect(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	h.radio.EXPECT().Stop().Return(nil).AnyTimes()

	require.NoError(t, h.svc.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()

		_ = h.svc.Stop(ctx)
	})

	h.waitService(t, models.ServiceRunning)
}

func (h *serviceHarness) connect(t *testing.T) {
	t.Helper()

	h.links <- bluetooth.LinkEvent{Kind: bluetooth.LinkConnected, Addr: hostAddr}
	h.waitPeer(t, hostAddr, models.PeerConnected)
}

func (h *serviceHarness) waitService(t *testing.T, want models.ServiceState) {
	t.Helper()

	deadline := time.After(waitTimeout)

	for {
		select {
		case ev := <-h.events:
			if ev.Kind == models.StatusServiceChange && ev.Service == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for service state %q", want)
		}
	}
}

func (h *serviceHarness) waitPeer(t *testing.T, addr string, want models.ConnectionState) models.PeerStatus {
	t.Helper()

	deadline := time.After(waitTimeout)

	for {
		select {
		case ev := <-h.events:
			if ev.Kind == models.StatusPeerChange && ev.Peer != nil &&
				ev.Peer.Address == addr && ev.Peer.State == want {
				return *ev.Peer
			}
		case <-deadline:
			t.Fatalf("timed out waiting for peer %s state %q", addr, want)
		}
	}
}

func (h *serviceHarness) waitReport(t *testing.T) models.Report {
	t.Helper()

	select {
	case report := <-h.notifies:
		return report
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a report")
	}

	return models.Report{}
}

func (h *serviceHarness) expectNoReport(t *testing.T) {
	t.Helper()

	select {
	case report := <-h.notifies:
		t.Fatalf("unexpected %s report %v", report.Type, report.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServicePublishesLifecycleOnStart(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())
	h.start(t)

	status := h.svc.Status()
	assert.Equal(t, models.ServiceRunning, status.State)
	assert.Equal(t, "Keywave Input", status.DeviceName)
	assert.Equal(t, "hook", status.CaptureSource)
	assert.Empty(t, status.LastError)
}

func TestServiceStartWhileRunningFails(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())
	h.start(t)

	err := h.svc.Start(context.Background())
	require.ErrorIs(t, err, errAlreadyRunning)
}

func TestServiceDeliversTypedKeysEndToEnd(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())
	h.start(t)
	h.connect(t)

	h.raw <- models.InputEvent{Kind: models.KindKeyDown, KeyCode: 0x04}

	pressed := h.waitReport(t)
	assert.Equal(t, models.ReportKeyboard, pressed.Type)
	require.Len(t, pressed.Payload, 8)
	assert.Equal(t, byte(0x04), pressed.Payload[2])

	h.raw <- models.InputEvent{Kind: models.KindKeyUp, KeyCode: 0x04}

	released := h.waitReport(t)
	assert.Equal(t, models.ReportKeyboard, released.Type)
	assert.Equal(t, make([]byte, 8), released.Payload)

	// One keystroke is exactly two frames: press and release.
	h.expectNoReport(t)
}

func TestServiceDeliversMouseButtonsEndToEnd(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())
	h.start(t)
	h.connect(t)

	h.raw <- models.InputEvent{Kind: models.KindMouseButton, Button: models.ButtonLeft, Pressed: true}

	down := h.waitReport(t)
	assert.Equal(t, models.ReportMouse, down.Type)
	require.NotEmpty(t, down.Payload)
	assert.Equal(t, byte(0x01), down.Payload[0])

	h.raw <- models.InputEvent{Kind: models.KindMouseButton, Button: models.ButtonLeft, Pressed: false}

	up := h.waitReport(t)
	assert.Equal(t, models.ReportMouse, up.Type)
	assert.Equal(t, byte(0x00), up.Payload[0])

	h.expectNoReport(t)
}

func TestServiceReleasesHeldKeysOnStop(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())
	h.start(t)
	h.connect(t)

	h.raw <- models.InputEvent{Kind: models.KindKeyDown, KeyCode: 0x04}
	h.waitReport(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, h.svc.Stop(ctx))

	released := h.waitReport(t)
	assert.Equal(t, models.ReportKeyboard, released.Type)
	assert.Equal(t, make([]byte, 8), released.Payload, "host must not be left with a stuck key")

	assert.Equal(t, models.ServiceStopped, h.svc.Status().State)
}

func TestServiceStopWithoutStartIsNoop(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())

	require.NoError(t, h.svc.Stop(context.Background()))
	assert.Equal(t, models.ServiceStopped, h.svc.Status().State)
}

func TestServiceFailsWhenCaptureUnavailable(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())

	h.source.EXPECT().Name().Return("hook").AnyTimes()
	h.source.EXPECT().Start(gomock.Any()).Return(nil, errors.New("event tap rejected"))

	err := h.svc.Start(context.Background())
	require.ErrorIs(t, err, capture.ErrCaptureUnavailable)

	h.waitService(t, models.ServiceError)

	status := h.svc.Status()
	assert.Equal(t, models.ServiceError, status.State)
	assert.Contains(t, status.LastError, "event tap rejected")
}

func TestServiceReportsRadioFailureOnFeed(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())

	h.radio.EXPECT().Start(gomock.Any()).Return(nil, errors.New("hci0 unavailable"))

	h.start(t)

	h.waitService(t, models.ServiceError)

	status := h.svc.Status()
	assert.Equal(t, models.ServiceError, status.State)
	assert.Contains(t, status.LastError, "hci0 unavailable")
}

func TestServiceStatusTracksConnectedPeer(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())
	h.start(t)
	h.connect(t)

	status := h.svc.Status()
	require.Len(t, status.Peers, 1)
	assert.Equal(t, hostAddr, status.Peers[0].Address)
	assert.Equal(t, models.PeerConnected, status.Peers[0].State)
	assert.False(t, status.Advertising, "advertising suspends while a host owns the device")
}

func TestServiceUnsubscribeClosesFeed(t *testing.T) {
	h := newServiceHarness(t, testServiceConfig())

	id, events := h.svc.Subscribe()
	h.svc.Unsubscribe(id)

	_, open := <-events
	assert.False(t, open)
}
