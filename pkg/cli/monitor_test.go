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

package cli

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkvm/keywave/pkg/models"
)

const testAddr = "127.0.0.1:8590"

func newTestModel() *model {
	return initialModel(testAddr)
}

// idleFeed builds a feed with no connection behind it, for driving Update by
// hand.
func idleFeed() *feed {
	return &feed{
		events: make(chan models.StatusEvent, 1),
		done:   make(chan struct{}),
	}
}

func testSnapshot() models.ServiceStatus {
	return models.ServiceStatus{
		State:         models.ServiceRunning,
		DeviceName:    "Keywave Input",
		CaptureSource: "hook",
		Advertising:   true,
		Peers: []models.PeerStatus{
			{
				Address:   "AA:BB:CC:DD:EE:20",
				State:     models.PeerPaired,
				Encrypted: true,
				Breaker:   models.BreakerClosed,
			},
		},
	}
}

func peerEvent(addr string, state models.ConnectionState) feedEventMsg {
	return feedEventMsg(models.StatusEvent{
		ID:        "ev-peer",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Kind:      models.StatusPeerChange,
		Peer: &models.PeerStatus{
			Address: addr,
			State:   state,
			Breaker: models.BreakerClosed,
		},
	})
}

func connectModel(t *testing.T, m *model) {
	t.Helper()

	_, cmd := m.Update(feedReadyMsg{feed: idleFeed(), status: testSnapshot()})

	require.Equal(t, linkOnline, m.link)
	require.NotNil(t, cmd, "a connected monitor must be waiting on the feed")
}

func TestMonitorConnectSeedsView(t *testing.T) {
	m := newTestModel()

	connectModel(t, m)

	assert.NoError(t, m.linkErr)
	require.Len(t, m.peers, 1)
	assert.Equal(t, models.PeerPaired, m.peers[0].State)

	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "Keywave Input")
	assert.Contains(t, view, "AA:BB:CC:DD:EE:20")
	assert.Contains(t, view, "encrypted")
}

func TestMonitorViewWhileDialing(t *testing.T) {
	m := newTestModel()

	view := m.View()

	assert.Contains(t, view, "connecting")
	assert.Contains(t, view, testAddr)
	assert.NotContains(t, view, "Peers", "panes stay hidden until a snapshot arrives")
}

func TestMonitorAppliesPeerEvents(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	_, cmd := m.Update(peerEvent("AA:BB:CC:DD:EE:20", models.PeerDisconnected))

	require.NotNil(t, cmd)
	require.Len(t, m.peers, 1, "events for a known address update the row in place")
	assert.Equal(t, models.PeerDisconnected, m.peers[0].State)

	_, _ = m.Update(peerEvent("AA:BB:CC:DD:EE:21", models.PeerConnected))

	require.Len(t, m.peers, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:21", m.peers[1].Address)
}

func TestMonitorTracksServiceState(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	_, cmd := m.Update(feedEventMsg(models.StatusEvent{
		ID:      "ev-svc",
		Kind:    models.StatusServiceChange,
		Service: models.ServiceError,
		Message: "transport failed",
	}))

	require.NotNil(t, cmd)
	assert.Equal(t, models.ServiceError, m.service.State)
	require.Len(t, m.events, 1)
	assert.Equal(t, "ev-svc", m.events[0].ID)
}

func TestMonitorEventBacklogCapped(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	for i := 0; i < eventBacklog+5; i++ {
		_, _ = m.Update(feedEventMsg(models.StatusEvent{
			ID:      fmt.Sprintf("ev-%d", i),
			Kind:    models.StatusWarning,
			Message: "report dropped",
		}))
	}

	require.Len(t, m.events, eventBacklog)
	assert.Equal(t, "ev-5", m.events[0].ID, "oldest lines fall off the front")
}

func TestMonitorFeedLossSchedulesRedial(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	feedErr := errors.New("unexpected EOF")

	_, cmd := m.Update(feedDownMsg{err: feedErr})

	require.NotNil(t, cmd)
	assert.Equal(t, linkWaiting, m.link)
	assert.Nil(t, m.feed)
	assert.Equal(t, feedErr, m.linkErr)
	assert.Contains(t, m.View(), "reconnecting")

	// A second loss report must not stack another redial timer.
	_, cmd = m.Update(feedDownMsg{err: feedErr})
	assert.Nil(t, cmd)

	_, cmd = m.Update(redialMsg(time.Now()))

	require.NotNil(t, cmd)
	assert.Equal(t, linkDialing, m.link)

	// A stale timer firing mid-dial is ignored.
	_, cmd = m.Update(redialMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestMonitorManualRetrySkipsDelay(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	_, _ = m.Update(feedDownMsg{err: errors.New("gone")})
	require.Equal(t, linkWaiting, m.link)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})

	require.NotNil(t, cmd)
	assert.Equal(t, linkDialing, m.link)
}

func TestMonitorRetryKeyIdleWhileOnline(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})

	assert.Nil(t, cmd)
	assert.Equal(t, linkOnline, m.link)
}

func TestMonitorQuitKeys(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
		{Type: tea.KeyRunes, Runes: []rune("q")},
	}

	for _, key := range keys {
		m := newTestModel()
		connectModel(t, m)

		_, cmd := m.Update(key)

		require.NotNil(t, cmd, "key %q must quit", key.String())

		_, isQuit := cmd().(tea.QuitMsg)
		assert.True(t, isQuit, "key %q must quit", key.String())
	}
}

func TestMonitorClearEventsKey(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	_, _ = m.Update(feedEventMsg(models.StatusEvent{Kind: models.StatusWarning, Message: "noise"}))
	require.Len(t, m.events, 1)

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})

	assert.Empty(t, m.events)
}

func TestMonitorViewShowsUptime(t *testing.T) {
	m := newTestModel()

	status := testSnapshot()
	status.StartedAt = time.Now().Add(-90 * time.Second)

	_, _ = m.Update(feedReadyMsg{feed: idleFeed(), status: status})

	assert.Contains(t, m.View(), "1m30s")
}

func TestMonitorSnapshotRefreshKeepsPeers(t *testing.T) {
	m := newTestModel()
	connectModel(t, m)

	_, _ = m.Update(peerEvent("AA:BB:CC:DD:EE:21", models.PeerConnected))
	require.Len(t, m.peers, 2)

	// A mid-session refresh merges rather than wiping rows the snapshot
	// happens not to list.
	refresh := testSnapshot()
	refresh.StartedAt = time.Now()

	_, _ = m.Update(statusMsg(refresh))

	assert.Len(t, m.peers, 2)
	assert.False(t, m.service.StartedAt.IsZero())
}

func TestWaitForEventDeliversAndReportsClose(t *testing.T) {
	f := idleFeed()

	want := models.StatusEvent{ID: "ev-1", Kind: models.StatusWarning, Message: "report dropped"}
	f.events <- want

	msg := waitForEvent(f)()

	ev, ok := msg.(feedEventMsg)
	require.True(t, ok)
	assert.Equal(t, want.ID, ev.ID)

	f.setErr(errors.New("read timeout"))
	close(f.events)

	msg = waitForEvent(f)()

	down, ok := msg.(feedDownMsg)
	require.True(t, ok)
	assert.EqualError(t, down.err, "read timeout")
}
