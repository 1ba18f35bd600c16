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

package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

func testEngineConfig(mutate func(*models.Config)) *models.Config {
	cfg := models.DefaultConfig()

	if mutate != nil {
		mutate(cfg)
	}

	return cfg
}

// engineHarness wires an engine to a mock source and a mock clock so tests
// control both the raw event feed and the coalescing window ticks.
type engineHarness struct {
	engine *Engine
	raw    chan models.InputEvent
	ticks  chan time.Time
	out    <-chan models.InputEvent
}

func newEngineHarness(t *testing.T, cfg *models.Config) *engineHarness {
	t.Helper()

	ctrl := gomock.NewController(t)

	// Unbuffered: a send returns only once the engine has taken the event,
	// which makes event-then-tick ordering deterministic.
	raw := make(chan models.InputEvent)
	ticks := make(chan time.Time)

	src := NewMockCaptureSource(ctrl)
	src.EXPECT().Name().Return("hook").AnyTimes()
	src.EXPECT().Start(gomock.Any()).Return(raw, nil)
	src.EXPECT().Stop().Return(nil)

	ticker := clock.NewMockTicker(ctrl)
	ticker.EXPECT().Chan().Return(ticks).AnyTimes()
	ticker.EXPECT().Stop()

	clk := clock.NewMockClock(ctrl)
	clk.EXPECT().Ticker(cfg.CoalesceWindow()).Return(ticker)

	eng := NewEngine(cfg, src, nil, clk, logger.NewTestLogger())

	out, err := eng.Start(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, eng.Stop())
	})

	return &engineHarness{engine: eng, raw: raw, ticks: ticks, out: out}
}

func (h *engineHarness) feed(t *testing.T, ev models.InputEvent) {
	t.Helper()

	select {
	case h.raw <- ev:
	case <-time.After(time.Second):
		t.Fatal("engine did not accept the event")
	}
}

func (h *engineHarness) tick(t *testing.T) {
	t.Helper()

	select {
	case h.ticks <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("engine did not accept the tick")
	}
}

func (h *engineHarness) expect(t *testing.T) models.InputEvent {
	t.Helper()

	select {
	case ev, ok := <-h.out:
		require.True(t, ok, "output channel closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected a forwarded event")
		return models.InputEvent{}
	}
}

func (h *engineHarness) expectNothing(t *testing.T) {
	t.Helper()

	select {
	case ev := <-h.out:
		t.Fatalf("unexpected forwarded event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func move(dx, dy int32) models.InputEvent {
	return models.InputEvent{Kind: models.KindMouseMove, DeltaX: dx, DeltaY: dy}
}

func TestEngineDropsMovesBelowDeadZone(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(func(c *models.Config) {
		c.DeadZoneThreshold = 5
	}))

	// |dx|+|dy| < 5 on every one of these: none may survive, not even as
	// accumulated residue.
	for _, ev := range []models.InputEvent{move(1, 1), move(2, 2), move(0, 4), move(-3, 1)} {
		h.feed(t, ev)
	}

	h.tick(t)
	h.expectNothing(t)

	// At the threshold the move passes.
	h.feed(t, move(3, 2))
	h.tick(t)

	got := h.expect(t)
	assert.Equal(t, models.KindMouseMove, got.Kind)
	assert.Equal(t, int32(3), got.DeltaX)
	assert.Equal(t, int32(2), got.DeltaY)
}

func TestEngineCoalescesMovesInsideWindow(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(nil))

	h.feed(t, move(3, 4))
	h.feed(t, move(5, 6))
	h.tick(t)

	got := h.expect(t)
	assert.Equal(t, int32(8), got.DeltaX, "window sums displacement")
	assert.Equal(t, int32(10), got.DeltaY)

	// Exactly one event leaves the window.
	h.expectNothing(t)
}

func TestEngineCoalescesWheelInsideWindow(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(nil))

	h.feed(t, models.InputEvent{Kind: models.KindMouseWheel, WheelDelta: 1})
	h.feed(t, models.InputEvent{Kind: models.KindMouseWheel, WheelDelta: 2})
	h.tick(t)

	got := h.expect(t)
	assert.Equal(t, models.KindMouseWheel, got.Kind)
	assert.Equal(t, int32(3), got.WheelDelta)

	h.expectNothing(t)
}

func TestEngineAppliesSensitivityScaling(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(func(c *models.Config) {
		c.MouseSensitivity = 2.0
	}))

	h.feed(t, move(3, -2))
	h.tick(t)

	got := h.expect(t)
	assert.Equal(t, int32(6), got.DeltaX)
	assert.Equal(t, int32(-4), got.DeltaY)
}

func TestEngineDropsMotionScaledToZero(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(func(c *models.Config) {
		c.MouseSensitivity = 0.25
	}))

	h.feed(t, move(1, 1))
	h.tick(t)
	h.expectNothing(t)
}

func TestEngineForwardsKeysAndButtonsImmediately(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(nil))

	// No tick is ever sent: key and button transitions must not wait for
	// the coalescing window.
	h.feed(t, models.InputEvent{Kind: models.KindKeyDown, KeyCode: 0x04, Pressed: true})
	assert.Equal(t, models.KindKeyDown, h.expect(t).Kind)

	h.feed(t, models.InputEvent{Kind: models.KindMouseButton, Button: models.ButtonLeft, Pressed: true})
	assert.Equal(t, models.KindMouseButton, h.expect(t).Kind)
}

func TestEngineWindowsAreIndependent(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(nil))

	h.feed(t, move(1, 0))
	h.tick(t)
	assert.Equal(t, int32(1), h.expect(t).DeltaX)

	// The drained window leaves nothing behind.
	h.tick(t)
	h.expectNothing(t)

	h.feed(t, move(2, 0))
	h.tick(t)
	assert.Equal(t, int32(2), h.expect(t).DeltaX, "new window starts from zero")
}

func TestEngineFallsBackWhenPrimaryFails(t *testing.T) {
	ctrl := gomock.NewController(t)

	primary := NewMockCaptureSource(ctrl)
	primary.EXPECT().Name().Return("hook").AnyTimes()
	primary.EXPECT().Start(gomock.Any()).Return(nil, errors.New("hook refused"))

	raw := make(chan models.InputEvent)

	fallback := NewMockCaptureSource(ctrl)
	fallback.EXPECT().Name().Return("poll").AnyTimes()
	fallback.EXPECT().Start(gomock.Any()).Return(raw, nil)
	fallback.EXPECT().Stop().Return(nil)

	ticker := clock.NewMockTicker(ctrl)
	ticker.EXPECT().Chan().Return(make(chan time.Time)).AnyTimes()
	ticker.EXPECT().Stop()

	cfg := testEngineConfig(nil)
	clk := clock.NewMockClock(ctrl)
	clk.EXPECT().Ticker(cfg.CoalesceWindow()).Return(ticker)

	eng := NewEngine(cfg, primary, fallback, clk, logger.NewTestLogger())

	out, err := eng.Start(context.Background())
	require.NoError(t, err, "fallback keeps the session alive")
	require.NotNil(t, out)

	assert.Equal(t, "poll", eng.ActiveSource())

	require.NoError(t, eng.Stop())
	assert.Empty(t, eng.ActiveSource())
}

func TestEngineFallbackDisabledFailsStartup(t *testing.T) {
	ctrl := gomock.NewController(t)

	primary := NewMockCaptureSource(ctrl)
	primary.EXPECT().Name().Return("hook").AnyTimes()
	primary.EXPECT().Start(gomock.Any()).Return(nil, errors.New("hook refused"))

	cfg := testEngineConfig(func(c *models.Config) {
		c.InputFallback = false
	})

	eng := NewEngine(cfg, primary, NewMockCaptureSource(ctrl), clock.NewMockClock(ctrl), logger.NewTestLogger())

	_, err := eng.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.Empty(t, eng.ActiveSource())
}

func TestEngineBothSourcesFailingFailsStartup(t *testing.T) {
	ctrl := gomock.NewController(t)

	primary := NewMockCaptureSource(ctrl)
	primary.EXPECT().Name().Return("hook").AnyTimes()
	primary.EXPECT().Start(gomock.Any()).Return(nil, errors.New("hook refused"))

	fallback := NewMockCaptureSource(ctrl)
	fallback.EXPECT().Name().Return("poll").AnyTimes()
	fallback.EXPECT().Start(gomock.Any()).Return(nil, errors.New("no display"))

	eng := NewEngine(testEngineConfig(nil), primary, fallback, clock.NewMockClock(ctrl), logger.NewTestLogger())

	_, err := eng.Start(context.Background())
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestEngineStartWhileRunningFails(t *testing.T) {
	h := newEngineHarness(t, testEngineConfig(nil))

	_, err := h.engine.Start(context.Background())
	assert.Error(t, err)
}

func TestEngineStopIsIdempotentAndRestartable(t *testing.T) {
	ctrl := gomock.NewController(t)

	src := NewMockCaptureSource(ctrl)
	src.EXPECT().Name().Return("hook").AnyTimes()
	src.EXPECT().Start(gomock.Any()).Return(make(chan models.InputEvent), nil).Times(2)
	src.EXPECT().Stop().Return(nil).Times(2)

	ticker := clock.NewMockTicker(ctrl)
	ticker.EXPECT().Chan().Return(make(chan time.Time)).AnyTimes()
	ticker.EXPECT().Stop().Times(2)

	cfg := testEngineConfig(nil)
	clk := clock.NewMockClock(ctrl)
	clk.EXPECT().Ticker(cfg.CoalesceWindow()).Return(ticker).Times(2)

	eng := NewEngine(cfg, src, nil, clk, logger.NewTestLogger())

	out, err := eng.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, eng.Stop())

	// The output channel closes with the engine.
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("output channel did not close on stop")
	}

	require.NoError(t, eng.Stop(), "second stop is a no-op")

	_, err = eng.Start(context.Background())
	require.NoError(t, err, "engine restarts after stop")
	require.NoError(t, eng.Stop())
}

func TestEngineStopsWhenSourceCloses(t *testing.T) {
	ctrl := gomock.NewController(t)

	raw := make(chan models.InputEvent)

	src := NewMockCaptureSource(ctrl)
	src.EXPECT().Name().Return("hook").AnyTimes()
	src.EXPECT().Start(gomock.Any()).Return(raw, nil)
	src.EXPECT().Stop().Return(nil)

	ticker := clock.NewMockTicker(ctrl)
	ticker.EXPECT().Chan().Return(make(chan time.Time)).AnyTimes()
	ticker.EXPECT().Stop()

	cfg := testEngineConfig(nil)
	clk := clock.NewMockClock(ctrl)
	clk.EXPECT().Ticker(cfg.CoalesceWindow()).Return(ticker)

	eng := NewEngine(cfg, src, nil, clk, logger.NewTestLogger())

	out, err := eng.Start(context.Background())
	require.NoError(t, err)

	close(raw)

	select {
	case _, ok := <-out:
		assert.False(t, ok, "output closes when the source feed ends")
	case <-time.After(time.Second):
		t.Fatal("output channel did not close")
	}

	require.NoError(t, eng.Stop())
}
