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

package hid

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

// Builder folds input events into keyboard and mouse accumulators and emits
// fixed-layout reports on flush. Keyboard and mouse streams are always
// batched and emitted independently, never merged into one frame.
//
// Submit and Flush share one critical section: a flush snapshots and resets
// under the lock, a submit appends under the lock, so no accumulator value
// is ever read while an append is in flight.
type Builder struct {
	mu           sync.Mutex
	keyboard     *KeyboardState
	mouse        *MouseState
	kbDirty      bool
	mouseDirty   bool
	pending      int
	lastKeyboard []byte
	lastMouse    []byte

	batching    bool
	batchLimit  int
	compression bool
	kbID        uint8
	mouseID     uint8
	interval    time.Duration

	forceCh chan struct{}
	clock   clock.Clock
	logger  logger.Logger
}

// NewBuilder creates a report builder for the session configuration.
func NewBuilder(cfg *models.Config, clk clock.Clock, log logger.Logger) *Builder {
	return &Builder{
		keyboard:    NewKeyboardState(cfg.KeyboardBufferSize),
		mouse:       NewMouseState(),
		batching:    cfg.Batching,
		batchLimit:  cfg.BatchSizeLimit,
		compression: cfg.Compression,
		kbID:        cfg.KeyboardReportID,
		mouseID:     cfg.MouseReportID,
		interval:    cfg.ReportInterval(),
		forceCh:     make(chan struct{}, 1),
		clock:       clk,
		logger:      log,
	}
}

// Submit folds one event into the accumulators. It never blocks: the event
// is applied under the lock and, when the batch limit is reached or
// batching is disabled, a flush is requested rather than performed inline.
func (b *Builder) Submit(ev models.InputEvent) {
	b.mu.Lock()

	var changed bool

	switch ev.Kind {
	case models.KindKeyDown:
		changed = b.keyboard.Press(ev.KeyCode)
		b.kbDirty = b.kbDirty || changed
	case models.KindKeyUp:
		changed = b.keyboard.Release(ev.KeyCode)
		b.kbDirty = b.kbDirty || changed
	case models.KindMouseMove:
		changed = b.mouse.Move(ev.DeltaX, ev.DeltaY)
		b.mouseDirty = b.mouseDirty || changed
	case models.KindMouseButton:
		changed = b.mouse.SetButton(ev.Button, ev.Pressed)
		b.mouseDirty = b.mouseDirty || changed
	case models.KindMouseWheel:
		changed = b.mouse.Scroll(ev.WheelDelta)
		b.mouseDirty = b.mouseDirty || changed
	}

	var force bool

	if changed {
		b.pending++
		force = !b.batching || b.pending >= b.batchLimit
	}

	b.mu.Unlock()

	if force {
		b.requestFlush()
	}
}

// ReleaseAll clears both accumulators so the next flush reports an empty
// state, preventing stuck keys or buttons on the host when capture stops.
func (b *Builder) ReleaseAll() {
	b.mu.Lock()

	if b.keyboard.Clear() {
		b.kbDirty = true
		b.pending++
	}

	if b.mouse.Clear() {
		b.mouseDirty = true
		b.pending++
	}

	b.mu.Unlock()

	b.requestFlush()
}

// Flush snapshots and resets the accumulated state, returning the reports
// to transmit in order: keyboard first, then mouse. A stream produces a
// report only when it changed since the previous flush; with compression
// enabled a payload byte-identical to the last one emitted for that stream
// is suppressed entirely. A mouse payload carrying motion is exempt: its
// deltas are consumed by emission, so suppressing it would lose
// displacement.
func (b *Builder) Flush() []models.Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	reports := make([]models.Report, 0, 2)

	if b.kbDirty {
		b.kbDirty = false

		if payload := b.keyboard.Payload(); b.shouldEmit(payload, b.lastKeyboard) {
			b.lastKeyboard = payload
			reports = append(reports, models.Report{
				Type:    models.ReportKeyboard,
				ID:      b.kbID,
				Payload: payload,
			})
		}
	}

	if b.mouseDirty {
		b.mouseDirty = false

		payload := b.mouse.Payload()
		motion := b.mouse.HasMotion()
		b.mouse.ResetDeltas()

		if motion || b.shouldEmit(payload, b.lastMouse) {
			b.lastMouse = payload
			reports = append(reports, models.Report{
				Type:    models.ReportMouse,
				ID:      b.mouseID,
				Payload: payload,
			})
		}
	}

	b.pending = 0

	return reports
}

func (b *Builder) shouldEmit(payload, last []byte) bool {
	if !b.compression {
		return true
	}

	return !bytes.Equal(payload, last)
}

// Run drives the flush timer until ctx is canceled, writing reports to out
// in flush order. Submit wakes the loop early through the force channel;
// the periodic tick bounds report latency when batches stay small.
func (b *Builder) Run(ctx context.Context, out chan<- models.Report) error {
	ticker := b.clock.Ticker(b.interval)
	defer ticker.Stop()

	b.logger.Info().
		Dur("interval", b.interval).
		Bool("batching", b.batching).
		Bool("compression", b.compression).
		Msg("Report builder started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		case <-b.forceCh:
		}

		for _, report := range b.Flush() {
			select {
			case out <- report:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (b *Builder) requestFlush() {
	select {
	case b.forceCh <- struct{}{}:
	default:
	}
}
