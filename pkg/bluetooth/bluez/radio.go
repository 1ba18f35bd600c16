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

// Package bluez implements the Radio boundary on the Linux BlueZ stack. The
// GATT surface (services, advertising, notifications, link events) goes
// through tinygo.org/x/bluetooth; pairing initiation and bond tracking go
// through the BlueZ D-Bus API directly, which tinygo does not expose.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ble "tinygo.org/x/bluetooth"

	"github.com/openkvm/keywave/pkg/bluetooth"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

var (
	errRadioStarted    = errors.New("radio already started")
	errRadioNotStarted = errors.New("radio not started")
	errPeerUnknown     = errors.New("peer not connected")
)

const eventBuffer = 16

// hidInformation is the HID Information characteristic value: bcdHID 1.11,
// country code 0, flags RemoteWake|NormallyConnectable.
var hidInformation = []byte{0x11, 0x01, 0x00, 0x03}

// protocolModeReport selects report protocol in the Protocol Mode
// characteristic.
const protocolModeReport = 0x01

// pnpID identifies the device to hosts that require a PnP ID before they
// accept a HID peripheral: USB vendor-ID source, vendor 0x1915, product
// 0xEEEE, version 1.0.
var pnpID = []byte{0x02, 0x15, 0x19, 0xEE, 0xEE, 0x00, 0x01}

// Radio is the production Radio implementation. One Radio owns the default
// adapter; Start may be called again after Stop.
type Radio struct {
	cfg       *models.Config
	reportMap []byte
	logger    logger.Logger

	adapter   *ble.Adapter
	adv       *ble.Advertisement
	kbChar    ble.Characteristic
	mouseChar ble.Characteristic

	mu      sync.Mutex
	started bool
	conns   map[string]ble.Device
	events  chan bluetooth.LinkEvent
	watcher *securityWatcher
}

// New creates a BlueZ radio serving the given report map.
func New(cfg *models.Config, reportMap []byte, log logger.Logger) *Radio {
	return &Radio{
		cfg:       cfg,
		reportMap: reportMap,
		logger:    log,
	}
}

// Start powers the adapter, registers the HID GATT profile, and begins
// reporting link events.
func (r *Radio) Start(_ context.Context) (<-chan bluetooth.LinkEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil, errRadioStarted
	}

	r.adapter = ble.DefaultAdapter
	if err := r.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enabling adapter: %w", err)
	}

	if err := r.registerServices(); err != nil {
		return nil, fmt.Errorf("registering GATT services: %w", err)
	}

	if err := r.configureAdvertisement(); err != nil {
		return nil, fmt.Errorf("configuring advertisement: %w", err)
	}

	r.conns = make(map[string]ble.Device)
	r.events = make(chan bluetooth.LinkEvent, eventBuffer)

	r.adapter.SetConnectHandler(func(device ble.Device, connected bool) {
		r.handleConnectChange(device, connected)
	})

	watcher, err := newSecurityWatcher(r.logger, r.emit)
	if err != nil {
		// Without the watcher, pairing outcomes are invisible; policies
		// that require encryption would strand every peer in Pairing.
		return nil, fmt.Errorf("watching link security: %w", err)
	}

	r.watcher = watcher
	r.started = true

	r.logger.Info().
		Str("device", r.cfg.DeviceName).
		Msg("BlueZ radio started")

	return r.events, nil
}

// Advertise begins or resumes advertising the HID service.
func (r *Radio) Advertise(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return errRadioNotStarted
	}

	return r.adv.Start()
}

// StopAdvertising halts advertising without touching existing links.
func (r *Radio) StopAdvertising(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return errRadioNotStarted
	}

	return r.adv.Stop()
}

// Pair initiates pairing with a connected peer through BlueZ. The outcome
// surfaces as a LinkSecurityChanged event from the security watcher.
func (r *Radio) Pair(ctx context.Context, addr string) error {
	r.mu.Lock()
	watcher := r.watcher
	r.mu.Unlock()

	if watcher == nil {
		return errRadioNotStarted
	}

	return watcher.Pair(ctx, addr)
}

// Notify delivers one report as a GATT notification. BlueZ pushes the value
// to every subscribed central; with the transport suspending advertising
// while a host is connected, that is the addressed peer.
func (r *Radio) Notify(_ context.Context, addr string, report models.Report) error {
	r.mu.Lock()

	if !r.started {
		r.mu.Unlock()
		return errRadioNotStarted
	}

	if _, ok := r.conns[addr]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", errPeerUnknown, addr)
	}

	char := &r.kbChar
	if report.Type == models.ReportMouse {
		char = &r.mouseChar
	}

	r.mu.Unlock()

	if _, err := char.Write(report.Payload); err != nil {
		return fmt.Errorf("notifying %s report: %w", report.Type, err)
	}

	return nil
}

// Disconnect tears down the link to a peer.
func (r *Radio) Disconnect(_ context.Context, addr string) error {
	r.mu.Lock()
	device, ok := r.conns[addr]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", errPeerUnknown, addr)
	}

	return device.Disconnect()
}

// Stop stops advertising, drops all links, and releases the adapter. The
// event channel closes once everything is down.
func (r *Radio) Stop() error {
	r.mu.Lock()

	if !r.started {
		r.mu.Unlock()
		return nil
	}

	r.started = false
	conns := r.conns
	r.conns = nil
	watcher := r.watcher
	r.watcher = nil

	if err := r.adv.Stop(); err != nil {
		r.logger.Debug().Err(err).Msg("Stopping advertisement failed")
	}

	events := r.events
	r.events = nil
	r.mu.Unlock()

	for addr, device := range conns {
		if err := device.Disconnect(); err != nil {
			r.logger.Debug().
				Err(err).
				Str("peer", addr).
				Msg("Disconnect failed during radio stop")
		}
	}

	if watcher != nil {
		watcher.Close()
	}

	close(events)

	r.logger.Info().Msg("BlueZ radio stopped")

	return nil
}

// handleConnectChange translates adapter connect callbacks into link
// events.
func (r *Radio) handleConnectChange(device ble.Device, connected bool) {
	addr := device.Address.String()

	r.mu.Lock()
	if r.conns != nil {
		if connected {
			r.conns[addr] = device
		} else {
			delete(r.conns, addr)
		}
	}
	r.mu.Unlock()

	kind := bluetooth.LinkDisconnected
	if connected {
		kind = bluetooth.LinkConnected
	}

	r.emit(bluetooth.LinkEvent{Kind: kind, Addr: addr})
}

// emit delivers an event without ever blocking the stack's callback
// goroutine. A full channel drops the event; the transport's maintenance
// sweep recovers from missed disconnects via the connection timeout.
func (r *Radio) emit(ev bluetooth.LinkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.events == nil {
		return
	}

	select {
	case r.events <- ev:
	default:
		r.logger.Warn().
			Str("peer", ev.Addr).
			Str("kind", ev.Kind.String()).
			Msg("Link event dropped, consumer too slow")
	}
}

// registerServices exposes the HID-over-GATT profile plus the device
// information and battery services most hosts insist on. Input reports ride
// the boot characteristics, whose fixed layouts match the report payloads
// exactly.
func (r *Radio) registerServices() error {
	serviceUUID, err := ble.ParseUUID(r.cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("service uuid %q: %w", r.cfg.ServiceUUID, err)
	}

	hid := &ble.Service{
		UUID: serviceUUID,
		Characteristics: []ble.CharacteristicConfig{
			{
				UUID:  ble.CharacteristicUUIDHIDInformation,
				Value: hidInformation,
				Flags: ble.CharacteristicReadPermission,
			},
			{
				UUID:  ble.CharacteristicUUIDReportMap,
				Value: r.reportMap,
				Flags: ble.CharacteristicReadPermission,
			},
			{
				UUID:  ble.CharacteristicUUIDHIDControlPoint,
				Flags: ble.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(_ ble.Connection, _ int, value []byte) {
					r.handleControlPoint(value)
				},
			},
			{
				UUID:  ble.CharacteristicUUIDProtocolMode,
				Value: []byte{protocolModeReport},
				Flags: ble.CharacteristicReadPermission | ble.CharacteristicWriteWithoutResponsePermission,
			},
			{
				Handle: &r.kbChar,
				UUID:   ble.CharacteristicUUIDBootKeyboardInputReport,
				Flags:  ble.CharacteristicReadPermission | ble.CharacteristicNotifyPermission,
			},
			{
				UUID:  ble.CharacteristicUUIDBootKeyboardOutputReport,
				Flags: ble.CharacteristicReadPermission | ble.CharacteristicWritePermission | ble.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(_ ble.Connection, _ int, value []byte) {
					r.handleKeyboardOutput(value)
				},
			},
			{
				Handle: &r.mouseChar,
				UUID:   ble.CharacteristicUUIDBootMouseInputReport,
				Flags:  ble.CharacteristicReadPermission | ble.CharacteristicNotifyPermission,
			},
		},
	}

	if err := r.adapter.AddService(hid); err != nil {
		return fmt.Errorf("hid service: %w", err)
	}

	deviceInfo := &ble.Service{
		UUID: ble.ServiceUUIDDeviceInformation,
		Characteristics: []ble.CharacteristicConfig{
			{
				UUID:  ble.CharacteristicUUIDManufacturerNameString,
				Value: []byte("OpenKVM"),
				Flags: ble.CharacteristicReadPermission,
			},
			{
				UUID:  ble.CharacteristicUUIDPnPID,
				Value: pnpID,
				Flags: ble.CharacteristicReadPermission,
			},
		},
	}

	if err := r.adapter.AddService(deviceInfo); err != nil {
		return fmt.Errorf("device information service: %w", err)
	}

	battery := &ble.Service{
		UUID: ble.ServiceUUIDBattery,
		Characteristics: []ble.CharacteristicConfig{
			{
				UUID:  ble.CharacteristicUUIDBatteryLevel,
				Value: []byte{100},
				Flags: ble.CharacteristicReadPermission | ble.CharacteristicNotifyPermission,
			},
		},
	}

	if err := r.adapter.AddService(battery); err != nil {
		return fmt.Errorf("battery service: %w", err)
	}

	return nil
}

func (r *Radio) configureAdvertisement() error {
	serviceUUID, err := ble.ParseUUID(r.cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("service uuid %q: %w", r.cfg.ServiceUUID, err)
	}

	r.adv = r.adapter.DefaultAdvertisement()

	return r.adv.Configure(ble.AdvertisementOptions{
		LocalName:    r.cfg.DeviceName,
		ServiceUUIDs: []ble.UUID{serviceUUID},
		Interval:     ble.NewDuration(r.cfg.AdvertisingInterval()),
	})
}

// handleControlPoint reacts to host suspend/resume commands. Input capture
// keeps running; hosts drop back in with the same session.
func (r *Radio) handleControlPoint(value []byte) {
	if len(value) == 0 {
		return
	}

	r.logger.Debug().
		Uint8("command", value[0]).
		Msg("HID control point written")
}

// handleKeyboardOutput receives LED state from the host. There is nothing
// to light up, but logging it helps diagnose hosts that believe the remote
// keyboard owns lock-key state.
func (r *Radio) handleKeyboardOutput(value []byte) {
	if len(value) == 0 {
		return
	}

	r.logger.Debug().
		Uint8("leds", value[0]).
		Msg("Keyboard LED report received")
}
