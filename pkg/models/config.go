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

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/openkvm/keywave/pkg/logger"
)

// Config is the complete keywaved configuration. It is loaded once at
// startup, validated as a whole, and treated as immutable for the lifetime
// of the session. Out-of-range values are rejected, never clamped.
type Config struct {
	// Input capture.
	PollingIntervalMs int     `json:"polling_interval_ms"`
	MouseSensitivity  float64 `json:"mouse_sensitivity"`
	DeadZoneThreshold int     `json:"dead_zone_threshold"`
	InputRateLimit    int     `json:"input_rate_limit"` // max coalesced motion flushes per second
	InputFallback     bool    `json:"input_fallback"`   // fall back to cursor polling when the hook fails

	// Report builder.
	ReportRate         int   `json:"report_rate"` // flushes per second
	Batching           bool  `json:"batching"`
	BatchSizeLimit     int   `json:"batch_size_limit"`
	Compression        bool  `json:"compression"` // suppress consecutive identical reports
	KeyboardReportID   uint8 `json:"keyboard_report_id"`
	MouseReportID      uint8 `json:"mouse_report_id"`
	KeyboardBufferSize int   `json:"keyboard_buffer_size"` // simultaneous non-modifier keys per report

	// Bluetooth transport.
	DeviceName            string `json:"device_name"`
	ServiceUUID           string `json:"service_uuid"`
	AdvertisingIntervalMs int    `json:"advertising_interval_ms"`
	AutoReconnect         bool   `json:"auto_reconnect"`
	ConnectionTimeoutMs   int    `json:"connection_timeout_ms"`

	// Per-peer circuit breaker.
	BreakerFailureThreshold    int `json:"breaker_failure_threshold"`
	BreakerRecoveryTimeoutSec  int `json:"breaker_recovery_timeout_sec"`
	BreakerHalfOpenMaxAttempts int `json:"breaker_half_open_max_attempts"`

	// Security gate.
	AllowedAddresses      []string `json:"allowed_addresses,omitempty"`
	BlockedAddresses      []string `json:"blocked_addresses,omitempty"`
	RequireAuthentication bool     `json:"require_authentication"`
	RequireEncryption     bool     `json:"require_encryption"`

	// Status API. Empty disables the listener.
	ListenAddr string `json:"listen_addr,omitempty"`

	Logging *logger.Config `json:"logging,omitempty"`
}

// hidServiceUUID is the Bluetooth SIG Human Interface Device service.
const hidServiceUUID = "00001812-0000-1000-8000-00805f9b34fb"

// DefaultConfig returns the configuration keywaved ships with.
func DefaultConfig() *Config {
	return &Config{
		PollingIntervalMs:          8,
		MouseSensitivity:           1.0,
		DeadZoneThreshold:          1,
		InputRateLimit:             125,
		InputFallback:              true,
		ReportRate:                 60,
		Batching:                   true,
		BatchSizeLimit:             16,
		Compression:                true,
		KeyboardReportID:           1,
		MouseReportID:              2,
		KeyboardBufferSize:         6,
		DeviceName:                 "Keywave Input",
		ServiceUUID:                hidServiceUUID,
		AdvertisingIntervalMs:      150,
		AutoReconnect:              true,
		ConnectionTimeoutMs:        10000,
		BreakerFailureThreshold:    5,
		BreakerRecoveryTimeoutSec:  30,
		BreakerHalfOpenMaxAttempts: 3,
		RequireAuthentication:      true,
		RequireEncryption:          true,
		ListenAddr:                 "127.0.0.1:8590",
	}
}

// Validate checks every field against its permitted range. A configuration
// that fails validation must abort startup.
func (c *Config) Validate() error {
	if c.PollingIntervalMs < 1 || c.PollingIntervalMs > 1000 {
		return fmt.Errorf("polling_interval_ms %d out of range [1,1000]", c.PollingIntervalMs)
	}

	if c.MouseSensitivity < 0.05 || c.MouseSensitivity > 10 {
		return fmt.Errorf("mouse_sensitivity %.2f out of range [0.05,10]", c.MouseSensitivity)
	}

	if c.DeadZoneThreshold < 0 || c.DeadZoneThreshold > 64 {
		return fmt.Errorf("dead_zone_threshold %d out of range [0,64]", c.DeadZoneThreshold)
	}

	if c.InputRateLimit < 1 || c.InputRateLimit > 1000 {
		return fmt.Errorf("input_rate_limit %d out of range [1,1000]", c.InputRateLimit)
	}

	if c.ReportRate < 1 || c.ReportRate > 1000 {
		return fmt.Errorf("report_rate %d out of range [1,1000]", c.ReportRate)
	}

	if c.Batching && (c.BatchSizeLimit < 1 || c.BatchSizeLimit > 128) {
		return fmt.Errorf("batch_size_limit %d out of range [1,128]", c.BatchSizeLimit)
	}

	if err := c.validateReportIDs(); err != nil {
		return err
	}

	if c.KeyboardBufferSize < 1 || c.KeyboardBufferSize > 16 {
		return fmt.Errorf("keyboard_buffer_size %d out of range [1,16]", c.KeyboardBufferSize)
	}

	if err := c.validateTransport(); err != nil {
		return err
	}

	if err := c.validateBreaker(); err != nil {
		return err
	}

	return c.validateAddressLists()
}

func (c *Config) validateReportIDs() error {
	// Report ID 0 is reserved by the HID spec.
	if c.KeyboardReportID == 0 {
		return fmt.Errorf("keyboard_report_id must be 1-255")
	}

	if c.MouseReportID == 0 {
		return fmt.Errorf("mouse_report_id must be 1-255")
	}

	if c.KeyboardReportID == c.MouseReportID {
		return fmt.Errorf("keyboard_report_id and mouse_report_id must differ, both are %d", c.KeyboardReportID)
	}

	return nil
}

func (c *Config) validateTransport() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name is required")
	}

	if len(c.DeviceName) > 64 {
		return fmt.Errorf("device_name exceeds 64 bytes")
	}

	if _, err := uuid.Parse(c.ServiceUUID); err != nil {
		return fmt.Errorf("service_uuid %q: %w", c.ServiceUUID, err)
	}

	// Bluetooth Core limits the advertising interval to 20ms-10.24s.
	if c.AdvertisingIntervalMs < 20 || c.AdvertisingIntervalMs > 10240 {
		return fmt.Errorf("advertising_interval_ms %d out of range [20,10240]", c.AdvertisingIntervalMs)
	}

	if c.ConnectionTimeoutMs < 100 || c.ConnectionTimeoutMs > 120000 {
		return fmt.Errorf("connection_timeout_ms %d out of range [100,120000]", c.ConnectionTimeoutMs)
	}

	return nil
}

func (c *Config) validateBreaker() error {
	if c.BreakerFailureThreshold < 1 || c.BreakerFailureThreshold > 100 {
		return fmt.Errorf("breaker_failure_threshold %d out of range [1,100]", c.BreakerFailureThreshold)
	}

	if c.BreakerRecoveryTimeoutSec < 1 || c.BreakerRecoveryTimeoutSec > 3600 {
		return fmt.Errorf("breaker_recovery_timeout_sec %d out of range [1,3600]", c.BreakerRecoveryTimeoutSec)
	}

	if c.BreakerHalfOpenMaxAttempts < 1 || c.BreakerHalfOpenMaxAttempts > 10 {
		return fmt.Errorf("breaker_half_open_max_attempts %d out of range [1,10]", c.BreakerHalfOpenMaxAttempts)
	}

	return nil
}

func (c *Config) validateAddressLists() error {
	for _, addr := range c.AllowedAddresses {
		if _, err := net.ParseMAC(addr); err != nil {
			return fmt.Errorf("allowed_addresses entry %q: %w", addr, err)
		}
	}

	for _, addr := range c.BlockedAddresses {
		if _, err := net.ParseMAC(addr); err != nil {
			return fmt.Errorf("blocked_addresses entry %q: %w", addr, err)
		}
	}

	return nil
}

// PollingInterval returns the fallback cursor poll period.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMs) * time.Millisecond
}

// ReportInterval returns the builder flush period.
func (c *Config) ReportInterval() time.Duration {
	return time.Second / time.Duration(c.ReportRate)
}

// CoalesceWindow returns the period over which the capture engine sums
// motion events before forwarding them.
func (c *Config) CoalesceWindow() time.Duration {
	return time.Second / time.Duration(c.InputRateLimit)
}

// ConnectionTimeout returns how long a peer may stay in a pending
// connection state before the attempt is failed.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

// AdvertisingInterval returns the BLE advertising interval.
func (c *Config) AdvertisingInterval() time.Duration {
	return time.Duration(c.AdvertisingIntervalMs) * time.Millisecond
}

// BreakerRecoveryTimeout returns how long an open breaker waits before
// admitting half-open probes.
func (c *Config) BreakerRecoveryTimeout() time.Duration {
	return time.Duration(c.BreakerRecoveryTimeoutSec) * time.Second
}
