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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "polling interval zero",
			mutate:  func(c *Config) { c.PollingIntervalMs = 0 },
			wantErr: "polling_interval_ms",
		},
		{
			name:    "polling interval too large",
			mutate:  func(c *Config) { c.PollingIntervalMs = 1001 },
			wantErr: "polling_interval_ms",
		},
		{
			name:    "sensitivity below minimum",
			mutate:  func(c *Config) { c.MouseSensitivity = 0.01 },
			wantErr: "mouse_sensitivity",
		},
		{
			name:    "sensitivity above maximum",
			mutate:  func(c *Config) { c.MouseSensitivity = 11 },
			wantErr: "mouse_sensitivity",
		},
		{
			name:    "negative dead zone",
			mutate:  func(c *Config) { c.DeadZoneThreshold = -1 },
			wantErr: "dead_zone_threshold",
		},
		{
			name:    "rate limit zero",
			mutate:  func(c *Config) { c.InputRateLimit = 0 },
			wantErr: "input_rate_limit",
		},
		{
			name:    "report rate zero",
			mutate:  func(c *Config) { c.ReportRate = 0 },
			wantErr: "report_rate",
		},
		{
			name:    "batch size zero with batching enabled",
			mutate:  func(c *Config) { c.Batching = true; c.BatchSizeLimit = 0 },
			wantErr: "batch_size_limit",
		},
		{
			name:    "keyboard report id zero",
			mutate:  func(c *Config) { c.KeyboardReportID = 0 },
			wantErr: "keyboard_report_id",
		},
		{
			name:    "mouse report id zero",
			mutate:  func(c *Config) { c.MouseReportID = 0 },
			wantErr: "mouse_report_id",
		},
		{
			name:    "report ids collide",
			mutate:  func(c *Config) { c.KeyboardReportID = 3; c.MouseReportID = 3 },
			wantErr: "must differ",
		},
		{
			name:    "keyboard buffer too large",
			mutate:  func(c *Config) { c.KeyboardBufferSize = 17 },
			wantErr: "keyboard_buffer_size",
		},
		{
			name:    "empty device name",
			mutate:  func(c *Config) { c.DeviceName = "" },
			wantErr: "device_name",
		},
		{
			name:    "malformed service uuid",
			mutate:  func(c *Config) { c.ServiceUUID = "not-a-uuid" },
			wantErr: "service_uuid",
		},
		{
			name:    "advertising interval below bluetooth minimum",
			mutate:  func(c *Config) { c.AdvertisingIntervalMs = 10 },
			wantErr: "advertising_interval_ms",
		},
		{
			name:    "connection timeout too small",
			mutate:  func(c *Config) { c.ConnectionTimeoutMs = 50 },
			wantErr: "connection_timeout_ms",
		},
		{
			name:    "breaker threshold zero",
			mutate:  func(c *Config) { c.BreakerFailureThreshold = 0 },
			wantErr: "breaker_failure_threshold",
		},
		{
			name:    "breaker recovery zero",
			mutate:  func(c *Config) { c.BreakerRecoveryTimeoutSec = 0 },
			wantErr: "breaker_recovery_timeout_sec",
		},
		{
			name:    "breaker half-open attempts zero",
			mutate:  func(c *Config) { c.BreakerHalfOpenMaxAttempts = 0 },
			wantErr: "breaker_half_open_max_attempts",
		},
		{
			name:    "malformed allow list entry",
			mutate:  func(c *Config) { c.AllowedAddresses = []string{"zz:zz"} },
			wantErr: "allowed_addresses",
		},
		{
			name:    "malformed block list entry",
			mutate:  func(c *Config) { c.BlockedAddresses = []string{"AA:BB"} },
			wantErr: "blocked_addresses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigAcceptsValidAddressLists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedAddresses = []string{"AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66"}
	cfg.BlockedAddresses = []string{"aa:bb:cc:dd:ee:01"}

	require.NoError(t, cfg.Validate())
}

func TestConfigDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReportRate = 50
	cfg.PollingIntervalMs = 20
	cfg.ConnectionTimeoutMs = 5000
	cfg.BreakerRecoveryTimeoutSec = 45

	assert.Equal(t, 20*time.Millisecond, cfg.ReportInterval())
	assert.Equal(t, 20*time.Millisecond, cfg.PollingInterval())
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, 150*time.Millisecond, cfg.AdvertisingInterval())
	assert.Equal(t, 45*time.Second, cfg.BreakerRecoveryTimeout())
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "key_down", KindKeyDown.String())
	assert.Equal(t, "mouse_wheel", KindMouseWheel.String())
	assert.Equal(t, "unknown", EventKind(99).String())
	assert.True(t, KindKeyUp.IsKey())
	assert.False(t, KindMouseMove.IsKey())
}

func TestConnectionStateReady(t *testing.T) {
	assert.True(t, PeerConnected.Ready())
	assert.True(t, PeerPaired.Ready())
	assert.False(t, PeerPairing.Ready())
	assert.False(t, PeerDisconnected.Ready())
	assert.False(t, PeerFailed.Ready())
}
