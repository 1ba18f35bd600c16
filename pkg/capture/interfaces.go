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

// Package capture normalizes OS input into the pipeline's event model and
// applies the capture-side policy: dead zone, sensitivity and coalescing.
package capture

//go:generate mockgen -destination=mock_capture.go -package=capture github.com/openkvm/keywave/pkg/capture CaptureSource

import (
	"context"

	"github.com/openkvm/keywave/pkg/models"
)

// CaptureSource produces normalized input events from one OS capability.
// The engine selects a source once at startup; sources never apply policy.
type CaptureSource interface {
	// Name identifies the source in logs and status reporting.
	Name() string
	// Start begins producing events. The returned channel is closed when
	// the source stops. A stopped source may be started again.
	Start(ctx context.Context) (<-chan models.InputEvent, error)
	// Stop releases the OS capability. Idempotent and safe to call while
	// events are in flight.
	Stop() error
}
