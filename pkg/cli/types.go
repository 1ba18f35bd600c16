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
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/openkvm/keywave/pkg/models"
)

// linkState tracks the monitor's own connection to the daemon feed.
type linkState int

const (
	linkDialing linkState = iota
	linkOnline
	linkWaiting // feed lost, sitting out the redial delay
)

// monitorStyles holds the lipgloss styles used by the monitor views.
type monitorStyles struct {
	title, label, value, help, online, warn, fault, muted, app lipgloss.Style
}

// model is the bubbletea model backing the status monitor.
type model struct {
	addr    string
	link    linkState
	linkErr error
	feed    *feed

	service models.ServiceStatus
	peers   []models.PeerStatus
	events  []models.StatusEvent

	spin   spinner.Model
	width  int
	height int
	styles monitorStyles
}

// Messages produced by the feed commands and timers.
type (
	// feedReadyMsg reports a successful dial plus the snapshot that seeds
	// the view.
	feedReadyMsg struct {
		feed   *feed
		status models.ServiceStatus
	}

	// feedEventMsg is one live event off the daemon feed.
	feedEventMsg models.StatusEvent

	// feedDownMsg reports that the feed dial failed or the pump stopped.
	feedDownMsg struct {
		err error
	}

	// statusMsg is a mid-session snapshot refresh.
	statusMsg models.ServiceStatus

	// redialMsg fires when the redial delay has elapsed.
	redialMsg time.Time

	// clockMsg fires once a second so the uptime line keeps moving.
	clockMsg time.Time
)
