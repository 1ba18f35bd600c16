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

// Package cli implements the interactive status monitor for keywaved. It
// dials the daemon's WebSocket event feed, seeds itself from the REST
// snapshot, and renders service, peer, and breaker state live.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/openkvm/keywave/pkg/models"
)

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPink       = "#FF79C6"
	draculaPurple     = "#BD93F9"
	draculaRed        = "#FF5555"
	draculaYellow     = "#F1FA8C"
	draculaComment    = "#6272A4"
)

const (
	eventBacklog = 10
	redialDelay  = 2 * time.Second
	clockPeriod  = time.Second
	appPadding   = 2
)

// Styling with lipgloss.
func newStyles() monitorStyles {
	return monitorStyles{
		title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaPink)).
			Bold(true),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaYellow)),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaForeground)),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
		online: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaGreen)),
		warn: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaOrange)),
		fault: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaRed)).
			Bold(true),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
		app: lipgloss.NewStyle().
			Padding(1, appPadding).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(draculaCyan)).
			Foreground(lipgloss.Color(draculaForeground)),
	}
}

func initialModel(addr string) *model {
	sp := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan))),
	)

	return &model{
		addr:   addr,
		link:   linkDialing,
		spin:   sp,
		events: make([]models.StatusEvent, 0, eventBacklog),
		styles: newStyles(),
	}
}

func (m *model) statusURL() string {
	return fmt.Sprintf("http://%s/api/status", m.addr)
}

func (m *model) eventsURL() string {
	return fmt.Sprintf("ws://%s/api/events", m.addr)
}

// connect dials the event feed and fetches the snapshot that seeds the view.
// The feed is dialed first so no event published between the two calls is
// lost.
func (m *model) connect() tea.Cmd {
	statusURL, eventsURL := m.statusURL(), m.eventsURL()

	return func() tea.Msg {
		f, err := dialFeed(eventsURL)
		if err != nil {
			return feedDownMsg{err: err}
		}

		status, err := fetchStatus(statusURL)
		if err != nil {
			f.Close()

			return feedDownMsg{err: err}
		}

		return feedReadyMsg{feed: f, status: status}
	}
}

// refreshStatus re-fetches the snapshot. Service events carry only the new
// state, so a daemon restart needs a fresh start time.
func (m *model) refreshStatus() tea.Cmd {
	url := m.statusURL()

	return func() tea.Msg {
		status, err := fetchStatus(url)
		if err != nil {
			return nil
		}

		return statusMsg(status)
	}
}

// waitForEvent blocks on the next feed event.
func waitForEvent(f *feed) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-f.events
		if !ok {
			return feedDownMsg{err: f.Err()}
		}

		return feedEventMsg(ev)
	}
}

func redialAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return redialMsg(t)
	})
}

func clockTick() tea.Cmd {
	return tea.Tick(clockPeriod, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.connect(), m.spin.Tick, clockTick())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		return m, nil
	case spinner.TickMsg:
		if m.link == linkOnline {
			return m, nil // spinner idles while the feed is up
		}

		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)

		return m, cmd
	case clockMsg:
		return m, clockTick()
	case feedReadyMsg:
		return m.handleFeedReady(msg)
	case feedEventMsg:
		return m.handleFeedEvent(msg)
	case feedDownMsg:
		return m.handleFeedDown(msg)
	case statusMsg:
		return m.handleStatus(msg)
	case redialMsg:
		return m.handleRedial()
	}

	return m, nil
}

func (m *model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "q":
		return m.quit()
	case "c":
		m.events = m.events[:0]
	case "r":
		if m.link == linkWaiting { // skip the rest of the redial delay
			m.link = linkDialing

			return m, tea.Batch(m.connect(), m.spin.Tick)
		}
	}

	return m, nil
}

func (m *model) quit() (tea.Model, tea.Cmd) {
	if m.feed != nil {
		m.feed.Close()
	}

	return m, tea.Quit
}

func (m *model) handleFeedReady(msg feedReadyMsg) (tea.Model, tea.Cmd) {
	m.feed = msg.feed
	m.link = linkOnline
	m.linkErr = nil

	// The snapshot is authoritative on a fresh connection; peers that
	// vanished while the monitor was offline must not linger.
	m.service = msg.status
	m.peers = m.peers[:0]

	for i := range msg.status.Peers {
		m.upsertPeer(msg.status.Peers[i])
	}

	return m, waitForEvent(m.feed)
}

func (m *model) handleFeedEvent(msg feedEventMsg) (tea.Model, tea.Cmd) {
	ev := models.StatusEvent(msg)

	cmds := []tea.Cmd{waitForEvent(m.feed)}

	switch ev.Kind {
	case models.StatusServiceChange:
		wasRunning := m.service.State == models.ServiceRunning
		m.service.State = ev.Service

		if ev.Service == models.ServiceRunning && !wasRunning {
			cmds = append(cmds, m.refreshStatus())
		}
	case models.StatusPeerChange:
		if ev.Peer != nil {
			m.upsertPeer(*ev.Peer)
		}
	case models.StatusWarning:
	}

	m.logEvent(ev)

	return m, tea.Batch(cmds...)
}

func (m *model) handleFeedDown(msg feedDownMsg) (tea.Model, tea.Cmd) {
	if m.feed != nil {
		m.feed.Close()
		m.feed = nil
	}

	if m.link == linkWaiting { // a redial is already scheduled
		return m, nil
	}

	m.link = linkWaiting
	m.linkErr = msg.err

	return m, tea.Batch(redialAfter(redialDelay), m.spin.Tick)
}

func (m *model) handleStatus(msg statusMsg) (tea.Model, tea.Cmd) {
	m.service = models.ServiceStatus(msg)

	for i := range msg.Peers {
		m.upsertPeer(msg.Peers[i])
	}

	return m, nil
}

func (m *model) handleRedial() (tea.Model, tea.Cmd) {
	if m.link != linkWaiting { // a manual retry already went out
		return m, nil
	}

	m.link = linkDialing

	return m, tea.Batch(m.connect(), m.spin.Tick)
}

func (m *model) upsertPeer(peer models.PeerStatus) {
	for i := range m.peers {
		if m.peers[i].Address == peer.Address {
			m.peers[i] = peer

			return
		}
	}

	m.peers = append(m.peers, peer)
}

// logEvent appends to the recent-events pane, dropping the oldest line once
// the backlog is full.
func (m *model) logEvent(ev models.StatusEvent) {
	if len(m.events) == eventBacklog {
		copy(m.events, m.events[1:])
		m.events = m.events[:eventBacklog-1]
	}

	m.events = append(m.events, ev)
}

// uptime recomputes from the daemon's start time so the line keeps moving
// between events.
func (m *model) uptime() string {
	if m.service.State != models.ServiceRunning || m.service.StartedAt.IsZero() {
		return ""
	}

	return time.Since(m.service.StartedAt).Round(time.Second).String()
}

func (m *model) View() string {
	var content strings.Builder

	styles := m.styles

	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		styles.title.Render("Keywave Monitor"),
		styles.muted.Render("  "+m.addr),
	)

	content.WriteString(title + "\n\n")
	content.WriteString(m.renderLink(&styles) + "\n\n")

	if m.link == linkOnline || m.service.State != "" {
		content.WriteString(m.renderService(&styles) + "\n\n")
		content.WriteString(m.renderPeers(&styles) + "\n\n")
		content.WriteString(m.renderEvents(&styles) + "\n\n")
	}

	content.WriteString(styles.help.Render("c → clear events | r → retry now | q/Esc → quit"))

	return styles.app.Align(lipgloss.Left).Render(content.String())
}

func (m *model) renderLink(styles *monitorStyles) string {
	switch m.link {
	case linkOnline:
		return styles.online.Render("● connected")
	case linkDialing:
		return m.spin.View() + styles.muted.Render(" connecting")
	default: // linkWaiting
		line := m.spin.View() + styles.warn.Render(" reconnecting")
		if m.linkErr != nil {
			line += styles.muted.Render("  " + m.linkErr.Error())
		}

		return line
	}
}

func (m *model) renderService(styles *monitorStyles) string {
	var content strings.Builder

	content.WriteString(styles.label.Render("Service") + "\n")
	content.WriteString("  state        " + m.serviceStateStyle(styles).Render(string(m.service.State)) + "\n")

	if m.service.DeviceName != "" {
		content.WriteString("  device       " + styles.value.Render(m.service.DeviceName) + "\n")
	}

	if m.service.CaptureSource != "" {
		content.WriteString("  capture      " + styles.value.Render(m.service.CaptureSource) + "\n")
	}

	advertising := "no"
	if m.service.Advertising {
		advertising = "yes"
	}

	content.WriteString("  advertising  " + styles.value.Render(advertising))

	if uptime := m.uptime(); uptime != "" {
		content.WriteString("\n  uptime       " + styles.value.Render(uptime))
	}

	if m.service.LastError != "" {
		content.WriteString("\n  last error   " + styles.fault.Render(m.service.LastError))
	}

	return content.String()
}

func (m *model) serviceStateStyle(styles *monitorStyles) lipgloss.Style {
	switch m.service.State {
	case models.ServiceRunning:
		return styles.online
	case models.ServiceError:
		return styles.fault
	case models.ServiceStarting, models.ServiceStopping:
		return styles.warn
	default:
		return styles.muted
	}
}

func (m *model) renderPeers(styles *monitorStyles) string {
	var content strings.Builder

	content.WriteString(styles.label.Render("Peers") + "\n")

	if len(m.peers) == 0 {
		content.WriteString(styles.muted.Render("  no hosts have connected"))

		return content.String()
	}

	header := fmt.Sprintf("  %-19s %-15s %-11s %-11s %s", "ADDRESS", "STATE", "LINK", "BREAKER", "SENT")
	content.WriteString(styles.muted.Render(header))

	for i := range m.peers {
		peer := &m.peers[i]

		content.WriteString("\n  ")
		content.WriteString(styles.value.Render(fmt.Sprintf("%-19s", peer.Address)))
		content.WriteString(peerStateStyle(peer.State, styles).Render(fmt.Sprintf("%-15s", string(peer.State))))
		content.WriteString(styles.value.Render(fmt.Sprintf("%-11s", linkLabel(peer))))
		content.WriteString(breakerStyle(peer.Breaker, styles).Render(fmt.Sprintf("%-11s", string(peer.Breaker))))
		content.WriteString(styles.value.Render(fmt.Sprintf("%d", peer.ReportsSent)))
	}

	return content.String()
}

// linkLabel folds the security flags into one column.
func linkLabel(peer *models.PeerStatus) string {
	switch {
	case peer.Bonded:
		return "bonded"
	case peer.Encrypted:
		return "encrypted"
	default:
		return "open"
	}
}

func peerStateStyle(state models.ConnectionState, styles *monitorStyles) lipgloss.Style {
	switch {
	case state.Ready():
		return styles.online
	case state == models.PeerFailed:
		return styles.fault
	case state == models.PeerConnecting || state == models.PeerPairing:
		return styles.warn
	default:
		return styles.muted
	}
}

func breakerStyle(state models.BreakerState, styles *monitorStyles) lipgloss.Style {
	switch state {
	case models.BreakerOpen:
		return styles.fault
	case models.BreakerHalfOpen:
		return styles.warn
	default:
		return styles.online
	}
}

func (m *model) renderEvents(styles *monitorStyles) string {
	var content strings.Builder

	content.WriteString(styles.label.Render("Recent events"))

	if len(m.events) == 0 {
		content.WriteString("\n" + styles.muted.Render("  none yet"))

		return content.String()
	}

	for i := range m.events {
		ev := &m.events[i]

		line := fmt.Sprintf("  %s  %s", ev.Timestamp.Format("15:04:05"), eventLine(ev))
		content.WriteString("\n" + eventStyle(ev, styles).Render(line))
	}

	return content.String()
}

// eventLine renders one feed event as a single log line.
func eventLine(ev *models.StatusEvent) string {
	switch ev.Kind {
	case models.StatusServiceChange:
		return "service " + string(ev.Service)
	case models.StatusPeerChange:
		if ev.Peer == nil {
			return "peer update"
		}

		return fmt.Sprintf("%s %s", ev.Peer.Address, ev.Peer.State)
	default:
		return ev.Message
	}
}

func eventStyle(ev *models.StatusEvent, styles *monitorStyles) lipgloss.Style {
	if ev.Kind == models.StatusWarning {
		return styles.warn
	}

	return styles.value
}

// Run starts the interactive status monitor against the given daemon address.
func Run(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errEmptyAddr
	}

	p := tea.NewProgram(initialModel(addr), tea.WithAltScreen())
	_, err := p.Run()

	return err
}
