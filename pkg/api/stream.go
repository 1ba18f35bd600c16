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

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openkvm/keywave/pkg/models"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
)

// The API binds to loopback; origin checks add nothing for a local tool.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamEvents upgrades the connection and streams status events. A new
// consumer first receives a replay of the current state as synthetic events,
// then the live feed.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("WebSocket upgrade failed")

		return
	}

	defer conn.Close()

	s.logger.Debug().
		Str("remote_addr", r.RemoteAddr).
		Msg("Status stream connected")

	id, events := s.provider.Subscribe()
	defer s.provider.Unsubscribe(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readUntilClose(conn, cancel)

	for _, ev := range snapshotEvents(s.provider.Status()) {
		if err := s.writeEvent(conn, ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(writeDeadline))

				return
			}

			if err := s.writeEvent(conn, ev); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug().
					Err(err).
					Str("remote_addr", r.RemoteAddr).
					Msg("Status stream ping failed")

				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev models.StatusEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))

	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug().Err(err).Msg("Status stream write failed")

		return err
	}

	return nil
}

// readUntilClose drains client frames so pings get answered and a closing
// client ends the stream promptly.
func (s *Server) readUntilClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("Status stream read error")
			}

			return
		}
	}
}

// snapshotEvents renders the current service state as a burst of events so
// a consumer starts from a complete picture without a separate snapshot
// request.
func snapshotEvents(status models.ServiceStatus) []models.StatusEvent {
	now := time.Now()

	events := make([]models.StatusEvent, 0, 1+len(status.Peers))
	events = append(events, models.StatusEvent{
		ID:        uuid.New().String(),
		Timestamp: now,
		Kind:      models.StatusServiceChange,
		Service:   status.State,
	})

	for i := range status.Peers {
		peer := status.Peers[i]
		events = append(events, models.StatusEvent{
			ID:        uuid.New().String(),
			Timestamp: now,
			Kind:      models.StatusPeerChange,
			Peer:      &peer,
		})
	}

	return events
}
