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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openkvm/keywave/pkg/models"
)

const (
	dialTimeout      = 5 * time.Second
	feedReadLimit    = 64 << 10
	feedReadTimeout  = 90 * time.Second // the daemon pings every 30s
	feedWriteTimeout = 10 * time.Second
	feedBuffer       = 16
)

var feedDialer = &websocket.Dialer{HandshakeTimeout: dialTimeout}

// feed is one WebSocket subscription to the daemon's event stream. The pump
// goroutine owns the connection reads and closes events when it stops.
type feed struct {
	conn   *websocket.Conn
	events chan models.StatusEvent
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// dialFeed connects to the daemon's event stream and starts the read pump.
func dialFeed(url string) (*feed, error) {
	conn, resp, err := feedDialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	f := &feed{
		conn:   conn,
		events: make(chan models.StatusEvent, feedBuffer),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(feedReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPingHandler(func(payload string) error {
		_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))

		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(feedWriteTimeout))
	})

	go f.pump()

	return f, nil
}

// pump reads events until the connection dies, then closes the event channel.
func (f *feed) pump() {
	defer close(f.events)

	for {
		var ev models.StatusEvent

		if err := f.conn.ReadJSON(&ev); err != nil {
			f.setErr(err)

			return
		}

		_ = f.conn.SetReadDeadline(time.Now().Add(feedReadTimeout))

		select {
		case f.events <- ev:
		case <-f.done:
			return
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (f *feed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)

		if f.conn != nil {
			_ = f.conn.Close()
		}
	})
}

// Err reports why the pump stopped.
func (f *feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.err
}

func (f *feed) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

// fetchStatus grabs the REST snapshot that seeds the monitor before live
// events take over.
func fetchStatus(url string) (models.ServiceStatus, error) {
	client := &http.Client{Timeout: dialTimeout}

	resp, err := client.Get(url)
	if err != nil {
		return models.ServiceStatus{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ServiceStatus{}, fmt.Errorf("%w: %s", errSnapshotStatus, resp.Status)
	}

	var status models.ServiceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return models.ServiceStatus{}, fmt.Errorf("decoding status: %w", err)
	}

	return status, nil
}
