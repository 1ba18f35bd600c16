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

package bluez

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/openkvm/keywave/pkg/bluetooth"
	"github.com/openkvm/keywave/pkg/logger"
)

const (
	bluezBus        = "org.bluez"
	deviceInterface = "org.bluez.Device1"
	pairMethod      = "org.bluez.Device1.Pair"

	propertiesChangedSignal = "org.freedesktop.DBus.Properties.PropertiesChanged"

	defaultAdapterID = "hci0"

	signalBuffer = 32
)

// linkFlags is the last known security state of one device path. BlueZ
// signals carry only the changed properties, so state accumulates here.
type linkFlags struct {
	paired bool
	bonded bool
}

// securityWatcher follows org.bluez.Device1 property changes on the system
// bus and turns pairing and bonding transitions into link security events.
// It also fronts the Pair method, which tinygo's GATT layer does not expose.
type securityWatcher struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	match   []dbus.MatchOption
	emit    func(bluetooth.LinkEvent)
	logger  logger.Logger
	done    chan struct{}

	mu    sync.Mutex
	links map[dbus.ObjectPath]linkFlags
}

func newSecurityWatcher(log logger.Logger, emit func(bluetooth.LinkEvent)) (*securityWatcher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	match := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceInterface),
	}

	if err := conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("subscribing to device properties: %w", err)
	}

	w := &securityWatcher{
		conn:    conn,
		signals: make(chan *dbus.Signal, signalBuffer),
		match:   match,
		emit:    emit,
		logger:  log,
		done:    make(chan struct{}),
		links:   make(map[dbus.ObjectPath]linkFlags),
	}

	conn.Signal(w.signals)

	go w.watch()

	return w, nil
}

// Pair asks BlueZ to pair with a connected peer. The call blocks until the
// exchange finishes or ctx expires; the resulting Paired/Bonded property
// changes arrive through the watcher either way.
func (w *securityWatcher) Pair(ctx context.Context, addr string) error {
	path := devicePath(defaultAdapterID, addr)
	obj := w.conn.Object(bluezBus, path)

	if call := obj.CallWithContext(ctx, pairMethod, 0); call.Err != nil {
		return fmt.Errorf("pairing %s: %w", addr, call.Err)
	}

	return nil
}

// Close detaches from the bus and waits for the watch goroutine. The shared
// system bus connection stays open for other users in the process.
func (w *securityWatcher) Close() {
	if err := w.conn.RemoveMatchSignal(w.match...); err != nil {
		w.logger.Debug().Err(err).Msg("Removing property match failed")
	}

	w.conn.RemoveSignal(w.signals)
	close(w.signals)
	<-w.done
}

func (w *securityWatcher) watch() {
	defer close(w.done)

	for sig := range w.signals {
		w.handleSignal(sig)
	}
}

func (w *securityWatcher) handleSignal(sig *dbus.Signal) {
	if sig.Name != propertiesChangedSignal || len(sig.Body) < 2 {
		return
	}

	iface, ok := sig.Body[0].(string)
	if !ok || iface != deviceInterface {
		return
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	addr, ok := pathToAddr(sig.Path)
	if !ok {
		return
	}

	// A dropped link invalidates the accumulated flags; the next
	// connection starts from scratch.
	if v, ok := changed["Connected"]; ok {
		if connected, ok := v.Value().(bool); ok && !connected {
			w.mu.Lock()
			delete(w.links, sig.Path)
			w.mu.Unlock()

			return
		}
	}

	w.mu.Lock()

	flags := w.links[sig.Path]
	touched := false

	if v, ok := changed["Paired"]; ok {
		if paired, ok := v.Value().(bool); ok {
			flags.paired = paired
			touched = true
		}
	}

	// Bonded appeared in BlueZ 5.65; older stacks never send it and the
	// encrypted flag alone carries the link state.
	if v, ok := changed["Bonded"]; ok {
		if bonded, ok := v.Value().(bool); ok {
			flags.bonded = bonded
			touched = true
		}
	}

	w.links[sig.Path] = flags
	w.mu.Unlock()

	if !touched {
		return
	}

	w.logger.Debug().
		Str("peer", addr).
		Bool("paired", flags.paired).
		Bool("bonded", flags.bonded).
		Msg("Link security changed")

	w.emit(bluetooth.LinkEvent{
		Kind:          bluetooth.LinkSecurityChanged,
		Addr:          addr,
		Authenticated: flags.paired,
		Encrypted:     flags.paired,
		Bonded:        flags.bonded,
	})
}

// devicePath builds the BlueZ object path for a peer address, e.g.
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapterID, addr string) dbus.ObjectPath {
	leaf := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")

	return dbus.ObjectPath("/org/bluez/" + adapterID + "/dev_" + leaf)
}

// pathToAddr recovers the peer address from a BlueZ device object path.
func pathToAddr(path dbus.ObjectPath) (string, bool) {
	s := string(path)

	i := strings.LastIndex(s, "/")
	if i < 0 {
		return "", false
	}

	leaf := s[i+1:]
	if !strings.HasPrefix(leaf, "dev_") {
		return "", false
	}

	addr := strings.ReplaceAll(strings.TrimPrefix(leaf, "dev_"), "_", ":")
	if _, err := net.ParseMAC(addr); err != nil {
		return "", false
	}

	return addr, true
}
