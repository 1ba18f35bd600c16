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

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkvm/keywave/pkg/logger"
)

const testTimeout = 2 * time.Second

type fakeService struct {
	startErr error

	started chan struct{}
	stopped chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (f *fakeService) Start(_ context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}

	close(f.started)

	return nil
}

func (f *fakeService) Stop(_ context.Context) error {
	close(f.stopped)

	return nil
}

type fakeHTTPServer struct {
	startErr error

	listening chan struct{}
	release   chan struct{}

	mu        sync.Mutex
	addr      string
	shutdowns int
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{
		listening: make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (f *fakeHTTPServer) Start(addr string) error {
	f.mu.Lock()
	f.addr = addr
	f.mu.Unlock()

	if f.startErr != nil {
		return f.startErr
	}

	close(f.listening)
	<-f.release

	return nil
}

func (f *fakeHTTPServer) Shutdown(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shutdowns == 0 {
		close(f.release)
	}

	f.shutdowns++

	return nil
}

func (f *fakeHTTPServer) shutdownCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.shutdowns
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitResult(t *testing.T, done chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for RunServer to return")

		return nil
	}
}

func TestRunServerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newFakeService()
	srv := newFakeHTTPServer()

	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{
			Service:    svc,
			HTTPServer: srv,
			ListenAddr: "127.0.0.1:8590",
			Logger:     logger.NewTestLogger(),
		})
	}()

	waitSignal(t, svc.started, "service start")
	waitSignal(t, srv.listening, "status listener")

	cancel()

	require.NoError(t, waitResult(t, done))
	waitSignal(t, svc.stopped, "service stop")
	assert.Equal(t, 1, srv.shutdownCalls())
}

func TestRunServerWithoutAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newFakeService()

	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{
			Service: svc,
			Logger:  logger.NewTestLogger(),
		})
	}()

	waitSignal(t, svc.started, "service start")

	cancel()

	require.NoError(t, waitResult(t, done))
	waitSignal(t, svc.stopped, "service stop")
}

func TestRunServerFailsWhenServiceStartFails(t *testing.T) {
	svc := newFakeService()
	svc.startErr = errors.New("event tap rejected")

	srv := newFakeHTTPServer()

	err := RunServer(context.Background(), &ServerOptions{
		Service:    svc,
		HTTPServer: srv,
		ListenAddr: "127.0.0.1:8590",
		Logger:     logger.NewTestLogger(),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "event tap rejected")

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Empty(t, srv.addr, "the listener must not come up when the service cannot start")
}

func TestRunServerStopsServiceWhenAPIDies(t *testing.T) {
	svc := newFakeService()

	srv := newFakeHTTPServer()
	srv.startErr = errors.New("listen tcp 127.0.0.1:8590: address already in use")

	err := RunServer(context.Background(), &ServerOptions{
		Service:    svc,
		HTTPServer: srv,
		ListenAddr: "127.0.0.1:8590",
		Logger:     logger.NewTestLogger(),
	})

	require.ErrorIs(t, err, errAPIStopped)
	assert.Contains(t, err.Error(), "address already in use")
	waitSignal(t, svc.stopped, "service stop")
}

func TestRunServerRequiresService(t *testing.T) {
	assert.ErrorIs(t, RunServer(context.Background(), nil), errNoService)
	assert.ErrorIs(t, RunServer(context.Background(), &ServerOptions{}), errNoService)
}
