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

// Package lifecycle manages service startup and signal-driven shutdown for
// the keywave daemon.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkvm/keywave/pkg/logger"
)

const defaultShutdownTimeout = 15 * time.Second

var (
	errNoService  = errors.New("lifecycle requires a service")
	errAPIStopped = errors.New("status API stopped unexpectedly")
)

// Service is a component with a managed start/stop lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HTTPServer is the optional status listener run alongside the service.
type HTTPServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// ServerOptions holds everything RunServer manages.
type ServerOptions struct {
	Service         Service
	HTTPServer      HTTPServer // served only when ListenAddr is set
	ListenAddr      string
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// RunServer runs the service until the context is canceled or a SIGINT or
// SIGTERM arrives, then stops the service and the status listener within the
// shutdown timeout. A dying status listener also brings the service down; a
// service that degrades internally stays up so it remains observable.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	if opts == nil || opts.Service == nil {
		return errNoService
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	apiErr := make(chan error, 1)

	if opts.HTTPServer != nil && opts.ListenAddr != "" {
		go func() {
			apiErr <- opts.HTTPServer.Start(opts.ListenAddr)
		}()
	}

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-apiErr:
		if err != nil {
			runErr = fmt.Errorf("%w: %w", errAPIStopped, err)
		} else {
			runErr = errAPIStopped
		}

		log.Error().Err(runErr).Msg("Stopping service after status API failure")
	}

	return errors.Join(runErr, shutdown(opts))
}

func shutdown(opts *ServerOptions) error {
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The service stops first so held keys are released while the link is
	// still up; the listener follows so monitors see the final state.
	stopErr := opts.Service.Stop(ctx)

	var apiErr error
	if opts.HTTPServer != nil && opts.ListenAddr != "" {
		apiErr = opts.HTTPServer.Shutdown(ctx)
	}

	return errors.Join(stopErr, apiErr)
}
