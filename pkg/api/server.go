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

// Package api provides the local HTTP status surface for keywaved: a JSON
// snapshot of the bridge and a WebSocket stream of status events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// StatusProvider is the bridge surface the API reads from.
type StatusProvider interface {
	Status() models.ServiceStatus
	Subscribe() (string, <-chan models.StatusEvent)
	Unsubscribe(id string)
}

// Server serves the status API on a local listener.
type Server struct {
	provider StatusProvider
	logger   logger.Logger
	router   *mux.Router

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates an API server bound to the given status provider.
func NewServer(provider StatusProvider, log logger.Logger) *Server {
	s := &Server{
		provider: provider,
		logger:   log,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.getStatus).Methods("GET")
	api.HandleFunc("/peers", s.getPeers).Methods("GET")
	api.HandleFunc("/events", s.streamEvents).Methods("GET")
}

// Start serves the API until Shutdown or a listener error. It blocks.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("Status API listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API: %w", err)
	}

	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

// getStatus returns the aggregate service snapshot.
func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	if err := s.encodeJSONResponse(w, s.provider.Status()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode status response")
	}
}

// getPeers returns the per-peer view of the snapshot.
func (s *Server) getPeers(w http.ResponseWriter, _ *http.Request) {
	if err := s.encodeJSONResponse(w, s.provider.Status().Peers); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode peers response")
	}
}

func (*Server) encodeJSONResponse(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return err
	}

	return nil
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
