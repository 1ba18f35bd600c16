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

// Package security decides which peers may receive input reports.
package security

import (
	"errors"
	"net"
	"strings"

	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
)

// Deny reasons returned by Authorize. The transport matches on these with
// errors.Is to decide logging severity; none of them is fatal to the
// pipeline.
var (
	// ErrBlocked means the address is on the block list. The block list
	// always wins over the allow list.
	ErrBlocked = errors.New("peer address is blocked")
	// ErrNotAllowed means the allow list is non-empty and the address is
	// not on it.
	ErrNotAllowed = errors.New("peer address is not on the allow list")
	// ErrAuthenticationRequired means policy demands authentication and
	// the peer has not completed it.
	ErrAuthenticationRequired = errors.New("peer has not completed authentication")
	// ErrEncryptionRequired means policy demands an encrypted link and the
	// active link is unencrypted.
	ErrEncryptionRequired = errors.New("link is not encrypted")
)

// LinkState carries the security-relevant state of a peer link at the
// moment of evaluation. The transport rebuilds it from radio events; the
// gate never stores it.
type LinkState struct {
	Authenticated bool
	Encrypted     bool
}

// Gate evaluates peers against the session security policy. The policy is
// an immutable snapshot of the session configuration, so evaluation needs
// no locking. Decisions are never cached: the transport must call
// Authorize again on every connection attempt and whenever the link
// security state changes.
type Gate struct {
	allowed     map[string]struct{}
	blocked     map[string]struct{}
	requireAuth bool
	requireEnc  bool
	logger      logger.Logger
}

// NewGate builds a gate from the session configuration.
func NewGate(cfg *models.Config, log logger.Logger) *Gate {
	g := &Gate{
		allowed:     make(map[string]struct{}, len(cfg.AllowedAddresses)),
		blocked:     make(map[string]struct{}, len(cfg.BlockedAddresses)),
		requireAuth: cfg.RequireAuthentication,
		requireEnc:  cfg.RequireEncryption,
		logger:      log,
	}

	for _, addr := range cfg.AllowedAddresses {
		g.allowed[canonicalAddr(addr)] = struct{}{}
	}

	for _, addr := range cfg.BlockedAddresses {
		g.blocked[canonicalAddr(addr)] = struct{}{}
	}

	return g
}

// Authorize evaluates one peer. A nil return allows the peer; otherwise
// the error is one of the deny reasons above. Checks run in precedence
// order: block list, allow list, authentication, encryption.
func (g *Gate) Authorize(addr string, link LinkState) error {
	canonical := canonicalAddr(addr)

	if _, ok := g.blocked[canonical]; ok {
		g.logger.Warn().Str("peer", canonical).Msg("Denied: address on block list")
		return ErrBlocked
	}

	if len(g.allowed) > 0 {
		if _, ok := g.allowed[canonical]; !ok {
			g.logger.Warn().Str("peer", canonical).Msg("Denied: address not on allow list")
			return ErrNotAllowed
		}
	}

	if g.requireAuth && !link.Authenticated {
		g.logger.Debug().Str("peer", canonical).Msg("Denied: authentication incomplete")
		return ErrAuthenticationRequired
	}

	if g.requireEnc && !link.Encrypted {
		g.logger.Debug().Str("peer", canonical).Msg("Denied: link unencrypted")
		return ErrEncryptionRequired
	}

	return nil
}

// canonicalAddr normalizes a Bluetooth address so list entries and radio
// callbacks compare equal regardless of case or separator style.
func canonicalAddr(addr string) string {
	if hw, err := net.ParseMAC(addr); err == nil {
		return hw.String()
	}

	return strings.ToLower(addr)
}
