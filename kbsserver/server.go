// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package kbsserver dispatches the GetBundle/GetSecret requests,
// orchestrating certificate-chain verification, session establishment,
// attestation evaluation, and secret-packet construction against a
// store.Store backend.
package kbsserver

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/sage-x-project/kbs/attest/certchain"
	"github.com/sage-x-project/kbs/attest/session"
	"github.com/sage-x-project/kbs/internal/logger"
	"github.com/sage-x-project/kbs/store"
)

// Server exposes GetBundle/GetSecret as plain Go methods. cmd/kbs-server
// wires a JSON-over-HTTP adapter around it.
type Server struct {
	store    store.Store
	verifier *certchain.Verifier
	sessions *session.Cache
	log      logger.Logger
}

// NewServer constructs a Server backed by st, trusting the embedded AMD
// root keys via certchain.NewVerifier.
func NewServer(st store.Store, log logger.Logger) *Server {
	return &Server{
		store:    st,
		verifier: certchain.NewVerifier(),
		sessions: session.NewCache(),
		log:      log,
	}
}

// retryBackoff wraps transient store errors in one internal retry with
// exponential backoff, per the broker's error-handling design: only
// store/I-O errors are retried, never cryptographic or policy
// rejections.
func retryBackoff(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	return backoff.Retry(op, bo)
}
