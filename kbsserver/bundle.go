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

package kbsserver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sage-x-project/kbs/attest/session"
	"github.com/sage-x-project/kbs/internal/logger"
	"github.com/sage-x-project/kbs/internal/metrics"
	"github.com/sage-x-project/kbs/kbspb"
	"github.com/sage-x-project/kbs/store"
)

// GetBundle validates the platform certificate chain, establishes a
// fresh session against its PDH, and persists the binding connection
// bundle. The returned GUID identifies this session for the later
// GetSecret call.
func (s *Server) GetBundle(ctx context.Context, req *kbspb.GetBundleRequest) (*kbspb.GetBundleReply, error) {
	start := time.Now()

	pdhPub, err := parseAndVerifyChain(s.verifier, req.CertificateChain)
	if err != nil {
		metrics.CertChainVerifications.WithLabelValues("rejected").Inc()
		s.log.Warn("certificate chain rejected", logger.Error(err))
		return nil, err
	}
	metrics.CertChainVerifications.WithLabelValues("accepted").Inc()
	metrics.CertChainVerifyDuration.Observe(time.Since(start).Seconds())

	result, err := session.Establish(pdhPub)
	if err != nil {
		s.log.Error("session establishment failed", logger.Error(err))
		return nil, err
	}

	guid := uuid.New().String()
	s.sessions.Put(guid, result.Keys)

	bundle := &store.ConnectionBundle{
		ID:          guid,
		GuestPolicy: req.Policy,
		CreatedAt:   time.Now(),
	}

	if err := retryBackoff(ctx, func() error {
		return s.store.PutConnectionBundle(ctx, bundle)
	}); err != nil {
		s.sessions.Evict(guid)
		metrics.SessionsEstablished.WithLabelValues("storage_error").Inc()
		return nil, err
	}
	metrics.ConnectionBundlesPut.Inc()

	metrics.SessionsEstablished.WithLabelValues("success").Inc()
	s.log.Info("session established", logger.String("guid", guid))

	return &kbspb.GetBundleReply{
		GUID:       guid,
		LaunchBlob: session.EncodeBlob(result.Blob),
		GODHCert:   result.GODH.PublicKey,
	}, nil
}
