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
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sage-x-project/kbs/attest/errs"
	"github.com/sage-x-project/kbs/attest/evaluate"
	"github.com/sage-x-project/kbs/attest/secretpacket"
	"github.com/sage-x-project/kbs/internal/logger"
	"github.com/sage-x-project/kbs/internal/metrics"
	"github.com/sage-x-project/kbs/kbspb"
	"github.com/sage-x-project/kbs/store"
)

const launchMeasurementLen = 32 + 16 // reported tag || mnonce

// GetSecret consumes a connection bundle, verifies the guest's launch
// measurement against the session's TIK, checks every policy attached
// to the requested secrets, and returns the encrypted OVMF secret
// table. The connection bundle and the cached TIK/TEK are each
// consumable exactly once; any failure after either is taken still
// leaves the session unusable for a retry.
func (s *Server) GetSecret(ctx context.Context, req *kbspb.GetSecretRequest) (*kbspb.GetSecretReply, error) {
	start := time.Now()

	reply, err := s.getSecret(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RequestDuration.WithLabelValues("GetSecret", status).Observe(time.Since(start).Seconds())

	return reply, err
}

func (s *Server) getSecret(ctx context.Context, req *kbspb.GetSecretRequest) (*kbspb.GetSecretReply, error) {
	if len(req.LaunchMeasurement) != launchMeasurementLen || len(req.FWDigest) != 32 {
		return nil, errs.InvalidArgument("malformed launch measurement or firmware digest")
	}

	bundle, err := s.takeBundle(ctx, req.GUID)
	if err != nil {
		return nil, err
	}

	if bundle.GuestPolicy != req.Policy {
		return nil, errs.InvalidArgument("guest policy does not match the bundle established at GetBundle")
	}

	keys, ok := s.sessions.Take(req.GUID)
	if !ok {
		s.log.Warn("session keys missing for taken bundle", logger.String("guid", req.GUID))
		return nil, errs.UnknownConnection()
	}
	defer keys.Zero()

	if err := s.verifyMeasurement(req, keys.TIK); err != nil {
		return nil, err
	}

	if err := s.evaluatePolicies(ctx, req); err != nil {
		metrics.PolicyEvaluations.WithLabelValues("denied").Inc()
		return nil, err
	}
	metrics.PolicyEvaluations.WithLabelValues("allowed").Inc()

	header, data, err := s.buildSecretPacket(ctx, keys.TEK[:], req)
	if err != nil {
		return nil, err
	}

	s.log.Info("secret packet released",
		logger.String("guid", req.GUID),
		logger.Int("secrets", len(req.SecretRequests)),
	)

	return &kbspb.GetSecretReply{
		LaunchSecretHeader: header,
		LaunchSecretData:   data,
	}, nil
}

// takeBundle performs the one-shot compare-and-delete, retrying only
// transient store errors. ErrAlreadyTaken/ErrNotFound are terminal:
// retrying a missing or already-consumed bundle can never succeed.
func (s *Server) takeBundle(ctx context.Context, guid string) (*store.ConnectionBundle, error) {
	var bundle *store.ConnectionBundle

	err := retryBackoff(ctx, func() error {
		b, err := s.store.TakeConnectionBundle(ctx, guid)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyTaken) || errors.Is(err, store.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		bundle = b
		return nil
	})

	if err != nil {
		metrics.ConnectionBundlesTaken.WithLabelValues("unknown_connection").Inc()
		return nil, errs.UnknownConnection()
	}
	metrics.ConnectionBundlesTaken.WithLabelValues("success").Inc()
	return bundle, nil
}

func (s *Server) verifyMeasurement(req *kbspb.GetSecretRequest, tik [16]byte) error {
	var reported, digest [32]byte
	var mnonce [16]byte
	copy(reported[:], req.LaunchMeasurement[:32])
	copy(mnonce[:], req.LaunchMeasurement[32:48])
	copy(digest[:], req.FWDigest)

	m := evaluate.Measurement{
		APIMajor: byte(req.APIMajor),
		APIMinor: byte(req.APIMinor),
		BuildID:  byte(req.BuildID),
		Policy:   req.Policy,
		Digest:   digest,
		MNonce:   mnonce,
	}

	if err := evaluate.Verify(tik[:], m, reported); err != nil {
		metrics.MeasurementMismatches.Inc()
		s.log.Warn("launch measurement mismatch")
		return err
	}
	return nil
}

// evaluatePolicies resolves every policy attached to the requested
// secrets/keysets/resources/report keypairs and checks the launch
// description against their conjunction.
func (s *Server) evaluatePolicies(ctx context.Context, req *kbspb.GetSecretRequest) error {
	polIDs, err := s.policyIDsFor(ctx, req.SecretRequests)
	if err != nil {
		return err
	}

	policies := make([]*evaluate.Policy, 0, len(polIDs))
	for _, id := range polIDs {
		p, err := s.store.GetPolicy(ctx, id)
		if err != nil {
			return errs.PolicyDenied("policy")
		}
		policies = append(policies, toEvaluatePolicy(p))
	}

	evalReq := evaluate.Request{
		Digest:   toDigest(req.FWDigest),
		Policy:   req.Policy,
		APIMajor: byte(req.APIMajor),
		APIMinor: byte(req.APIMinor),
		BuildID:  byte(req.BuildID),
	}

	return evaluate.EvaluateAll(policies, evalReq)
}

func (s *Server) policyIDsFor(ctx context.Context, reqs []kbspb.SecretRequestEntry) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, r := range reqs {
		switch r.Type {
		case kbspb.SecretRaw, kbspb.SecretBundle:
			sec, err := s.store.GetSecret(ctx, r.ID)
			if err != nil {
				return nil, errs.SecretNotFound(r.ID)
			}
			add(sec.PolID)

		case kbspb.SecretKeyset:
			ks, err := s.store.GetKeyset(ctx, r.ID)
			if err != nil {
				return nil, errs.SecretNotFound(r.ID)
			}
			add(ks.PolID)
			// A keyset's constituent secrets may each carry their own
			// policy; the conjunction must satisfy every one of them,
			// not just the keyset's own row.
			for _, secID := range ks.SecretIDs {
				sec, err := s.store.GetSecret(ctx, secID)
				if err != nil {
					return nil, errs.SecretNotFound(secID)
				}
				add(sec.PolID)
			}

		case kbspb.SecretResource:
			res, err := s.store.GetResource(ctx, r.ID)
			if err != nil {
				return nil, errs.SecretNotFound(r.ID)
			}
			add(res.PolID)

		case kbspb.SecretReportData:
			rk, err := s.store.GetReportKeypair(ctx, r.ID)
			if err != nil {
				return nil, errs.SecretNotFound(r.ID)
			}
			add(rk.PolID)

		default:
			return nil, errs.InvalidArgument("unknown secret request type")
		}
	}

	return ids, nil
}

func toEvaluatePolicy(p *store.Policy) *evaluate.Policy {
	return &evaluate.Policy{
		ID:              p.ID,
		AllowedDigests:  p.AllowedDigests,
		AllowedPolicies: p.AllowedPolicies,
		MinFWAPIMajor:   p.MinFWAPIMajor,
		MinFWAPIMinor:   p.MinFWAPIMinor,
		AllowedBuildIDs: p.AllowedBuildIDs,
		Valid:           p.Valid,
	}
}

func toDigest(raw []byte) [32]byte {
	var d [32]byte
	copy(d[:], raw)
	return d
}

func (s *Server) buildSecretPacket(ctx context.Context, tek []byte, req *kbspb.GetSecretRequest) (header, data []byte, err error) {
	start := time.Now()

	reqs := make([]secretpacket.Request, 0, len(req.SecretRequests))
	for _, r := range req.SecretRequests {
		reqs = append(reqs, secretpacket.Request{
			Type:    toSecretpacketType(r.Type),
			ID:      r.ID,
			GUID:    r.GUID,
			Payload: r.Payload,
		})
		metrics.SecretPacketsBuilt.WithLabelValues(toSecretpacketType(r.Type).String()).Inc()
	}

	builder := secretpacket.NewBuilder(storeLookup{ctx: ctx, st: s.store})
	header, data, err = builder.Build(tek, reqs)
	if err != nil {
		return nil, nil, err
	}

	metrics.SecretPacketBuildDuration.Observe(time.Since(start).Seconds())
	metrics.SecretPacketSize.Observe(float64(len(data)))

	return header, data, nil
}

func toSecretpacketType(t kbspb.SecretRequestType) secretpacket.RequestType {
	switch t {
	case kbspb.SecretBundle:
		return secretpacket.Bundle
	case kbspb.SecretKeyset:
		return secretpacket.Keyset
	case kbspb.SecretRaw:
		return secretpacket.Raw
	case kbspb.SecretResource:
		return secretpacket.Resource
	case kbspb.SecretReportData:
		return secretpacket.ReportData
	default:
		return secretpacket.RequestType(-1)
	}
}
