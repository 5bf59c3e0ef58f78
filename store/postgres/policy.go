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

package postgres

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sage-x-project/kbs/store"
)

func (s *Store) GetPolicy(ctx context.Context, id string) (*store.Policy, error) {
	query := `
		SELECT id, allowed_digests, allowed_policies, min_fw_api_major,
		       min_fw_api_minor, allowed_build_ids, valid
		FROM policy WHERE id = $1
	`

	var p store.Policy
	var digestsJSON, policiesJSON, buildIDsJSON []byte

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &digestsJSON, &policiesJSON, &p.MinFWAPIMajor, &p.MinFWAPIMinor, &buildIDsJSON, &p.Valid,
	)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	if err := unmarshalDigests(digestsJSON, &p.AllowedDigests); err != nil {
		return nil, err
	}
	if policiesJSON != nil {
		if err := json.Unmarshal(policiesJSON, &p.AllowedPolicies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed_policies: %w", err)
		}
	}
	if buildIDsJSON != nil {
		if err := json.Unmarshal(buildIDsJSON, &p.AllowedBuildIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed_build_ids: %w", err)
		}
	}

	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context, ids []string) ([]*store.Policy, error) {
	out := make([]*store.Policy, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetSecret(ctx context.Context, id string) (*store.Secret, error) {
	query := `SELECT secret_id, secret, polid FROM secrets WHERE secret_id = $1`

	var sec store.Secret
	err := s.pool.QueryRow(ctx, query, id).Scan(&sec.ID, &sec.Value, &sec.PolID)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return &sec, nil
}

func (s *Store) ListSecrets(ctx context.Context, ids []string) ([]*store.Secret, error) {
	out := make([]*store.Secret, 0, len(ids))
	for _, id := range ids {
		sec, err := s.GetSecret(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, nil
}

func (s *Store) GetKeyset(ctx context.Context, id string) (*store.Keyset, error) {
	query := `SELECT keysetid, kskeys, polid FROM keysets WHERE keysetid = $1`

	var ks store.Keyset
	var kskeysJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&ks.ID, &kskeysJSON, &ks.PolID)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get keyset: %w", err)
	}
	if err := json.Unmarshal(kskeysJSON, &ks.SecretIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kskeys: %w", err)
	}
	return &ks, nil
}

func (s *Store) GetResource(ctx context.Context, id string) (*store.Resource, error) {
	query := `SELECT resource_id, resource_type, resource_path, polid FROM resources WHERE resource_id = $1`

	var r store.Resource
	err := s.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Type, &r.Path, &r.PolID)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &r, nil
}

func (s *Store) GetReportKeypair(ctx context.Context, id string) (*store.ReportKeypair, error) {
	query := `SELECT key_id, keypair, polid FROM report_keypair WHERE key_id = $1`

	var k store.ReportKeypair
	err := s.pool.QueryRow(ctx, query, id).Scan(&k.ID, &k.PEM, &k.PolID)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report keypair: %w", err)
	}
	return &k, nil
}

func (s *Store) PutPolicy(ctx context.Context, p *store.Policy) error {
	digestsJSON, err := marshalDigests(p.AllowedDigests)
	if err != nil {
		return err
	}
	policiesJSON, err := json.Marshal(p.AllowedPolicies)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed_policies: %w", err)
	}
	buildIDsJSON, err := json.Marshal(p.AllowedBuildIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed_build_ids: %w", err)
	}

	query := `
		INSERT INTO policy (id, allowed_digests, allowed_policies, min_fw_api_major,
		                     min_fw_api_minor, allowed_build_ids, valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			allowed_digests = EXCLUDED.allowed_digests,
			allowed_policies = EXCLUDED.allowed_policies,
			min_fw_api_major = EXCLUDED.min_fw_api_major,
			min_fw_api_minor = EXCLUDED.min_fw_api_minor,
			allowed_build_ids = EXCLUDED.allowed_build_ids,
			valid = EXCLUDED.valid
	`
	_, err = s.pool.Exec(ctx, query, p.ID, digestsJSON, policiesJSON, p.MinFWAPIMajor, p.MinFWAPIMinor, buildIDsJSON, p.Valid)
	if err != nil {
		return fmt.Errorf("failed to put policy: %w", err)
	}
	return nil
}

func (s *Store) PutSecret(ctx context.Context, sec *store.Secret) error {
	query := `
		INSERT INTO secrets (secret_id, secret, polid) VALUES ($1, $2, $3)
		ON CONFLICT (secret_id) DO UPDATE SET secret = EXCLUDED.secret, polid = EXCLUDED.polid
	`
	if _, err := s.pool.Exec(ctx, query, sec.ID, sec.Value, sec.PolID); err != nil {
		return fmt.Errorf("failed to put secret: %w", err)
	}
	return nil
}

func (s *Store) PutKeyset(ctx context.Context, ks *store.Keyset) error {
	kskeysJSON, err := json.Marshal(ks.SecretIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal kskeys: %w", err)
	}
	query := `
		INSERT INTO keysets (keysetid, kskeys, polid) VALUES ($1, $2, $3)
		ON CONFLICT (keysetid) DO UPDATE SET kskeys = EXCLUDED.kskeys, polid = EXCLUDED.polid
	`
	if _, err := s.pool.Exec(ctx, query, ks.ID, kskeysJSON, ks.PolID); err != nil {
		return fmt.Errorf("failed to put keyset: %w", err)
	}
	return nil
}

func (s *Store) PutResource(ctx context.Context, r *store.Resource) error {
	query := `
		INSERT INTO resources (resource_id, resource_type, resource_path, polid) VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_id) DO UPDATE SET resource_type = EXCLUDED.resource_type,
			resource_path = EXCLUDED.resource_path, polid = EXCLUDED.polid
	`
	if _, err := s.pool.Exec(ctx, query, r.ID, r.Type, r.Path, r.PolID); err != nil {
		return fmt.Errorf("failed to put resource: %w", err)
	}
	return nil
}

func (s *Store) PutReportKeypair(ctx context.Context, k *store.ReportKeypair) error {
	query := `
		INSERT INTO report_keypair (key_id, keypair, polid) VALUES ($1, $2, $3)
		ON CONFLICT (key_id) DO UPDATE SET keypair = EXCLUDED.keypair, polid = EXCLUDED.polid
	`
	if _, err := s.pool.Exec(ctx, query, k.ID, k.PEM, k.PolID); err != nil {
		return fmt.Errorf("failed to put report keypair: %w", err)
	}
	return nil
}

func marshalDigests(digests [][32]byte) ([]byte, error) {
	hexDigests := make([]string, len(digests))
	for i, d := range digests {
		hexDigests[i] = hex.EncodeToString(d[:])
	}
	return json.Marshal(hexDigests)
}

func unmarshalDigests(raw []byte, out *[][32]byte) error {
	if raw == nil {
		return nil
	}
	var hexDigests []string
	if err := json.Unmarshal(raw, &hexDigests); err != nil {
		return fmt.Errorf("failed to unmarshal allowed_digests: %w", err)
	}
	for _, hd := range hexDigests {
		decoded, err := hex.DecodeString(hd)
		if err != nil || len(decoded) != 32 {
			return fmt.Errorf("invalid digest %q", hd)
		}
		var d [32]byte
		copy(d[:], decoded)
		*out = append(*out, d)
	}
	return nil
}
