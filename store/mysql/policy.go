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

package mysql

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sage-x-project/kbs/store"
)

func (s *Store) GetPolicy(ctx context.Context, id string) (*store.Policy, error) {
	query := `
		SELECT id, allowed_digests, allowed_policies, min_fw_api_major,
		       min_fw_api_minor, allowed_build_ids, valid
		FROM policy WHERE id = ?
	`
	var p store.Policy
	var digestsJSON, policiesJSON, buildIDsJSON []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &digestsJSON, &policiesJSON, &p.MinFWAPIMajor, &p.MinFWAPIMinor, &buildIDsJSON, &p.Valid,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	var hexDigests []string
	if digestsJSON != nil {
		if err := json.Unmarshal(digestsJSON, &hexDigests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed_digests: %w", err)
		}
	}
	for _, hd := range hexDigests {
		decoded, err := hex.DecodeString(hd)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("invalid digest %q", hd)
		}
		var d [32]byte
		copy(d[:], decoded)
		p.AllowedDigests = append(p.AllowedDigests, d)
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
	query := `SELECT secret_id, secret, polid FROM secrets WHERE secret_id = ?`
	var sec store.Secret
	err := s.db.QueryRowContext(ctx, query, id).Scan(&sec.ID, &sec.Value, &sec.PolID)
	if err == sql.ErrNoRows {
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
	query := `SELECT keysetid, kskeys, polid FROM keysets WHERE keysetid = ?`
	var ks store.Keyset
	var kskeysJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&ks.ID, &kskeysJSON, &ks.PolID)
	if err == sql.ErrNoRows {
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
	query := `SELECT resource_id, resource_type, resource_path, polid FROM resources WHERE resource_id = ?`
	var r store.Resource
	err := s.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Type, &r.Path, &r.PolID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &r, nil
}

func (s *Store) GetReportKeypair(ctx context.Context, id string) (*store.ReportKeypair, error) {
	query := `SELECT key_id, keypair, polid FROM report_keypair WHERE key_id = ?`
	var k store.ReportKeypair
	err := s.db.QueryRowContext(ctx, query, id).Scan(&k.ID, &k.PEM, &k.PolID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report keypair: %w", err)
	}
	return &k, nil
}

func (s *Store) PutPolicy(ctx context.Context, p *store.Policy) error {
	hexDigests := make([]string, len(p.AllowedDigests))
	for i, d := range p.AllowedDigests {
		hexDigests[i] = hex.EncodeToString(d[:])
	}
	digestsJSON, err := json.Marshal(hexDigests)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed_digests: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			allowed_digests = VALUES(allowed_digests),
			allowed_policies = VALUES(allowed_policies),
			min_fw_api_major = VALUES(min_fw_api_major),
			min_fw_api_minor = VALUES(min_fw_api_minor),
			allowed_build_ids = VALUES(allowed_build_ids),
			valid = VALUES(valid)
	`
	if _, err := s.db.ExecContext(ctx, query, p.ID, digestsJSON, policiesJSON, p.MinFWAPIMajor, p.MinFWAPIMinor, buildIDsJSON, p.Valid); err != nil {
		return fmt.Errorf("failed to put policy: %w", err)
	}
	return nil
}

func (s *Store) PutSecret(ctx context.Context, sec *store.Secret) error {
	query := `
		INSERT INTO secrets (secret_id, secret, polid) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE secret = VALUES(secret), polid = VALUES(polid)
	`
	if _, err := s.db.ExecContext(ctx, query, sec.ID, sec.Value, sec.PolID); err != nil {
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
		INSERT INTO keysets (keysetid, kskeys, polid) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE kskeys = VALUES(kskeys), polid = VALUES(polid)
	`
	if _, err := s.db.ExecContext(ctx, query, ks.ID, kskeysJSON, ks.PolID); err != nil {
		return fmt.Errorf("failed to put keyset: %w", err)
	}
	return nil
}

func (s *Store) PutResource(ctx context.Context, r *store.Resource) error {
	query := `
		INSERT INTO resources (resource_id, resource_type, resource_path, polid) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE resource_type = VALUES(resource_type),
			resource_path = VALUES(resource_path), polid = VALUES(polid)
	`
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.Type, r.Path, r.PolID); err != nil {
		return fmt.Errorf("failed to put resource: %w", err)
	}
	return nil
}

func (s *Store) PutReportKeypair(ctx context.Context, k *store.ReportKeypair) error {
	query := `
		INSERT INTO report_keypair (key_id, keypair, polid) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE keypair = VALUES(keypair), polid = VALUES(polid)
	`
	if _, err := s.db.ExecContext(ctx, query, k.ID, k.PEM, k.PolID); err != nil {
		return fmt.Errorf("failed to put report keypair: %w", err)
	}
	return nil
}
