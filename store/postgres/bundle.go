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
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sage-x-project/kbs/store"
)

func (s *Store) PutConnectionBundle(ctx context.Context, b *store.ConnectionBundle) error {
	query := `
		INSERT INTO conn_bundle (id, sev_version, guest_policy, fw_api_major, fw_api_minor,
		                         fw_build_id, launch_description, fw_digest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		b.ID, b.SEVVersion, b.GuestPolicy, b.FWAPIMajor, b.FWAPIMinor,
		b.FWBuildID, b.LaunchDesc, b.FWDigest[:], b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put connection bundle: %w", err)
	}
	return nil
}

// TakeConnectionBundle deletes and returns the bundle in one statement,
// realizing the at-most-once GetSecret semantics as a single
// compare-and-delete: a second call for the same id finds zero rows
// and reports store.ErrAlreadyTaken.
func (s *Store) TakeConnectionBundle(ctx context.Context, id string) (*store.ConnectionBundle, error) {
	query := `
		DELETE FROM conn_bundle WHERE id = $1
		RETURNING id, sev_version, guest_policy, fw_api_major, fw_api_minor,
		          fw_build_id, launch_description, fw_digest, created_at
	`

	var b store.ConnectionBundle
	var digest []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.SEVVersion, &b.GuestPolicy, &b.FWAPIMajor, &b.FWAPIMinor,
		&b.FWBuildID, &b.LaunchDesc, &digest, &b.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, store.ErrAlreadyTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take connection bundle: %w", err)
	}
	copy(b.FWDigest[:], digest)
	return &b, nil
}
