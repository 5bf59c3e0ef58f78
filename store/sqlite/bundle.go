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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sage-x-project/kbs/store"
)

func (s *Store) PutConnectionBundle(ctx context.Context, b *store.ConnectionBundle) error {
	query := `
		INSERT INTO conn_bundle (id, sev_version, guest_policy, fw_api_major, fw_api_minor,
		                         fw_build_id, launch_description, fw_digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.SEVVersion, b.GuestPolicy, b.FWAPIMajor, b.FWAPIMinor,
		b.FWBuildID, b.LaunchDesc, b.FWDigest[:], b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put connection bundle: %w", err)
	}
	return nil
}

// TakeConnectionBundle runs the read-then-delete inside a single
// transaction (SQLite serializes writers anyway via the capped
// connection pool, so this is sufficient for the compare-and-delete
// guarantee without row-level locking hints).
func (s *Store) TakeConnectionBundle(ctx context.Context, id string) (*store.ConnectionBundle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, sev_version, guest_policy, fw_api_major, fw_api_minor,
		       fw_build_id, launch_description, fw_digest, created_at
		FROM conn_bundle WHERE id = ?
	`

	var b store.ConnectionBundle
	var digest []byte
	err = tx.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.SEVVersion, &b.GuestPolicy, &b.FWAPIMajor, &b.FWAPIMinor,
		&b.FWBuildID, &b.LaunchDesc, &digest, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrAlreadyTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take connection bundle: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conn_bundle WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete connection bundle: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, store.ErrAlreadyTaken
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	copy(b.FWDigest[:], digest)
	return &b, nil
}
