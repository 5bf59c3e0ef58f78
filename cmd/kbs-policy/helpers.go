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

package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/sage-x-project/kbs/config"
	"github.com/sage-x-project/kbs/store"
	"github.com/sage-x-project/kbs/store/memstore"
)

// openStore opens the store kbs-server would open for the current
// --config-dir/--env, or an empty in-memory store under --dry-run.
func openStore(ctx context.Context) (store.Store, error) {
	if dryRun {
		return memstore.NewStore(), nil
	}

	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return store.Open(ctx, cfg.DB)
}

// decodeDigests parses a slice of hex-encoded 32-byte digest strings,
// the same format policyfile.Load accepts for allowed_digests.
func decodeDigests(hexDigests []string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(hexDigests))
	for _, hd := range hexDigests {
		decoded, err := hex.DecodeString(hd)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("invalid digest %q: must be 64 hex characters", hd)
		}
		var d [32]byte
		copy(d[:], decoded)
		out = append(out, d)
	}
	return out, nil
}

// withStore opens the configured store, runs fn, and closes it
// afterward regardless of outcome.
func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(ctx, st)
}
