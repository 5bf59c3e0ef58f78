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

package policyfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_PermissiveDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default_policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"valid": true}`), 0o644))

	p, err := Load(path, "default")
	require.NoError(t, err)
	require.True(t, p.Valid)
	require.Empty(t, p.AllowedDigests)
	require.Empty(t, p.AllowedPolicies)
}

func TestLoad_WithDigests(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.json")
	hexDigest := "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"[:64]
	content := `{"valid": true, "allowed_digests": ["` + hexDigest + `"]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path, "p1")
	require.NoError(t, err)
	require.Len(t, p.AllowedDigests, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.json", "p1")
	require.Error(t, err)
}
