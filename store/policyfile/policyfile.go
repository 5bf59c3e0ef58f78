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

// Package policyfile loads the default_policy.json provisioning file:
// a JSON object with the five Policy fields, where a missing field
// means empty-set (permissive).
package policyfile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sage-x-project/kbs/store"
)

// document is the on-disk JSON shape. Every field is optional; a
// missing field decodes to its zero value, which Evaluate treats as
// "accept all" for that dimension.
type document struct {
	AllowedDigests  []string `json:"allowed_digests"`
	AllowedPolicies []uint32 `json:"allowed_policies"`
	MinFWAPIMajor   byte     `json:"min_fw_api_major"`
	MinFWAPIMinor   byte     `json:"min_fw_api_minor"`
	AllowedBuildIDs []byte   `json:"allowed_build_ids"`
	Valid           bool     `json:"valid"`
}

// Load reads path and decodes it into a store.Policy with id.
func Load(path, id string) (*store.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	p := &store.Policy{
		ID:              id,
		AllowedPolicies: doc.AllowedPolicies,
		MinFWAPIMajor:   doc.MinFWAPIMajor,
		MinFWAPIMinor:   doc.MinFWAPIMinor,
		AllowedBuildIDs: doc.AllowedBuildIDs,
		Valid:           doc.Valid,
	}

	for _, hd := range doc.AllowedDigests {
		decoded, err := hex.DecodeString(hd)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("invalid digest %q in %s", hd, path)
		}
		var d [32]byte
		copy(d[:], decoded)
		p.AllowedDigests = append(p.AllowedDigests, d)
	}

	return p, nil
}
