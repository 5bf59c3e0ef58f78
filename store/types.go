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

package store

import "time"

// ConnectionBundle is the phase-1 handshake record: one per outstanding
// guest launch, deleted (or logically closed) the instant GetSecret
// consumes it.
type ConnectionBundle struct {
	ID          string
	SEVVersion  string
	GuestPolicy uint32
	FWAPIMajor  byte
	FWAPIMinor  byte
	FWBuildID   byte
	LaunchDesc  string
	FWDigest    [32]byte
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// Policy is the provisioned constraint record attached to secrets,
// keysets, resources, and report keypairs.
type Policy struct {
	ID              string
	AllowedDigests  [][32]byte
	AllowedPolicies []uint32
	MinFWAPIMajor   byte
	MinFWAPIMinor   byte
	AllowedBuildIDs []byte
	Valid           bool
}

// Secret is a provisioned secret value bound to at most one policy.
type Secret struct {
	ID    string
	Value []byte
	PolID string
}

// Keyset expands to an ordered list of secret IDs, all gated by one
// policy.
type Keyset struct {
	ID        string
	SecretIDs []string
	PolID     string
}

// Resource is a policy-gated file read from disk on demand.
type Resource struct {
	ID    string
	Type  string
	Path  string
	PolID string
}

// ReportKeypair is a PEM-encoded ECDSA key used to sign ReportData
// secrets.
type ReportKeypair struct {
	ID    string
	PEM   []byte
	PolID string
}
