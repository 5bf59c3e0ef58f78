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

// Package secretpacket builds the OVMF-format LAUNCH_SECRET table the
// platform's Secure Processor installs into guest memory at launch.
package secretpacket

import (
	"crypto/sha256"

	"github.com/google/uuid"

	"github.com/sage-x-project/kbs/attest/errs"
)

// RequestType is the kind of secret a phase-2 request names.
type RequestType int

const (
	Bundle RequestType = iota
	Keyset
	Raw
	Resource
	ReportData
)

func (t RequestType) String() string {
	switch t {
	case Bundle:
		return "bundle"
	case Keyset:
		return "keyset"
	case Raw:
		return "raw"
	case Resource:
		return "resource"
	case ReportData:
		return "reportdata"
	default:
		return "unknown"
	}
}

// guidLE is a little-endian-encoded 16-byte GUID, matching the OVMF
// table convention.
type guidLE [16]byte

// Fixed entry-kind GUIDs for the two formats spec.md does not tie to
// caller/resource data. Bundle carries forward simple-kbs's
// offline-connection-secret GUID (kata-containers/pkg/sev/kbs/kbs.go's
// OfflineSecretGuid, byte-reversed per parseGUIDString below);
// ReportData is this broker's own addition and has no simple-kbs
// analogue, so it gets an arbitrary fixed GUID of its own.
var (
	bundleGUID     = guidLE{0x62, 0xa1, 0xf5, 0xe6, 0x7f, 0xd6, 0x50, 0x47, 0xa6, 0x7c, 0x5d, 0x06, 0x5f, 0x2a, 0x99, 0x10}
	reportDataGUID = guidLE{0xf0, 0xe1, 0xd2, 0xc3, 0xb4, 0xa5, 0x96, 0x87, 0x78, 0x69, 0x5a, 0x4b, 0x3c, 0x2d, 0x1e, 0x0f}
)

func guidFor(t RequestType) guidLE {
	switch t {
	case Bundle:
		return bundleGUID
	case ReportData:
		return reportDataGUID
	default:
		return guidLE{}
	}
}

// parseGUIDString converts a canonical UUID text string into the
// OVMF/EFI_GUID wire form: the first three fields (time_low, time_mid,
// time_hi_and_version) are byte-reversed, the remaining 8 bytes
// (clock_seq + node) keep their textual order. This is the same
// convention kata-containers' OfflineSecretGuid/OnlineSecretGuid
// constants use on the wire, verified against bundleGUID above.
func parseGUIDString(s string) (guidLE, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return guidLE{}, errs.InvalidArgument("invalid entry GUID: " + err.Error())
	}
	var g guidLE
	g[0], g[1], g[2], g[3] = id[3], id[2], id[1], id[0]
	g[4], g[5] = id[5], id[4]
	g[6], g[7] = id[7], id[6]
	copy(g[8:], id[8:])
	return g, nil
}

// derivePerSecretGUID gives each constituent secret of a Keyset entry
// its own distinct GUID, seeded from the caller-supplied base GUID and
// the secret's own id. The wire protocol carries a single GUID string
// per request entry, so the "caller-provided per-secret GUIDs" spec.md
// §4.4 describes are derived deterministically from that one value
// rather than submitted as a list.
func derivePerSecretGUID(base guidLE, secretID string) guidLE {
	h := sha256.Sum256(append(base[:], []byte(secretID)...))
	var g guidLE
	copy(g[:], h[:16])
	return g
}

// guidForResourceType derives a Resource entry's GUID from its
// resource_type, per spec.md §4.4 ("GUID encodes resource_type").
func guidForResourceType(resourceType string) guidLE {
	h := sha256.Sum256([]byte(resourceType))
	var g guidLE
	copy(g[:], h[:16])
	return g
}

// Request is one element of a phase-2 secret_requests array.
type Request struct {
	Type RequestType
	ID   string
	// GUID is the caller-supplied OVMF GUID string for the resulting
	// entry. Raw uses it directly; Keyset uses it as the seed each
	// constituent secret's GUID is derived from. Bundle, Resource, and
	// ReportData ignore it (Bundle/ReportData use fixed GUIDs, Resource
	// derives its GUID from the resource's type instead).
	GUID    string
	Payload []byte // report nonce for ReportData, otherwise unused
}

// Entry is one decoded/encoded OVMF secret-table entry:
// GUID(16B LE) || length(4B LE) || payload, where length covers the
// whole entry (header included).
type Entry struct {
	GUID    guidLE
	Payload []byte
}
