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

// Package kbspb holds the GetBundle/GetSecret wire shapes as plain Go
// structs. Wire transport (gRPC/protobuf codegen) is out of scope;
// cmd/kbs-server's listener decodes onto these types directly.
package kbspb

// SecretRequestType mirrors attest/secretpacket.RequestType on the
// wire.
type SecretRequestType int

const (
	SecretBundle SecretRequestType = iota
	SecretKeyset
	SecretRaw
	SecretResource
	SecretReportData
)

// GetBundleRequest is the phase-1 handshake request.
type GetBundleRequest struct {
	// CertificateChain is PDH+PEK+CEK/OCA+ASK+ARK serialized per SEV.
	CertificateChain []byte
	Policy           uint32
}

// GetBundleReply is the phase-1 handshake response.
type GetBundleReply struct {
	GUID       string
	LaunchBlob []byte
	GODHCert   []byte
}

// SecretRequestEntry is one element of a GetSecretRequest's
// SecretRequests list.
type SecretRequestEntry struct {
	Type    SecretRequestType
	ID      string
	GUID    string
	Payload []byte
}

// GetSecretRequest is the phase-2 request, naming the connection
// bundle and the secrets to release against it.
type GetSecretRequest struct {
	GUID              string
	LaunchMeasurement []byte // 32-byte tag || 16-byte nonce
	Policy            uint32
	APIMajor          uint32
	APIMinor          uint32
	BuildID           uint32
	FWDigest          []byte // 32 bytes
	LaunchDescription string
	SecretRequests    []SecretRequestEntry
}

// GetSecretReply is the phase-2 response: the encrypted OVMF secret
// table ready for LAUNCH_SECRET.
type GetSecretReply struct {
	LaunchSecretHeader []byte
	LaunchSecretData   []byte
}
