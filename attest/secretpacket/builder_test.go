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

package secretpacket

import (
	"crypto/ecdsa"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	secrets       map[string][]byte
	keysets       map[string][]string
	resources     map[string][]byte
	resourceTypes map[string]string
}

func (f *fakeLookup) Secret(id string) ([]byte, error) {
	s, ok := f.secrets[id]
	if !ok {
		return nil, errNotFound
	}
	return s, nil
}

func (f *fakeLookup) Keyset(id string) ([]string, error) {
	k, ok := f.keysets[id]
	if !ok {
		return nil, errNotFound
	}
	return k, nil
}

func (f *fakeLookup) Resource(id string) (body []byte, resourceType string, err error) {
	r, ok := f.resources[id]
	if !ok {
		return nil, "", errNotFound
	}
	return r, f.resourceTypes[id], nil
}

func (f *fakeLookup) ReportKeypair(id string) (*ecdsa.PrivateKey, error) {
	return nil, errNotFound
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

// rawGUIDText is a valid UUID string also used to construct the fixed
// bundleGUID wire constant (see types.go), so tests can assert the
// decoded entry GUID against that already-verified byte value.
const rawGUIDText = "e6f5a162-d67f-4750-a67c-5d065f2a9910"

func TestBuilder_RawSecret(t *testing.T) {
	lookup := &fakeLookup{secrets: map[string][]byte{"foo": {0xDE, 0xAD, 0xBE, 0xEF}}}
	b := NewBuilder(lookup)

	tek := make([]byte, 16)
	header, data, err := b.Build(tek, []Request{{Type: Raw, ID: "foo", GUID: rawGUIDText}})
	require.NoError(t, err)

	table, err := Open(tek, header, data)
	require.NoError(t, err)

	entries, err := DecodeTable(table)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, entries[0].Payload)
	require.Equal(t, bundleGUID, entries[0].GUID, "Raw entry GUID must come from the request's own GUID, not a fixed constant")
}

func TestBuilder_RawSecret_RejectsInvalidGUID(t *testing.T) {
	lookup := &fakeLookup{secrets: map[string][]byte{"foo": {0xAA}}}
	b := NewBuilder(lookup)

	tek := make([]byte, 16)
	_, _, err := b.Build(tek, []Request{{Type: Raw, ID: "foo", GUID: "not-a-guid"}})
	require.Error(t, err)
}

func TestBuilder_KeysetExpandsInOrder(t *testing.T) {
	lookup := &fakeLookup{
		secrets: map[string][]byte{
			"s1": {0x01},
			"s2": {0x02},
		},
		keysets: map[string][]string{"ks1": {"s1", "s2"}},
	}
	b := NewBuilder(lookup)

	tek := make([]byte, 16)
	header, data, err := b.Build(tek, []Request{{Type: Keyset, ID: "ks1", GUID: rawGUIDText}})
	require.NoError(t, err)

	table, err := Open(tek, header, data)
	require.NoError(t, err)

	entries, err := DecodeTable(table)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte{0x01}, entries[0].Payload)
	require.Equal(t, []byte{0x02}, entries[1].Payload)

	require.NotEqual(t, entries[0].GUID, entries[1].GUID, "each constituent secret must get its own GUID")
	require.Equal(t, derivePerSecretGUID(bundleGUID, "s1"), entries[0].GUID)
	require.Equal(t, derivePerSecretGUID(bundleGUID, "s2"), entries[1].GUID)
}

func TestBuilder_Resource_GUIDEncodesResourceType(t *testing.T) {
	lookup := &fakeLookup{
		resources:     map[string][]byte{"r1": {0x01, 0x02}},
		resourceTypes: map[string]string{"r1": "firmware"},
	}
	b := NewBuilder(lookup)

	tek := make([]byte, 16)
	header, data, err := b.Build(tek, []Request{{Type: Resource, ID: "r1"}})
	require.NoError(t, err)

	table, err := Open(tek, header, data)
	require.NoError(t, err)

	entries, err := DecodeTable(table)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, guidForResourceType("firmware"), entries[0].GUID)
}

func TestBuilder_UnknownSecret(t *testing.T) {
	lookup := &fakeLookup{secrets: map[string][]byte{}}
	b := NewBuilder(lookup)

	tek := make([]byte, 16)
	_, _, err := b.Build(tek, []Request{{Type: Raw, ID: "missing"}})
	require.Error(t, err)
}

func TestOpen_RejectsTamperedData(t *testing.T) {
	lookup := &fakeLookup{secrets: map[string][]byte{"foo": {0xAA}}}
	b := NewBuilder(lookup)

	tek := make([]byte, 16)
	header, data, err := b.Build(tek, []Request{{Type: Raw, ID: "foo", GUID: rawGUIDText}})
	require.NoError(t, err)

	data[0] ^= 0xFF
	_, err = Open(tek, header, data)
	require.Error(t, err)
}
