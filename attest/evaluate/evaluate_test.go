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

package evaluate

import (
	"testing"

	"github.com/sage-x-project/kbs/attest/errs"
	"github.com/stretchr/testify/require"
)

func permissivePolicy() *Policy {
	return &Policy{ID: "p1", Valid: true}
}

func TestEvaluate_PermissivePolicyAcceptsAnything(t *testing.T) {
	p := permissivePolicy()
	err := Evaluate(p, Request{APIMajor: 1, APIMinor: 49, BuildID: 1})
	require.NoError(t, err)
}

func TestEvaluate_DigestMismatch(t *testing.T) {
	var allowed [32]byte
	allowed[0] = 0xAA
	p := &Policy{ID: "p1", Valid: true, AllowedDigests: [][32]byte{allowed}}

	var reported [32]byte
	reported[0] = 0xBB

	err := Evaluate(p, Request{Digest: reported})
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "digest", e.Field)
}

func TestEvaluate_InvalidPolicyIsHardReject(t *testing.T) {
	p := &Policy{ID: "p1", Valid: false}
	err := Evaluate(p, Request{})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodePolicyDenied))
}

func TestEvaluateAll_ConflictingMinAPI(t *testing.T) {
	p1 := &Policy{ID: "p1", Valid: true, MinFWAPIMajor: 1, MinFWAPIMinor: 40}
	p2 := &Policy{ID: "p2", Valid: true, MinFWAPIMajor: 1, MinFWAPIMinor: 50}

	// api=1.45 satisfies p1 but not p2.
	err := EvaluateAll([]*Policy{p1, p2}, Request{APIMajor: 1, APIMinor: 45})
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "fw_api", e.Field)

	// api=1.51 satisfies both.
	err = EvaluateAll([]*Policy{p1, p2}, Request{APIMajor: 1, APIMinor: 51})
	require.NoError(t, err)
}

func TestEvaluate_BuildIDNotAllowed(t *testing.T) {
	p := &Policy{ID: "p1", Valid: true, AllowedBuildIDs: []byte{2, 3}}
	err := Evaluate(p, Request{BuildID: 1})
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "build_id", e.Field)
}

func TestMeasurement_ExpectedMatchesReconstruction(t *testing.T) {
	tik := make([]byte, 16)
	m := Measurement{APIMajor: 1, APIMinor: 49, BuildID: 1, Policy: 0}

	got := Expected(tik, m)
	require.NoError(t, Verify(tik, m, got))
}

func TestMeasurement_TamperDetected(t *testing.T) {
	tik := make([]byte, 16)
	m := Measurement{APIMajor: 1, APIMinor: 49, BuildID: 1, Policy: 0}

	got := Expected(tik, m)
	got[0] ^= 0xFF

	err := Verify(tik, m, got)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeMeasurementMismatch))
}
