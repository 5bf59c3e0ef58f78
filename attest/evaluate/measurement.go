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

// Package evaluate reconstructs the expected SEV launch measurement and
// checks it, along with the guest's platform policy, against the
// broker's configured requirements before a secret is ever released.
package evaluate

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/sage-x-project/kbs/attest/errs"
)

// Measurement is the guest-reported fields needed to reconstruct the
// expected launch digest.
type Measurement struct {
	APIMajor byte
	APIMinor byte
	BuildID  byte
	Policy   uint32
	Digest   [32]byte // firmware-reported SHA-256 launch digest
	MNonce   [16]byte
}

const measurementTag = 0x04

// Expected recomputes HMAC_SHA256(TIK, 0x04 || api_major || api_minor ||
// build_id || policy || digest || mnonce), the same construction the
// SEV firmware uses to produce its own measurement.
func Expected(tik []byte, m Measurement) [32]byte {
	mac := hmac.New(sha256.New, tik)
	mac.Write([]byte{measurementTag, m.APIMajor, m.APIMinor, m.BuildID})
	mac.Write(policyBytes(m.Policy))
	mac.Write(m.Digest[:])
	mac.Write(m.MNonce[:])

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func policyBytes(policy uint32) []byte {
	return []byte{
		byte(policy),
		byte(policy >> 8),
		byte(policy >> 16),
		byte(policy >> 24),
	}
}

// Verify reconstructs the expected measurement and compares it against
// reported in constant time, returning errs.MeasurementMismatch on any
// difference.
func Verify(tik []byte, m Measurement, reported [32]byte) error {
	expected := Expected(tik, m)
	if subtle.ConstantTimeCompare(expected[:], reported[:]) != 1 {
		return errs.MeasurementMismatch()
	}
	return nil
}
