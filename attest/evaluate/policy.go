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

package evaluate

import (
	"github.com/sage-x-project/kbs/attest/errs"
)

// Policy mirrors the provisioned policy row: a conjunction of
// constraints a launch must satisfy before an attached secret is
// released. An empty set for any field means "accept all" for that
// field. Valid=false makes the policy behave as if it did not exist.
type Policy struct {
	ID              string
	AllowedDigests  [][32]byte
	AllowedPolicies []uint32
	MinFWAPIMajor   byte
	MinFWAPIMinor   byte
	AllowedBuildIDs []byte
	Valid           bool
}

// Request is the launch-description half of a phase-2 GetSecret call,
// checked against every policy attached to the requested secrets.
type Request struct {
	Digest   [32]byte
	Policy   uint32
	APIMajor byte
	APIMinor byte
	BuildID  byte
}

// Evaluate checks req against a single policy, mirroring the conjunction
// rule each referenced policy must independently satisfy: a missing or
// disabled policy is a hard reject, and every accept/deny decision
// reveals only the offending field, never the policy's configured
// values. Grounded on the "loop over required conditions, fail on first
// miss" idiom used for capability checks elsewhere in this codebase.
func Evaluate(p *Policy, req Request) error {
	if p == nil || !p.Valid {
		return errs.PolicyDenied("policy")
	}

	if len(p.AllowedDigests) > 0 && !digestAllowed(p.AllowedDigests, req.Digest) {
		return errs.PolicyDenied("digest")
	}

	if len(p.AllowedPolicies) > 0 && !policyAllowed(p.AllowedPolicies, req.Policy) {
		return errs.PolicyDenied("policy")
	}

	if apiBelowMinimum(req.APIMajor, req.APIMinor, p.MinFWAPIMajor, p.MinFWAPIMinor) {
		return errs.PolicyDenied("fw_api")
	}

	if len(p.AllowedBuildIDs) > 0 && !buildIDAllowed(p.AllowedBuildIDs, req.BuildID) {
		return errs.PolicyDenied("build_id")
	}

	return nil
}

// EvaluateAll checks req against every policy in the conjunction,
// returning the first failure. Adding a policy to the set can only
// narrow what is accepted, never widen it.
func EvaluateAll(policies []*Policy, req Request) error {
	for _, p := range policies {
		if err := Evaluate(p, req); err != nil {
			return err
		}
	}
	return nil
}

func digestAllowed(allowed [][32]byte, digest [32]byte) bool {
	for _, d := range allowed {
		if d == digest {
			return true
		}
	}
	return false
}

func policyAllowed(allowed []uint32, policy uint32) bool {
	for _, p := range allowed {
		if p == policy {
			return true
		}
	}
	return false
}

func buildIDAllowed(allowed []byte, buildID byte) bool {
	for _, b := range allowed {
		if b == buildID {
			return true
		}
	}
	return false
}

func apiBelowMinimum(major, minor, minMajor, minMinor byte) bool {
	if major != minMajor {
		return major < minMajor
	}
	return minor < minMinor
}
