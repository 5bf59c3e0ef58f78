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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	if CertChainVerifications == nil {
		t.Error("CertChainVerifications metric is nil")
	}
	if SessionsEstablished == nil {
		t.Error("SessionsEstablished metric is nil")
	}
	if PolicyEvaluations == nil {
		t.Error("PolicyEvaluations metric is nil")
	}
	if SecretPacketsBuilt == nil {
		t.Error("SecretPacketsBuilt metric is nil")
	}
	if ConnectionBundlesPut == nil {
		t.Error("ConnectionBundlesPut metric is nil")
	}
	if RequestDuration == nil {
		t.Error("RequestDuration metric is nil")
	}
}

func TestMetricsIncrement(t *testing.T) {
	CertChainVerifications.WithLabelValues("success").Inc()
	CertChainVerifyDuration.Observe(0.002)
	ReportKeypairSignatures.Inc()

	SessionsEstablished.WithLabelValues("success").Inc()
	SessionsCached.Inc()
	KeyDerivationDuration.WithLabelValues("master").Observe(0.001)

	PolicyEvaluations.WithLabelValues("allowed").Inc()
	SecretPacketsBuilt.WithLabelValues("bundle").Inc()
	SecretPacketSize.Observe(1024)

	ConnectionBundlesPut.Inc()
	ConnectionBundlesTaken.WithLabelValues("success").Inc()
	RequestDuration.WithLabelValues("GetBundle", "ok").Observe(0.01)

	if count := testutil.CollectAndCount(CertChainVerifications); count == 0 {
		t.Error("CertChainVerifications has no metrics collected")
	}
	if count := testutil.CollectAndCount(SessionsEstablished); count == 0 {
		t.Error("SessionsEstablished has no metrics collected")
	}
	if count := testutil.CollectAndCount(PolicyEvaluations); count == 0 {
		t.Error("PolicyEvaluations has no metrics collected")
	}
}
