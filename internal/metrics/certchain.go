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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CertChainVerifications tracks PDH-to-ARK chain verifications
	CertChainVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certchain",
			Name:      "verifications_total",
			Help:      "Total number of certificate chain verifications",
		},
		[]string{"status"}, // accepted, rejected
	)

	// CertChainVerifyDuration tracks chain verification latency
	CertChainVerifyDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "certchain",
			Name:      "verify_duration_seconds",
			Help:      "Certificate chain verification duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to 1.6s
		},
	)

	// ReportKeypairSignatures tracks signatures produced with the broker's
	// ReportKeypair.
	ReportKeypairSignatures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certchain",
			Name:      "report_keypair_signatures_total",
			Help:      "Total number of signatures produced with the ReportKeypair",
		},
	)
)
