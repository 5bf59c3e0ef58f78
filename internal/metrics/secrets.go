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
	// PolicyEvaluations tracks policy conjunction evaluations.
	PolicyEvaluations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluations_total",
			Help:      "Total number of policy evaluations",
		},
		[]string{"result"}, // allowed, denied
	)

	// MeasurementMismatches tracks launch measurement reconstruction
	// failures.
	MeasurementMismatches = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "measurement_mismatches_total",
			Help:      "Total number of launch measurement mismatches",
		},
	)

	// SecretPacketsBuilt tracks OVMF secret-table builds by format.
	SecretPacketsBuilt = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "secrets",
			Name:      "packets_built_total",
			Help:      "Total number of secret packets built",
		},
		[]string{"format"}, // bundle, keyset, raw, resource, reportdata
	)

	// SecretPacketBuildDuration tracks secret-packet assembly latency.
	SecretPacketBuildDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "secrets",
			Name:      "build_duration_seconds",
			Help:      "Secret packet build duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to 409ms
		},
	)

	// SecretPacketSize tracks the size of the encrypted LAUNCH_SECRET blob.
	SecretPacketSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "secrets",
			Name:      "packet_size_bytes",
			Help:      "Size of the encrypted secret packet in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)
