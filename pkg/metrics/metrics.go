// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus metrics for the watchdog supervisor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PodsTracked tracks the number of pods currently held by the supervisor,
	// by run status.
	PodsTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_pods_tracked",
			Help: "Number of pods currently tracked by the supervisor, by status",
		},
		[]string{"status"},
	)

	// SamplerMeasurementsTotal counts utilization measurements by outcome.
	SamplerMeasurementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_sampler_measurements_total",
			Help: "Total GPU utilization measurements, by outcome",
		},
		[]string{"outcome"},
	)

	// SamplerMeasurementDuration tracks how long a single measurement
	// round-trip (exec into the pod, read the CSV stream) takes.
	SamplerMeasurementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "watchdog_sampler_measurement_duration_seconds",
			Help: "Sampler measurement duration in seconds",
			// Measurement loop runs ~21s with a 47s timeout; buckets span
			// below, around and above that window.
			Buckets: []float64{1, 5, 10, 21, 30, 47, 60, 90},
		},
		[]string{"outcome"},
	)

	// PodHealthy tracks per-pod sampler health (1=healthy, 0=unhealthy).
	PodHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_pod_healthy",
			Help: "Sampler health per pod (1=healthy, 0=unhealthy)",
		},
		[]string{"pod"},
	)

	// PodConsecutiveFailures tracks the current consecutive-failure streak
	// per pod, for operators triaging a single stuck pod.
	PodConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_pod_consecutive_failures",
			Help: "Consecutive failed measurements for a pod's sampler",
		},
		[]string{"pod"},
	)

	// QueueGlobalOrdinal tracks the most recently published global ordinal
	// per pod, letting operators chart queue position over time.
	QueueGlobalOrdinal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_queue_global_ordinal",
			Help: "Most recently published global queue ordinal for a pod",
		},
		[]string{"pod"},
	)

	// SnapshotBuildDuration tracks how long it takes to recompute the fair
	// ordering and render the published snapshot.
	SnapshotBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchdog_snapshot_build_duration_seconds",
			Help:    "Snapshot rebuild duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordMeasurement records the outcome and duration of one sampler
// measurement.
func RecordMeasurement(outcome string, durationSeconds float64) {
	SamplerMeasurementsTotal.WithLabelValues(outcome).Inc()
	SamplerMeasurementDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// SetPodHealth sets the sampler health gauge for a pod.
func SetPodHealth(pod string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	PodHealthy.WithLabelValues(pod).Set(value)
}

// SetPodConsecutiveFailures sets the consecutive-failure gauge for a pod.
func SetPodConsecutiveFailures(pod string, n int) {
	PodConsecutiveFailures.WithLabelValues(pod).Set(float64(n))
}

// SetPodsTracked sets the tracked-pod gauge for a given status.
func SetPodsTracked(status string, n int) {
	PodsTracked.WithLabelValues(status).Set(float64(n))
}

// SetQueueOrdinal records the latest global ordinal published for a pod.
func SetQueueOrdinal(pod string, ordinal int) {
	QueueGlobalOrdinal.WithLabelValues(pod).Set(float64(ordinal))
}

// DeletePod removes all per-pod gauge series for a pod that has left the
// cluster, so stale series don't linger in /metrics forever.
func DeletePod(pod string) {
	PodHealthy.DeleteLabelValues(pod)
	PodConsecutiveFailures.DeleteLabelValues(pod)
	QueueGlobalOrdinal.DeleteLabelValues(pod)
}
