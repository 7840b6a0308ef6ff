// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMeasurement(t *testing.T) {
	SamplerMeasurementDuration.Reset()
	SamplerMeasurementsTotal.Reset()

	RecordMeasurement("ok", 3.5)
	RecordMeasurement("timeout", 47.0)
	RecordMeasurement("ok", 2.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(SamplerMeasurementsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(SamplerMeasurementsTotal.WithLabelValues("timeout")))
	assert.Greater(t, testutil.CollectAndCount(SamplerMeasurementDuration), 0)
}

func TestSetPodHealth(t *testing.T) {
	SetPodHealth("pod-a", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(PodHealthy.WithLabelValues("pod-a")))

	SetPodHealth("pod-a", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(PodHealthy.WithLabelValues("pod-a")))
}

func TestSetPodConsecutiveFailures(t *testing.T) {
	SetPodConsecutiveFailures("pod-b", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(PodConsecutiveFailures.WithLabelValues("pod-b")))
}

func TestSetPodsTracked(t *testing.T) {
	SetPodsTracked("Running", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(PodsTracked.WithLabelValues("Running")))
}

func TestSetQueueOrdinal(t *testing.T) {
	SetQueueOrdinal("pod-c", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(QueueGlobalOrdinal.WithLabelValues("pod-c")))
}

func TestDeletePod_RemovesSeries(t *testing.T) {
	SetPodHealth("pod-d", true)
	SetPodConsecutiveFailures("pod-d", 2)
	SetQueueOrdinal("pod-d", 5)

	DeletePod("pod-d")

	assert.Equal(t, float64(0), testutil.ToFloat64(PodHealthy.WithLabelValues("pod-d")))
	assert.Equal(t, float64(0), testutil.ToFloat64(PodConsecutiveFailures.WithLabelValues("pod-d")))
	assert.Equal(t, float64(0), testutil.ToFloat64(QueueGlobalOrdinal.WithLabelValues("pod-d")))
}
