// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"sync"

	"github.com/cvlab/kube-watchdog/pkg/metrics"
)

// health tracks per-pod consecutive measurement failures purely for
// observability. Unlike the gateway circuit breaker it's adapted from, it
// never gates or delays measurements — §4.3 requires the sampler loop to run
// forever regardless of failure streaks, so this type only feeds Prometheus
// gauges.
type health struct {
	mu       sync.Mutex
	failures map[string]int
}

func newHealth() *health {
	return &health{failures: make(map[string]int)}
}

// recordSuccess resets a pod's failure streak and reports it as healthy.
func (h *health) recordSuccess(pod string) {
	h.mu.Lock()
	h.failures[pod] = 0
	n := h.failures[pod]
	h.mu.Unlock()

	metrics.SetPodHealth(pod, true)
	metrics.SetPodConsecutiveFailures(pod, n)
}

// recordFailure increments a pod's failure streak and reports unhealthy.
func (h *health) recordFailure(pod string) {
	h.mu.Lock()
	h.failures[pod]++
	n := h.failures[pod]
	h.mu.Unlock()

	metrics.SetPodHealth(pod, false)
	metrics.SetPodConsecutiveFailures(pod, n)
}

// forget drops a pod's tracked state and its metric series, called when the
// sampler stops for good.
func (h *health) forget(pod string) {
	h.mu.Lock()
	delete(h.failures, pod)
	h.mu.Unlock()
	metrics.DeletePod(pod)
}

// consecutiveFailures returns the current failure streak for a pod.
func (h *health) consecutiveFailures(pod string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures[pod]
}
