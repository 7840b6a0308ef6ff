// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package record holds the mutable per-pod aggregate the supervisor keeps:
// the latest descriptor, the latest utilization report, and the sampler
// that produces it.
package record

import (
	"sync"

	corev1 "k8s.io/api/core/v1"

	"github.com/cvlab/kube-watchdog/pkg/pod"
	"github.com/cvlab/kube-watchdog/pkg/sampler"
)

// Record is a mutable aggregate owned by exactly one caller at a time for
// writes (the supervisor's event loop serializes UpdateDescriptor/Dispose),
// while UpdateUtilization may arrive concurrently from the record's own
// sampler goroutine. All access goes through the mutex below.
//
// Record never references its owner: onChange is a plain closure, not a
// supervisor type, so this package has no dependency on pkg/supervisor.
type Record struct {
	name      string
	namespace string
	container string
	exec      sampler.Executor
	onChange  func()

	mu             sync.Mutex
	descriptor     pod.Descriptor
	utilization    sampler.Report
	hasUtilization bool
	samp           *sampler.Sampler
}

// New builds a Record from the first snapshot observed for a pod, starting
// a sampler immediately if the pod is already Running. onChange is invoked
// (from whatever goroutine a sampler callback runs on) whenever a new
// utilization report differs from the previous one.
func New(exec sampler.Executor, namespace, container string, raw *corev1.Pod, onChange func()) *Record {
	r := &Record{
		name:      raw.Name,
		namespace: namespace,
		container: container,
		exec:      exec,
		onChange:  onChange,
	}
	r.applyDescriptor(pod.Extract(raw))
	return r
}

// UpdateDescriptor extracts a new descriptor from raw, stores it, and
// enforces the invariant that a sampler is running iff the descriptor's
// status is Running.
func (r *Record) UpdateDescriptor(raw *corev1.Pod) {
	r.applyDescriptor(pod.Extract(raw))
}

func (r *Record) applyDescriptor(d pod.Descriptor) {
	r.mu.Lock()
	r.descriptor = d
	running := d.IsRunning()

	var toStop *sampler.Sampler
	startNew := false
	switch {
	case running && r.samp == nil:
		startNew = true
	case !running && r.samp != nil:
		toStop = r.samp
		r.samp = nil
	}
	r.mu.Unlock()

	if toStop != nil {
		toStop.Stop()
	}
	if startNew {
		s := sampler.New(r.exec, r.namespace, r.name, r.container)
		r.mu.Lock()
		r.samp = s
		r.mu.Unlock()
		s.Start(r.UpdateUtilization)
	}
}

// UpdateUtilization stores report as the latest measurement and invokes
// onChange iff it differs (by value) from the previously stored report.
// It is the sampler callback routed in by applyDescriptor.
func (r *Record) UpdateUtilization(report sampler.Report) {
	r.mu.Lock()
	changed := !r.hasUtilization || report != r.utilization
	r.utilization = report
	r.hasUtilization = true
	r.mu.Unlock()

	if changed && r.onChange != nil {
		r.onChange()
	}
}

// Descriptor returns the most recently stored descriptor.
func (r *Record) Descriptor() pod.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.descriptor
}

// Utilization returns the most recently stored report, and whether any
// report has been recorded yet.
func (r *Record) Utilization() (sampler.Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.utilization, r.hasUtilization
}

// Dispose stops the owned sampler, if any. It is idempotent and must be
// called exactly once the record is no longer reachable (on DELETED or
// supervisor shutdown).
func (r *Record) Dispose() {
	r.mu.Lock()
	s := r.samp
	r.samp = nil
	r.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}
