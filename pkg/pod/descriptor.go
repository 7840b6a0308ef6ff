// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package pod extracts immutable, comparable descriptors from raw cluster pod
// snapshots.
package pod

import (
	"log"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// gpuResourceName is the resource limit key the device plugin populates.
const gpuResourceName = "nvidia.com/gpu"

const (
	labelUser     = "user"
	labelPriority = "priority"
)

// Status mirrors the cluster's pod run-phase, with Running distinguished from
// every other value.
type Status string

// Running is the only status value the rest of the system treats specially;
// every other value (Pending, Succeeded, Failed, Unknown, or anything else a
// future API version introduces) is "not running".
const Running Status = "Running"

// Descriptor is an immutable value extracted from a raw pod snapshot. Two
// Descriptors with equal fields are interchangeable; a Descriptor has no
// identity beyond Name.
type Descriptor struct {
	Name string

	// User is the owner label, or "" when absent ("anonymous" in the sense
	// of the fairness ordering, §4.6).
	User string

	Status Status

	DateCreated time.Time
	DateStarted time.Time

	NumGPU int

	UserPriority int
}

// IsRunning reports whether the descriptor's status is the distinguished
// Running value.
func (d Descriptor) IsRunning() bool {
	return d.Status == Running
}

// HasUser reports whether the pod carries a non-empty owner label.
func (d Descriptor) HasUser() bool {
	return d.User != ""
}

// Extract builds a Descriptor from a raw pod snapshot. Extraction is pure and
// total: every sub-field that cannot be recovered falls back to its
// documented default rather than failing.
func Extract(raw *corev1.Pod) Descriptor {
	labels := raw.Labels // nil map reads as zero-value, no nil guard needed

	d := Descriptor{
		Name:         raw.Name,
		User:         labels[labelUser],
		Status:       Status(raw.Status.Phase),
		DateCreated:  raw.CreationTimestamp.Time,
		UserPriority: extractPriority(raw.Name, labels[labelPriority]),
		NumGPU:       extractNumGPU(raw),
	}

	d.DateStarted = extractStartedAt(raw)
	if d.DateStarted.IsZero() {
		d.DateStarted = d.DateCreated
	}

	return d
}

// extractPriority parses the priority label. A missing label parses as "0"
// (the default), matching the zero value int() conversion would give in the
// original; a non-numeric value also falls back to 0 and is logged at INFO.
func extractPriority(podName, raw string) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf(`{"level":"info","msg":"non-numeric priority label",`+
			`"pod":"%s","value":"%s"}`, podName, raw)
		return 0
	}
	return v
}

// extractNumGPU sums the nvidia.com/gpu resource limit across containers. A
// missing limit or missing key contributes 0; an unparseable value
// contributes 0 and logs a warning.
func extractNumGPU(raw *corev1.Pod) int {
	total := 0
	for _, c := range raw.Spec.Containers {
		limit, ok := c.Resources.Limits[gpuResourceName]
		if !ok {
			continue
		}
		n, ok := limit.AsInt64()
		if !ok {
			log.Printf(`{"level":"warn","msg":"unexpected nvidia.com/gpu limit value",`+
				`"pod":"%s","container":"%s","value":"%s"}`,
				raw.Name, c.Name, limit.String())
			continue
		}
		total += int(n)
	}
	return total
}

// extractStartedAt returns the started_at instant of a running container
// status. When multiple container statuses are currently running, the last
// one observed while iterating wins — this mirrors a known quirk of the
// system this was distilled from (a "# TODO get earlier date" comment marks
// it there too); it is preserved here rather than "fixed" to the earliest
// start. Returns the zero Time when no container is running.
func extractStartedAt(raw *corev1.Pod) time.Time {
	var startedAt time.Time
	for _, cs := range raw.Status.ContainerStatuses {
		if cs.State.Running != nil {
			startedAt = cs.State.Running.StartedAt.Time
		}
	}
	return startedAt
}
