// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package fairness computes the deterministic, fair queue ordering over a
// snapshot of pod descriptors.
package fairness

import (
	"sort"

	"github.com/cvlab/kube-watchdog/pkg/pod"
)

// Ordered extends a pod.Descriptor with its position in its owner's queue
// and in the global queue, both expressed as a cumulative GPU count.
type Ordered struct {
	pod.Descriptor

	// UserOrdinal is the cumulative GPU count up to and including this pod
	// within its owner's queue.
	UserOrdinal int

	// GlobalOrdinal is the cumulative GPU count up to and including this
	// pod within the global queue.
	GlobalOrdinal int
}

// Order filters descriptors down to the Running ones and assigns each a
// per-user and a global ordinal. It is pure, total, and deterministic: equal
// input slices (by value) always produce equal output slices.
func Order(descriptors []pod.Descriptor) []Ordered {
	running := make([]pod.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.IsRunning() {
			running = append(running, d)
		}
	}

	byUser := make(map[string][]pod.Descriptor)
	// Anonymous pods (no user label) form their own bucket under the
	// map's zero key, same as the rest; they're handled differently
	// below only in how user ordinals are assigned.
	for _, d := range running {
		byUser[d.User] = append(byUser[d.User], d)
	}

	all := make([]Ordered, 0, len(running))
	for user, pods := range byUser {
		if user != "" {
			all = append(all, orderUserQueue(pods)...)
		} else {
			// Anonymous bucket: no intra-bucket sort, and user_ordinal is
			// set to the pod's own GPU count rather than a cumulative sum.
			// This is not a bug to fix: it produces a different numeric
			// scale than known-user buckets, but the value is only ever
			// used as a global sort key (below), where smaller is
			// preferred — it has the effect of favoring the smallest
			// anonymous requests first. Preserved exactly as specified.
			for _, d := range pods {
				all = append(all, Ordered{Descriptor: d, UserOrdinal: d.NumGPU})
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return globalLess(all[j], all[i]) // higher-is-better: reverse of Less
	})

	gpuSum := 0
	for i := range all {
		gpuSum += all[i].NumGPU
		all[i].GlobalOrdinal = gpuSum
	}

	return all
}

// orderUserQueue sorts one known user's Running pods by the within-user
// composite key and assigns cumulative user ordinals.
func orderUserQueue(pods []pod.Descriptor) []Ordered {
	sorted := make([]pod.Descriptor, len(pods))
	copy(sorted, pods)

	sort.SliceStable(sorted, func(i, j int) bool {
		return userQueueLess(sorted[j], sorted[i]) // higher-is-better
	})

	out := make([]Ordered, len(sorted))
	gpuSum := 0
	for i, d := range sorted {
		gpuSum += d.NumGPU
		out[i] = Ordered{Descriptor: d, UserOrdinal: gpuSum}
	}
	return out
}

// userQueueLess reports whether a ranks strictly below b within the same
// user's queue, i.e. whether b is the "higher is better" winner. Fields, in
// priority order:
//
//  1. CPU-only (num_gpu == 0) pods always outrank GPU pods.
//  2. Higher user_priority wins.
//  3. Earlier date_started wins.
//  4. Lexicographically smaller name wins (final tiebreak).
func userQueueLess(a, b pod.Descriptor) bool {
	aCPU, bCPU := a.NumGPU == 0, b.NumGPU == 0
	if aCPU != bCPU {
		return !aCPU // b (cpu-only) beats a
	}
	if a.UserPriority != b.UserPriority {
		return a.UserPriority < b.UserPriority
	}
	if !a.DateStarted.Equal(b.DateStarted) {
		return a.DateStarted.After(b.DateStarted) // earlier wins
	}
	return a.Name > b.Name // lexicographically smaller wins
}

// globalLess reports whether a ranks strictly below b in the global queue,
// i.e. whether b is the "higher is better" winner. Fields, in priority
// order:
//
//  1. CPU-only pods always outrank GPU pods.
//  2. Known-user pods outrank anonymous pods.
//  3. Smaller user_ordinal wins.
//  4. Earlier date_started wins.
//  5. Lexicographically smaller name wins (final tiebreak).
func globalLess(a, b Ordered) bool {
	aCPU, bCPU := a.NumGPU == 0, b.NumGPU == 0
	if aCPU != bCPU {
		return !aCPU
	}
	aKnown, bKnown := a.HasUser(), b.HasUser()
	if aKnown != bKnown {
		return !aKnown // b (known user) beats a
	}
	if a.UserOrdinal != b.UserOrdinal {
		return a.UserOrdinal > b.UserOrdinal // smaller wins
	}
	if !a.DateStarted.Equal(b.DateStarted) {
		return a.DateStarted.After(b.DateStarted)
	}
	return a.Name > b.Name
}
