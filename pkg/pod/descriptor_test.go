// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

package pod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func gpuContainer(name string, gpuLimit string) corev1.Container {
	c := corev1.Container{Name: name}
	if gpuLimit != "" {
		c.Resources.Limits = corev1.ResourceList{
			gpuResourceName: resource.MustParse(gpuLimit),
		}
	}
	return c
}

func TestExtract(t *testing.T) {
	created := metav1.NewTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	startedEarlier := metav1.NewTime(time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC))
	startedLater := metav1.NewTime(time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC))

	tests := []struct {
		name string
		pod  *corev1.Pod
		want Descriptor
	}{
		{
			name: "minimal pod with no labels uses defaults",
			pod: &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{
					Name:              "p1",
					CreationTimestamp: created,
				},
				Status: corev1.PodStatus{Phase: corev1.PodPending},
			},
			want: Descriptor{
				Name:        "p1",
				User:        "",
				Status:      "Pending",
				DateCreated: created.Time,
				DateStarted: created.Time,
			},
		},
		{
			name: "user and priority labels",
			pod: &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{
					Name:              "p2",
					CreationTimestamp: created,
					Labels:            map[string]string{"user": "alice", "priority": "5"},
				},
				Status: corev1.PodStatus{Phase: corev1.PodRunning},
			},
			want: Descriptor{
				Name:         "p2",
				User:         "alice",
				Status:       Running,
				DateCreated:  created.Time,
				DateStarted:  created.Time,
				UserPriority: 5,
			},
		},
		{
			name: "non-numeric priority falls back to zero",
			pod: &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{
					Name:              "p3",
					CreationTimestamp: created,
					Labels:            map[string]string{"priority": "urgent"},
				},
			},
			want: Descriptor{
				Name:         "p3",
				DateCreated:  created.Time,
				DateStarted:  created.Time,
				UserPriority: 0,
			},
		},
		{
			name: "gpu limits summed across containers, missing limit contributes zero",
			pod: &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{Name: "p4", CreationTimestamp: created},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						gpuContainer("a", "2"),
						gpuContainer("b", ""),
						gpuContainer("c", "1"),
					},
				},
			},
			want: Descriptor{
				Name:        "p4",
				DateCreated: created.Time,
				DateStarted: created.Time,
				NumGPU:      3,
			},
		},
		{
			name: "date started falls back to the latest running container seen",
			pod: &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{Name: "p5", CreationTimestamp: created},
				Status: corev1.PodStatus{
					Phase: corev1.PodRunning,
					ContainerStatuses: []corev1.ContainerStatus{
						{State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{StartedAt: startedLater}}},
						{State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{StartedAt: startedEarlier}}},
					},
				},
			},
			want: Descriptor{
				Name:        "p5",
				Status:      Running,
				DateCreated: created.Time,
				// last one observed wins, not the earliest — preserved quirk
				DateStarted: startedEarlier.Time,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.pod)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescriptor_IsRunningAndHasUser(t *testing.T) {
	running := Descriptor{Status: Running, User: "bob"}
	require.True(t, running.IsRunning())
	require.True(t, running.HasUser())

	pending := Descriptor{Status: "Pending"}
	assert.False(t, pending.IsRunning())
	assert.False(t, pending.HasUser())
}
