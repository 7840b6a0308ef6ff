// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

package eventsource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/cvlab/kube-watchdog/pkg/k8s"
)

func waitForEvent(t *testing.T, sink <-chan Event, kind Kind, name string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sink:
			if ev.Kind == kind && ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, name)
		}
	}
}

func TestSource_InitialListDeliversAdded(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "ns1"},
	})
	client := k8s.NewClientWithConfig(clientset, nil, "ns1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan Event, 16)
	src := New(client.PodListWatch())
	go src.Run(ctx, sink)

	ev := waitForEvent(t, sink, Added, "p0")
	require.NotNil(t, ev.Pod)
	require.Equal(t, "p0", ev.Pod.Name)
}

func TestSource_WatchDeliversAddModifyDelete(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := k8s.NewClientWithConfig(clientset, nil, "ns1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan Event, 16)
	src := New(client.PodListWatch())
	go src.Run(ctx, sink)

	_, err := clientset.CoreV1().Pods("ns1").Create(ctx, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "ns1"},
	}, metav1.CreateOptions{})
	require.NoError(t, err)
	waitForEvent(t, sink, Added, "p1")

	_, err = clientset.CoreV1().Pods("ns1").Update(ctx, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "ns1", Labels: map[string]string{"user": "alice"}},
	}, metav1.UpdateOptions{})
	require.NoError(t, err)
	waitForEvent(t, sink, Modified, "p1")

	err = clientset.CoreV1().Pods("ns1").Delete(ctx, "p1", metav1.DeleteOptions{})
	require.NoError(t, err)
	waitForEvent(t, sink, Deleted, "p1")
}

func TestSource_StopsOnCancellation(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := k8s.NewClientWithConfig(clientset, nil, "ns1")

	ctx, cancel := context.WithCancel(context.Background())
	sink := make(chan Event, 4)
	src := New(client.PodListWatch())

	done := make(chan struct{})
	go func() {
		src.Run(ctx, sink)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
