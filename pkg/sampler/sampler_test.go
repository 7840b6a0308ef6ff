// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu       sync.Mutex
	calls    int
	response []byte
	err      error
	block    bool
}

func (f *fakeExecutor) ExecInPod(ctx context.Context, podName, container string, command []string, stdin io.Reader) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return f.response, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const sampleCSV = "index, utilization.gpu, memory.used, memory.total\n" +
	"0, 25 %, 1000 MiB, 4000 MiB\n" +
	"0, 75 %, 3000 MiB, 4000 MiB\n"

func TestSampler_MeasureSuccess(t *testing.T) {
	exec := &fakeExecutor{response: []byte(sampleCSV)}
	s := New(exec, "ns1", "pod-a", "main")

	report := s.measure(context.Background())

	require.Empty(t, report.Error)
	assert.InDelta(t, 0.5, report.Compute, 0.001) // mean(0.25, 0.75)
	assert.InDelta(t, 0.5, report.Memory, 0.001)  // mean(0.25, 0.75)
	assert.False(t, report.Date.IsZero())
}

func TestSampler_MeasureGenericError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exec boom")}
	s := New(exec, "ns1", "pod-b", "main")

	report := s.measure(context.Background())

	assert.Equal(t, "exec boom", report.Error)
}

func TestSampler_MeasureTimeout(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, "ns1", "pod-c", "main")

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	report := s.measure(expired)
	assert.Contains(t, report.Error, "timeout at")
}

func TestSampler_MeasureParseError(t *testing.T) {
	exec := &fakeExecutor{response: []byte("garbage,data\nnot,csv,we,expect\n")}
	s := New(exec, "ns1", "pod-d", "main")

	report := s.measure(context.Background())
	assert.NotEmpty(t, report.Error)
}

func TestSampler_StartStopLifecycle(t *testing.T) {
	exec := &fakeExecutor{block: true}
	s := New(exec, "ns1", "pod-e", "main")

	reports := make(chan Report, 8)
	s.Start(func(r Report) { reports <- r })

	// Give the loop a moment to enter its blocking measurement.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return promptly")
	}

	// The cancelled measurement's result is discarded, and no report should
	// arrive after Stop returns.
	before := len(reports)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, len(reports))
}

func TestSampler_Stop_IdempotentWhenNeverStarted(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, "ns1", "pod-f", "main")
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}

func TestSampler_InvokeCallback_RecoversPanic(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, "ns1", "pod-g", "main")

	assert.NotPanics(t, func() {
		s.invokeCallback(func(Report) { panic("boom") }, Report{})
	})
}

func TestParsePercentField(t *testing.T) {
	v, err := parsePercentField("42 %")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, v, 0.0001)

	_, err = parsePercentField("")
	assert.Error(t, err)
}

func TestParseFloatField(t *testing.T) {
	v, err := parseFloatField("2048 MiB")
	require.NoError(t, err)
	assert.Equal(t, float64(2048), v)
}

func TestParseReport_MissingColumn(t *testing.T) {
	_, err := parseReport([]byte("index, memory.used, memory.total\n0, 10, 20\n"))
	assert.Error(t, err)
}

func TestParseReport_NoDataRows(t *testing.T) {
	_, err := parseReport([]byte("index, utilization.gpu, memory.used, memory.total\n"))
	assert.Error(t, err)
}
