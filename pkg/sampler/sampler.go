// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package sampler runs a per-pod GPU utilization measurement loop by
// executing nvidia-smi inside the target pod on a cadence.
package sampler

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cvlab/kube-watchdog/pkg/metrics"
)

const (
	// measurementDuration is how long nvidia-smi loops inside the pod for a
	// single measurement.
	measurementDuration = 21 * time.Second
	// sampleInterval is the intra-measurement cadence passed to nvidia-smi's
	// --loop flag.
	sampleInterval = 3 * time.Second
	// measurementTimeout bounds a single measurement's exec call; must hold
	// measurementTimeout > measurementDuration.
	measurementTimeout = 5*time.Second + 2*measurementDuration
	// Cooldown is the pause between successive measurements.
	Cooldown = 90 * time.Second
)

var gpuQueryFields = []string{"index", "utilization.gpu", "memory.used", "memory.total"}

func gpuQueryCommand() []string {
	return []string{
		"/usr/bin/timeout", strconv.Itoa(int(measurementDuration / time.Second)),
		"/usr/bin/nvidia-smi",
		"--format=csv",
		fmt.Sprintf("--loop=%d", int(sampleInterval/time.Second)),
		fmt.Sprintf("--query-gpu=%s", strings.Join(gpuQueryFields, ",")),
	}
}

// Executor runs a command inside a named pod and returns its combined
// stdout. pkg/k8s.Client implements this.
type Executor interface {
	ExecInPod(ctx context.Context, podName, container string, command []string, stdin io.Reader) ([]byte, error)
}

// Report is one GPU utilization measurement outcome.
type Report struct {
	Memory  float64
	Compute float64
	Date    time.Time
	Error   string
}

// Callback receives each measurement as it completes.
type Callback func(Report)

var sharedHealth = newHealth()

// Sampler measures one pod's GPU utilization in a loop until stopped.
type Sampler struct {
	exec      Executor
	namespace string
	podName   string
	container string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Sampler for podName/container in namespace, using exec to
// run the measurement command.
func New(exec Executor, namespace, podName, container string) *Sampler {
	return &Sampler{exec: exec, namespace: namespace, podName: podName, container: container}
}

// Start begins the measurement loop, delivering each report to callback.
// If the sampler is already running, it is stopped first.
func (s *Sampler) Start(callback Callback) {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.loop(ctx, done, callback)
}

// Stop halts the measurement loop. It is idempotent and safe to call from
// any goroutine; it blocks until the loop has fully exited, so no further
// callbacks are delivered after Stop returns.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	sharedHealth.forget(s.podName)
}

func (s *Sampler) loop(ctx context.Context, done chan struct{}, callback Callback) {
	defer close(done)

	log.Printf(`{"level":"info","msg":"sampler starting","pod":"%s","namespace":"%s"}`,
		s.podName, s.namespace)
	for {
		report := s.measure(ctx)
		if ctx.Err() != nil {
			// Stopped (or the enclosing context was cancelled) while this
			// measurement was in flight: its result is discarded and no
			// callback fires for it.
			return
		}
		s.invokeCallback(callback, report)

		select {
		case <-ctx.Done():
			return
		case <-time.After(Cooldown):
		}
	}
}

func (s *Sampler) measure(ctx context.Context) Report {
	execCtx, cancel := context.WithTimeout(ctx, measurementTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.exec.ExecInPod(execCtx, s.podName, s.container, gpuQueryCommand(), nil)
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		errMsg := err.Error()
		if execCtx.Err() == context.DeadlineExceeded {
			outcome = "timeout"
			errMsg = fmt.Sprintf("timeout at %s", time.Now().UTC().Format(time.RFC3339))
		}
		sharedHealth.recordFailure(s.podName)
		metrics.RecordMeasurement(outcome, elapsed.Seconds())
		log.Printf(`{"level":"warn","msg":"measurement failed","pod":"%s","outcome":"%s","error":"%s"}`,
			s.podName, outcome, err)
		return Report{Date: time.Now(), Error: errMsg}
	}

	report, perr := parseReport(out)
	if perr != nil {
		sharedHealth.recordFailure(s.podName)
		metrics.RecordMeasurement("parse_error", elapsed.Seconds())
		log.Printf(`{"level":"warn","msg":"measurement parse failed","pod":"%s","error":"%s"}`,
			s.podName, perr)
		return Report{Date: time.Now(), Error: perr.Error()}
	}

	sharedHealth.recordSuccess(s.podName)
	metrics.RecordMeasurement("ok", elapsed.Seconds())
	report.Date = time.Now()
	return report
}

func (s *Sampler) invokeCallback(callback Callback, report Report) {
	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf(`{"level":"error","msg":"sampler callback panicked","pod":"%s","panic":"%v"}`,
				s.podName, r)
		}
	}()
	callback(report)
}

func parseReport(out []byte) (Report, error) {
	reader := csv.NewReader(bytes.NewReader(out))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Report{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return Report{}, fmt.Errorf("no data rows in measurement output")
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"utilization.gpu", "memory.used", "memory.total"} {
		if _, ok := col[want]; !ok {
			return Report{}, fmt.Errorf("missing column %q", want)
		}
	}

	var computeSum, memSum float64
	n := 0
	for _, row := range records[1:] {
		if len(row) <= col["memory.total"] {
			continue
		}
		compute, err1 := parsePercentField(row[col["utilization.gpu"]])
		used, err2 := parseFloatField(row[col["memory.used"]])
		total, err3 := parseFloatField(row[col["memory.total"]])
		if err1 != nil || err2 != nil || err3 != nil || total == 0 {
			continue
		}
		computeSum += compute
		memSum += used / total
		n++
	}
	if n == 0 {
		return Report{}, fmt.Errorf("no usable rows in measurement output")
	}

	return Report{
		Compute: round2(computeSum / float64(n)),
		Memory:  round2(memSum / float64(n)),
	}, nil
}

// parsePercentField parses a field like "23 %" into the fraction 0.23.
func parsePercentField(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	return v / 100, nil
}

// parseFloatField parses a field like "1024 MiB" into 1024.
func parseFloatField(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
