// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot builds the published JSON view of the fair queue: a
// supervisor listener that, on every state change, recomputes the fairness
// ordering and caches the serialized result for cheap concurrent reads by
// the web surface.
package snapshot

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/cvlab/kube-watchdog/pkg/fairness"
	"github.com/cvlab/kube-watchdog/pkg/metrics"
	"github.com/cvlab/kube-watchdog/pkg/pod"
	"github.com/cvlab/kube-watchdog/pkg/sampler"
)

// UtilizationSource looks up the latest utilization report recorded for a
// pod name. *supervisor.Supervisor implements this; it is expressed as an
// interface here so pkg/snapshot does not import pkg/supervisor.
type UtilizationSource interface {
	Utilization(name string) (sampler.Report, bool)
}

// entry is the published JSON shape for one pod: a fairness.Ordered pod
// descriptor with its latest utilization folded into the same record.
// Utilization fields are omitted entirely when no measurement has been
// recorded yet, rather than serialized as null.
type entry struct {
	Name          string    `json:"name"`
	User          string    `json:"user,omitempty"`
	Status        string    `json:"status"`
	DateCreated   time.Time `json:"date_created"`
	DateStarted   time.Time `json:"date_started"`
	NumGPU        int       `json:"num_gpu"`
	UserPriority  int       `json:"user_priority"`
	UserOrdinal   int       `json:"user_ordinal"`
	GlobalOrdinal int       `json:"global_ordinal"`

	UtilizationMemory  *float64   `json:"utilization_memory,omitempty"`
	UtilizationCompute *float64   `json:"utilization_compute,omitempty"`
	UtilizationDate    *time.Time `json:"utilization_date,omitempty"`
	UtilizationError   string     `json:"utilization_error,omitempty"`
}

// UtilizationView is the per-pod utilization slice of a published entry,
// exposed so pkg/webui can render a single pod's detail page without ever
// touching the supervisor's record map from an HTTP handler goroutine.
type UtilizationView struct {
	Memory  *float64
	Compute *float64
	Date    *time.Time
	Error   string
}

// Publisher is a pkg/supervisor.Listener that keeps a cached JSON rendering
// of the current fair ordering. Reads (JSON, UtilizationFor) are lock-free
// via atomic.Value swaps; writes happen only from the supervisor's
// serializing event loop goroutine (the goroutine that calls supervisor
// listeners), so there is at most one writer at a time even though
// atomic.Value itself would not otherwise guarantee that.
type Publisher struct {
	util    UtilizationSource
	current atomic.Value // string
	views   atomic.Value // map[string]UtilizationView
}

// New builds a Publisher that folds utilization data from util into each
// published pod.
func New(util UtilizationSource) *Publisher {
	p := &Publisher{util: util}
	p.current.Store("[]")
	p.views.Store(map[string]UtilizationView{})
	return p
}

// JSON returns the most recently published snapshot, verbatim.
func (p *Publisher) JSON() string {
	return p.current.Load().(string)
}

// UtilizationFor returns the latest published utilization view for a pod
// name, and whether one was found in the last published snapshot. Unlike
// UtilizationSource.Utilization, this is safe to call from any goroutine.
func (p *Publisher) UtilizationFor(name string) (UtilizationView, bool) {
	views := p.views.Load().(map[string]UtilizationView)
	v, ok := views[name]
	return v, ok
}

// OnStateChange is registered as a pkg/supervisor.Listener. It recomputes
// the fairness ordering over descriptors, folds in utilization, serializes,
// and swaps in the new cached JSON.
func (p *Publisher) OnStateChange(descriptors []pod.Descriptor) {
	start := time.Now()
	defer func() { metrics.SnapshotBuildDuration.Observe(time.Since(start).Seconds()) }()

	ordered := fairness.Order(descriptors)
	entries := make([]entry, 0, len(ordered))
	views := make(map[string]UtilizationView, len(ordered))
	for _, o := range ordered {
		e := p.buildEntry(o)
		entries = append(entries, e)
		metrics.SetQueueOrdinal(o.Name, o.GlobalOrdinal)
		views[o.Name] = UtilizationView{
			Memory:  e.UtilizationMemory,
			Compute: e.UtilizationCompute,
			Date:    e.UtilizationDate,
			Error:   e.UtilizationError,
		}
	}

	out, err := json.Marshal(entries)
	if err != nil {
		log.Printf(`{"level":"error","msg":"failed to marshal snapshot","error":"%s"}`, err)
		return
	}
	p.current.Store(string(out))
	p.views.Store(views)
}

func (p *Publisher) buildEntry(o fairness.Ordered) entry {
	e := entry{
		Name:          o.Name,
		User:          o.User,
		Status:        string(o.Status),
		DateCreated:   o.DateCreated,
		DateStarted:   o.DateStarted,
		NumGPU:        o.NumGPU,
		UserPriority:  o.UserPriority,
		UserOrdinal:   o.UserOrdinal,
		GlobalOrdinal: o.GlobalOrdinal,
	}

	report, ok := p.util.Utilization(o.Name)
	if !ok {
		return e
	}
	if report.Error != "" {
		e.UtilizationError = report.Error
		return e
	}
	mem, compute, date := report.Memory, report.Compute, report.Date
	e.UtilizationMemory = &mem
	e.UtilizationCompute = &compute
	e.UtilizationDate = &date
	return e
}
