// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns the live set of pod records, applying normalized
// pod events and sampler callbacks through a single serializing event loop
// and notifying listeners whenever the resulting descriptor list changes.
package supervisor

import (
	"context"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cvlab/kube-watchdog/pkg/eventsource"
	"github.com/cvlab/kube-watchdog/pkg/metrics"
	"github.com/cvlab/kube-watchdog/pkg/pod"
	"github.com/cvlab/kube-watchdog/pkg/record"
	"github.com/cvlab/kube-watchdog/pkg/sampler"
)

// Listener receives the full, name-sorted descriptor list on every state
// change. Listeners run synchronously on the supervisor's event loop
// goroutine; a slow or blocking listener delays the next event's
// processing.
type Listener func([]pod.Descriptor)

// changeSignal carries only a pod name across the reports channel; the
// record itself already stored the new report by the time this fires (see
// record.Record.UpdateUtilization), so the loop goroutine only needs to
// know which record to re-read before republishing.
type changeSignal struct {
	name string
}

// Supervisor is the single owner of all pod records. Its records map is
// touched only by the goroutine running inside Run (via loop); GetPods,
// AddListener and RemoveListener are safe to call from any goroutine
// because they only touch the separately guarded listener set and
// published snapshot.
type Supervisor struct {
	source    *eventsource.Source
	exec      sampler.Executor
	namespace string
	container string

	records map[string]*record.Record
	changes chan changeSignal

	// trackedStatuses is the set of status values reported to
	// metrics.SetPodsTracked on the previous publish, so a status that
	// empties out gets its gauge zeroed instead of left stuck at its last
	// nonzero value.
	trackedStatuses map[string]struct{}

	mu        sync.RWMutex
	listeners map[*Listener]Listener
	current   []pod.Descriptor
}

// New builds a Supervisor that applies events from source, starting
// samplers for Running pods via exec inside namespace/container.
func New(source *eventsource.Source, exec sampler.Executor, namespace, container string) *Supervisor {
	return &Supervisor{
		source:          source,
		exec:            exec,
		namespace:       namespace,
		container:       container,
		records:         make(map[string]*record.Record),
		changes:         make(chan changeSignal, 64),
		trackedStatuses: make(map[string]struct{}),
		listeners:       make(map[*Listener]Listener),
	}
}

// GetPods returns the current descriptor list, sorted by name ascending.
func (s *Supervisor) GetPods() []pod.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pod.Descriptor, len(s.current))
	copy(out, s.current)
	return out
}

// AddListener registers a listener, invoked on every future state change.
// It returns a handle for RemoveListener.
func (s *Supervisor) AddListener(l Listener) *Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &l
	s.listeners[h] = l
	return h
}

// RemoveListener unregisters a listener previously returned by AddListener.
func (s *Supervisor) RemoveListener(h *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, h)
}

// Run drives the event source and the supervisor's single serializing event
// loop until ctx is cancelled; neither task returns an error, so the result
// is always nil. It returns only after every owned sampler has been stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	events := make(chan eventsource.Event, 64)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.source.Run(gctx, events)
		return nil
	})
	g.Go(func() error {
		s.loop(gctx, events)
		return nil
	})

	return g.Wait()
}

func (s *Supervisor) loop(ctx context.Context, events <-chan eventsource.Event) {
	defer s.disposeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.applyEvent(ev)
			s.publish()
		case sig := <-s.changes:
			if _, ok := s.records[sig.name]; ok {
				s.publish()
			}
		}
	}
}

func (s *Supervisor) applyEvent(ev eventsource.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf(`{"level":"error","msg":"panic applying pod event","pod":"%s","panic":"%v"}`,
				ev.Name, r)
		}
	}()

	switch ev.Kind {
	case eventsource.Added, eventsource.Modified:
		s.applyUpsert(ev)
	case eventsource.Deleted:
		s.applyDelete(ev.Name)
	default:
		log.Printf(`{"level":"warn","msg":"dropping event of unrecognized kind","kind":"%s","pod":"%s"}`,
			ev.Kind, ev.Name)
	}
}

func (s *Supervisor) applyUpsert(ev eventsource.Event) {
	if ev.Pod == nil {
		log.Printf(`{"level":"warn","msg":"dropping upsert event with no snapshot","pod":"%s"}`, ev.Name)
		return
	}

	if existing, ok := s.records[ev.Name]; ok {
		existing.UpdateDescriptor(ev.Pod)
		return
	}

	name := ev.Name
	s.records[name] = record.New(s.exec, s.namespace, s.container, ev.Pod, func() {
		s.changes <- changeSignal{name: name}
	})
}

func (s *Supervisor) applyDelete(name string) {
	r, ok := s.records[name]
	if !ok {
		return
	}
	delete(s.records, name)
	r.Dispose()
}

// Utilization returns the latest utilization report recorded for name, and
// whether one has been recorded yet. It is used by pkg/snapshot to fold
// utilization data into the published ordering.
func (s *Supervisor) Utilization(name string) (sampler.Report, bool) {
	r, ok := s.records[name]
	if !ok {
		return sampler.Report{}, false
	}
	return r.Utilization()
}

func (s *Supervisor) publish() {
	descriptors := make([]pod.Descriptor, 0, len(s.records))
	for _, r := range s.records {
		descriptors = append(descriptors, r.Descriptor())
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	s.reportPodsTracked(descriptors)

	s.mu.Lock()
	s.current = descriptors
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.notify(l, descriptors)
	}
}

func (s *Supervisor) notify(l Listener, descriptors []pod.Descriptor) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf(`{"level":"error","msg":"listener panicked","panic":"%v"}`, r)
		}
	}()
	l(descriptors)
}

// reportPodsTracked publishes the per-status pod count gauge. A status that
// held pods on the previous publish but holds none now is explicitly zeroed,
// so its gauge doesn't stay stuck at its last nonzero value.
func (s *Supervisor) reportPodsTracked(descriptors []pod.Descriptor) {
	counts := make(map[string]int, len(s.trackedStatuses))
	for _, d := range descriptors {
		counts[string(d.Status)]++
	}
	for status := range s.trackedStatuses {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	for status, n := range counts {
		metrics.SetPodsTracked(status, n)
	}

	s.trackedStatuses = make(map[string]struct{}, len(counts))
	for status := range counts {
		s.trackedStatuses[status] = struct{}{}
	}
}

func (s *Supervisor) disposeAll() {
	for name, r := range s.records {
		r.Dispose()
		delete(s.records, name)
	}
}
