// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package eventsource normalizes a Kubernetes pod watch stream into a simple
// (kind, name, snapshot) event sequence, reconnecting on any failure.
package eventsource

import (
	"context"
	"log"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/cache"
)

// Kind is the normalized event kind. Only Added, Modified and Deleted ever
// reach a Source's sink; any event the reflector's store cannot interpret as
// one of these is logged and dropped.
type Kind string

const (
	Added    Kind = "ADDED"
	Modified Kind = "MODIFIED"
	Deleted  Kind = "DELETED"
)

// Event is one normalized pod event.
type Event struct {
	Kind Kind
	Name string
	Pod  *corev1.Pod
}

// ReconnectBackoff is the fixed delay between reconnection attempts after the
// underlying watch ends or errors, applied explicitly by Run rather than left
// to the Reflector's own backoff manager.
const ReconnectBackoff = 5 * time.Second

const reflectorName = "pod-watchdog"

// Source wraps a cache.ListWatch (typically pkg/k8s.Client.PodListWatch) and
// runs a cache.Reflector over it, translating Add/Update/Delete calls into
// normalized events.
type Source struct {
	listWatch *cache.ListWatch
	backoff   time.Duration
}

// New builds a Source over the given ListWatch.
func New(listWatch *cache.ListWatch) *Source {
	return &Source{listWatch: listWatch, backoff: ReconnectBackoff}
}

// Run delivers events to sink in arrival order until ctx is cancelled. It
// never returns an error: stream disconnects and watch errors are logged and
// retried after ReconnectBackoff. The only terminal condition is ctx
// cancellation, after which Run returns.
func (s *Source) Run(ctx context.Context, sink chan<- Event) {
	store := newEventStore(sink)
	reflector := cache.NewNamedReflector(reflectorName, s.listWatch, &corev1.Pod{}, store, 0)

	for {
		if ctx.Err() != nil {
			return
		}

		err := reflector.ListAndWatch(ctx.Done())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf(`{"level":"warn","msg":"pod watch ended, reconnecting",`+
				`"error":"%s","backoff":"%s"}`, err, s.backoff)
		} else {
			log.Printf(`{"level":"info","msg":"pod watch window closed, reconnecting",`+
				`"backoff":"%s"}`, s.backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff):
		}
	}
}

// eventStore implements cache.Store, translating reflector callbacks into
// normalized Events pushed onto sink. Add/Update/Delete/Replace are the only
// methods that matter; List/ListKeys/Get/GetByKey/Resync exist only to
// satisfy the interface and are backed by a plain mutex-guarded map.
type eventStore struct {
	mu   sync.Mutex
	seen map[string]*corev1.Pod

	sink chan<- Event
}

func newEventStore(sink chan<- Event) *eventStore {
	return &eventStore{seen: make(map[string]*corev1.Pod), sink: sink}
}

func (s *eventStore) Add(obj interface{}) error {
	pod, name, ok := s.asPod(obj)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.seen[name] = pod
	s.mu.Unlock()
	s.sink <- Event{Kind: Added, Name: name, Pod: pod}
	return nil
}

func (s *eventStore) Update(obj interface{}) error {
	pod, name, ok := s.asPod(obj)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.seen[name] = pod
	s.mu.Unlock()
	s.sink <- Event{Kind: Modified, Name: name, Pod: pod}
	return nil
}

func (s *eventStore) Delete(obj interface{}) error {
	if d, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = d.Obj
	}
	pod, name, ok := s.asPod(obj)
	if !ok {
		return nil
	}
	s.mu.Lock()
	delete(s.seen, name)
	s.mu.Unlock()
	s.sink <- Event{Kind: Deleted, Name: name, Pod: pod}
	return nil
}

// Replace is called once per (re)list with the full current set of objects.
// Every item is delivered as Added (this is the "state rebuilt from the
// event source's initial listing" path, §6); any previously seen name no
// longer present is delivered as Deleted.
func (s *eventStore) Replace(items []interface{}, _ string) error {
	current := make(map[string]*corev1.Pod, len(items))
	for _, item := range items {
		pod, name, ok := s.asPod(item)
		if !ok {
			continue
		}
		current[name] = pod
	}

	s.mu.Lock()
	stale := make([]string, 0, len(s.seen))
	for name := range s.seen {
		if _, ok := current[name]; !ok {
			stale = append(stale, name)
		}
	}
	s.seen = current
	s.mu.Unlock()

	for _, name := range stale {
		s.sink <- Event{Kind: Deleted, Name: name}
	}
	for name, pod := range current {
		s.sink <- Event{Kind: Added, Name: name, Pod: pod}
	}
	return nil
}

func (s *eventStore) Resync() error { return nil }

func (s *eventStore) List() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, 0, len(s.seen))
	for _, pod := range s.seen {
		out = append(out, pod)
	}
	return out
}

func (s *eventStore) ListKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.seen))
	for name := range s.seen {
		out = append(out, name)
	}
	return out
}

func (s *eventStore) Get(obj interface{}) (interface{}, bool, error) {
	_, name, ok := s.asPod(obj)
	if !ok {
		return nil, false, nil
	}
	return s.GetByKey(name)
}

func (s *eventStore) GetByKey(key string) (interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pod, ok := s.seen[key]
	return pod, ok, nil
}

func (s *eventStore) asPod(obj interface{}) (*corev1.Pod, string, bool) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		log.Printf(`{"level":"warn","msg":"dropping unrecognized watch object"}`)
		return nil, "", false
	}
	if pod.Name == "" {
		log.Printf(`{"level":"warn","msg":"dropping pod snapshot with no name"}`)
		return nil, "", false
	}
	return pod, pod.Name, true
}

var _ cache.Store = (*eventStore)(nil)
