// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package webui hosts the HTTP surface for the published fair-queue
// snapshot: the cached JSON state, a per-pod HTML detail page, health and
// version probes, and the Prometheus metrics endpoint.
package webui

import (
	"context"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cvlab/kube-watchdog/internal/info"
	"github.com/cvlab/kube-watchdog/pkg/pod"
	"github.com/cvlab/kube-watchdog/pkg/snapshot"
	"github.com/cvlab/kube-watchdog/pkg/validate"
)

// PodSource lists the current descriptor set. *supervisor.Supervisor
// implements this.
type PodSource interface {
	GetPods() []pod.Descriptor
}

// StateSource serves the cached snapshot JSON and per-pod utilization
// views. *snapshot.Publisher implements this.
type StateSource interface {
	JSON() string
	UtilizationFor(name string) (snapshot.UtilizationView, bool)
}

// Server wraps the published state with an HTTP transport.
type Server struct {
	pods  PodSource
	state StateSource

	addr       string
	httpServer *http.Server
	ready      chan struct{}
}

// New builds a Server that reads pod descriptors from pods and published
// state from state.
func New(addr string, pods PodSource, state StateSource) *Server {
	return &Server{
		pods:  pods,
		state: state,
		addr:  addr,
		ready: make(chan struct{}),
	}
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled
// or the server fails. On cancellation it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /describe/{pod_name}", s.handleDescribe)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())

	// WriteTimeout comfortably exceeds anything a handler here does (all
	// reads are from in-memory caches); IdleTimeout exceeds WriteTimeout so
	// keep-alives aren't dropped mid-response.
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf(`{"level":"info","msg":"web server starting","addr":"%s"}`, s.addr)

	errCh := make(chan error, 1)
	go func() {
		close(s.ready)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	log.Printf(`{"level":"info","msg":"web server shutting down"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(s.state.JSON())); err != nil {
		log.Printf(`{"level":"error","msg":"failed to write state response","error":"%s"}`, err)
	}
}

func (s *Server) findPod(name string) (pod.Descriptor, bool) {
	for _, d := range s.pods.GetPods() {
		if d.Name == name {
			return d, true
		}
	}
	return pod.Descriptor{}, false
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("pod_name")
	if !validate.IsValidPodName(name) {
		http.Error(w, "invalid pod name", http.StatusNotFound)
		return
	}

	descriptor, ok := s.findPod(name)
	if !ok {
		http.Error(w, "no such pod", http.StatusNotFound)
		return
	}

	view, _ := s.state.UtilizationFor(name)
	data := describeData{
		PodName:    name,
		Descriptor: descriptor,
		Report:     view,
		AccessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := describeTemplate.Execute(w, data); err != nil {
		log.Printf(`{"level":"error","msg":"failed to render describe page","pod":"%s","error":"%s"}`,
			name, err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "healthy"}); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode healthz response","error":"%s"}`, err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info.GetInfo()); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode version response","error":"%s"}`, err)
	}
}

type describeData struct {
	PodName    string
	Descriptor pod.Descriptor
	Report     snapshot.UtilizationView
	AccessedAt time.Time
}

var describeTemplate = template.Must(template.New("describe").Parse(describeHTML))
