// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the watchdog: it watches pods in a
// namespace, measures GPU utilization for the running ones, computes a fair
// queue ordering, and publishes the result over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cvlab/kube-watchdog/internal/info"
	"github.com/cvlab/kube-watchdog/pkg/eventsource"
	"github.com/cvlab/kube-watchdog/pkg/k8s"
	"github.com/cvlab/kube-watchdog/pkg/snapshot"
	"github.com/cvlab/kube-watchdog/pkg/supervisor"
	"github.com/cvlab/kube-watchdog/pkg/webui"
)

// ValidLogLevels are the accepted log levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// resolveLogLevel determines the effective log level from env var and flag.
// Priority: LOG_LEVEL env var > --log-level flag > default ("info")
func resolveLogLevel(flagValue string) string {
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level := strings.ToLower(strings.TrimSpace(envLevel))
		if isValidLogLevel(level) {
			return level
		}
		log.Printf(`{"level":"warn","msg":"invalid LOG_LEVEL env var",`+
			`"value":"%s","valid":%q,"using":"%s"}`,
			envLevel, ValidLogLevels, flagValue)
	}
	return flagValue
}

// isValidLogLevel checks if a log level is valid.
func isValidLogLevel(level string) bool {
	for _, valid := range ValidLogLevels {
		if level == valid {
			return true
		}
	}
	return false
}

func main() {
	var (
		namespace   = flag.String("namespace", "", "Namespace to watch for GPU workload pods (required)")
		container   = flag.String("container", "", "Container name to exec nvidia-smi in (defaults to the pod's first container)")
		addr        = flag.String("addr", "0.0.0.0", "HTTP listen address for the web UI")
		port        = flag.Int("port", 8000, "HTTP port for the web UI")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "Show version information and exit")
	)
	flag.Parse()

	if *showVersion {
		buildInfo := info.GetInfo()
		fmt.Fprintf(os.Stderr, "kube-watchdog version %s (commit %s)\n",
			buildInfo.Version, buildInfo.GitCommit)
		os.Exit(0)
	}

	effectiveLogLevel := resolveLogLevel(*logLevel)
	if !isValidLogLevel(effectiveLogLevel) {
		log.Fatalf(`{"level":"fatal","msg":"invalid log-level",`+
			`"log_level":"%s","valid":%q}`, effectiveLogLevel, ValidLogLevels)
	}

	if *namespace == "" {
		log.Fatalf(`{"level":"fatal","msg":"--namespace is required"}`)
	}

	if *port < 1 || *port > 65535 {
		log.Fatalf(`{"level":"fatal","msg":"invalid port","port":%d,"valid":"1-65535"}`, *port)
	}
	httpAddr := fmt.Sprintf("%s:%d", *addr, *port)

	buildInfo := info.GetInfo()
	log.Printf(`{"level":"info","msg":"starting kube-watchdog",`+
		`"version":"%s","commit":"%s","namespace":"%s","addr":"%s","log_level":"%s"}`,
		buildInfo.Version, buildInfo.GitCommit, *namespace, httpAddr, effectiveLogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	k8sClient, err := k8s.NewClient(*namespace)
	if err != nil {
		log.Fatalf(`{"level":"fatal","msg":"failed to create K8s client","error":"%s"}`, err)
	}

	source := eventsource.New(k8sClient.PodListWatch())
	super := supervisor.New(source, k8sClient, *namespace, *container)

	publisher := snapshot.New(super)
	super.AddListener(publisher.OnStateChange)

	webServer := webui.New(httpAddr, super, publisher)

	done := make(chan error, 2)
	go func() {
		done <- super.Run(ctx)
	}()
	go func() {
		done <- webServer.ListenAndServe(ctx)
	}()

	remaining := 2
	select {
	case sig := <-sigCh:
		log.Printf(`{"level":"info","msg":"received signal","signal":"%s"}`, sig)
		cancel()
	case err := <-done:
		remaining--
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf(`{"level":"error","msg":"component exited with error","error":"%s"}`, err)
		}
		cancel()
	}

	// Drain whichever components haven't reported back yet; each returns
	// once ctx is cancelled.
	for ; remaining > 0; remaining-- {
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			log.Printf(`{"level":"error","msg":"component shutdown error","error":"%s"}`, err)
		}
	}
	log.Printf(`{"level":"info","msg":"shutdown complete"}`)
}
