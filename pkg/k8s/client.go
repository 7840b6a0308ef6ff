// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package k8s provides a Kubernetes client wrapper used to watch pods in a
// namespace and to run commands inside them.
package k8s

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
)

// DefaultExecTimeout is the default timeout for pod exec operations.
// Can be overridden via EXEC_TIMEOUT environment variable (e.g., "60s").
var DefaultExecTimeout = 60 * time.Second

func init() {
	if envTimeout := os.Getenv("EXEC_TIMEOUT"); envTimeout != "" {
		DefaultExecTimeout = parseExecTimeout(envTimeout, DefaultExecTimeout)
	}
}

// parseExecTimeout parses a duration string for exec timeout configuration.
// Returns the parsed duration on success, or the fallback on parse error.
// Validates that the duration is within reasonable bounds (1s to 300s).
func parseExecTimeout(value string, fallback time.Duration) time.Duration {
	const minTimeout = 1 * time.Second
	const maxTimeout = 300 * time.Second

	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf(`{"level":"warn","msg":"invalid EXEC_TIMEOUT",`+
			`"value":"%s","error":"%v","using_default":"%s"}`,
			value, err, fallback)
		return fallback
	}

	if d < minTimeout || d > maxTimeout {
		log.Printf(`{"level":"warn","msg":"EXEC_TIMEOUT out of bounds",`+
			`"value":"%s","min":"%s","max":"%s","using_default":"%s"}`,
			d, minTimeout, maxTimeout, fallback)
		return fallback
	}

	log.Printf(`{"level":"info","msg":"exec timeout configured",`+
		`"timeout":"%s","source":"env"}`, d)
	return d
}

// Client wraps the Kubernetes clientset for pod-watching and in-pod exec
// operations within a single namespace.
type Client struct {
	clientset   kubernetes.Interface
	restConfig  *rest.Config
	namespace   string
	execTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithExecTimeout sets the timeout for pod exec operations.
func WithExecTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.execTimeout = d
	}
}

// NewClient creates a new Kubernetes client.
// Uses in-cluster config if available, falls back to kubeconfig.
func NewClient(namespace string, opts ...ClientOption) (*Client, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		// Fall back to kubeconfig
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to get k8s config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	c := &Client{
		clientset:   clientset,
		restConfig:  config,
		namespace:   namespace,
		execTimeout: DefaultExecTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewClientWithConfig creates a new Kubernetes client with provided config.
// Useful for testing with mock clients.
func NewClientWithConfig(
	clientset kubernetes.Interface,
	restConfig *rest.Config,
	namespace string,
	opts ...ClientOption,
) *Client {
	c := &Client{
		clientset:   clientset,
		restConfig:  restConfig,
		namespace:   namespace,
		execTimeout: DefaultExecTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// PodListWatch returns a cache.ListWatch scoped to the client's namespace,
// suitable for driving a cache.Reflector that keeps a pod store in sync.
func (c *Client) PodListWatch() *cache.ListWatch {
	return &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return c.clientset.CoreV1().Pods(c.namespace).List(context.Background(), options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.Watch = true
			return c.clientset.CoreV1().Pods(c.namespace).Watch(context.Background(), options)
		},
	}
}

// ExecInPod runs command inside the named pod's container and returns its
// combined stdout. The caller supplies the full argv; this client only
// handles the exec transport.
//
// The exec operation uses a configurable timeout (default 60s) to prevent
// hanging on unresponsive pods. The timeout can be set via WithExecTimeout.
//
// Note: this function is exercised via integration tests rather than unit
// tests because the fake clientset does not support the exec subresource.
func (c *Client) ExecInPod(
	ctx context.Context,
	podName string,
	container string,
	command []string,
	stdin io.Reader,
) ([]byte, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()

	startTime := time.Now()

	execOpts := &corev1.PodExecOptions{
		Container: container,
		Command:   command,
		Stdin:     stdin != nil,
		Stdout:    true,
		Stderr:    true,
	}

	req := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(c.namespace).
		SubResource("exec").
		VersionedParams(execOpts, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(execCtx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: &stdout,
		Stderr: &stderr,
	})

	duration := time.Since(startTime)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			log.Printf(`{"level":"error","msg":"exec timeout","pod":"%s",`+
				`"timeout":"%s","duration":"%s"}`,
				podName, c.execTimeout, duration)
			return nil, fmt.Errorf("exec timeout after %s", c.execTimeout)
		}
		return nil, fmt.Errorf("exec failed: %w (stderr: %s)",
			err, stderr.String())
	}

	log.Printf(`{"level":"debug","msg":"exec completed","pod":"%s",`+
		`"duration":"%s","stdout_size":%d}`,
		podName, duration, stdout.Len())

	return stdout.Bytes(), nil
}

// ExecTimeout returns the configured exec timeout.
func (c *Client) ExecTimeout() time.Duration {
	return c.execTimeout
}

// Namespace returns the configured namespace.
func (c *Client) Namespace() string {
	return c.namespace
}
