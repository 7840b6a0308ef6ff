// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

// Package validate holds shared input-validation helpers for names that
// cross a trust boundary (e.g. an HTTP path segment) before they're used to
// look up cluster objects.
package validate

import (
	"regexp"
)

// dns1123SubdomainRegex validates Kubernetes object names per RFC 1123.
// A DNS subdomain must:
// - Start with an alphanumeric character
// - End with an alphanumeric character
// - Contain only lowercase alphanumeric characters or '-'
// - Be at most 253 characters
var dns1123SubdomainRegex = regexp.MustCompile(
	`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`,
)

// maxNameLength is the maximum length for a Kubernetes object name.
const maxNameLength = 253

// IsValidPodName reports whether name conforms to Kubernetes naming
// requirements (RFC 1123 DNS subdomain). Pods and nodes share the same
// naming constraints.
func IsValidPodName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	return dns1123SubdomainRegex.MatchString(name)
}
