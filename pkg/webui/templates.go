// Copyright 2026 k8s-gpu-mcp-server contributors
// SPDX-License-Identifier: Apache-2.0

package webui

// describeHTML is the per-pod detail page: identity and scheduling fields
// from the descriptor, plus the latest utilization measurement (or its
// error, or a placeholder if none has completed yet).
const describeHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>pod {{.PodName}}</title>
</head>
<body>
  <h1>{{.PodName}}</h1>
  <table>
    <tr><td>user</td><td>{{.Descriptor.User}}</td></tr>
    <tr><td>status</td><td>{{.Descriptor.Status}}</td></tr>
    <tr><td>num_gpu</td><td>{{.Descriptor.NumGPU}}</td></tr>
    <tr><td>user_priority</td><td>{{.Descriptor.UserPriority}}</td></tr>
    <tr><td>date_created</td><td>{{.Descriptor.DateCreated}}</td></tr>
    <tr><td>date_started</td><td>{{.Descriptor.DateStarted}}</td></tr>
  </table>

  <h2>utilization</h2>
  {{if .Report.Error}}
  <p>error: {{.Report.Error}}</p>
  {{else if .Report.Memory}}
  <table>
    <tr><td>memory</td><td>{{.Report.Memory}}</td></tr>
    <tr><td>compute</td><td>{{.Report.Compute}}</td></tr>
    <tr><td>date</td><td>{{.Report.Date}}</td></tr>
  </table>
  {{else}}
  <p>no measurement yet</p>
  {{end}}

  <p><small>accessed {{.AccessedAt}}</small></p>
</body>
</html>
`
