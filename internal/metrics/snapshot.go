package metrics

import "time"

// Snapshot is one immutable sample of host and cluster state. Partial
// source failures populate Errors per field instead of failing the
// sample; consumers treat the payload as opaque.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Host      HostStats         `json:"host"`
	CPU       CPUStats          `json:"cpu"`
	Memory    MemoryStats       `json:"memory"`
	Disk      DiskStats         `json:"disk"`
	Network   NetworkStats      `json:"network"`
	Cluster   *ClusterStats     `json:"cluster,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type HostStats struct {
	Hostname      string `json:"hostname"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernel_version"`
	UptimeSec     uint64 `json:"uptime_sec"`
}

type CPUStats struct {
	Cores    int     `json:"cores"`
	UsagePct float64 `json:"usage_pct"`
}

type MemoryStats struct {
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

type DiskStats struct {
	Path       string  `json:"path"`
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

type NetworkStats struct {
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// ClusterStats are best-effort control-plane aggregates. Individual
// read failures land in Errors keyed by resource.
type ClusterStats struct {
	Pods        int               `json:"pods"`
	Nodes       int               `json:"nodes"`
	Deployments int               `json:"deployments"`
	Errors      map[string]string `json:"errors,omitempty"`
}
