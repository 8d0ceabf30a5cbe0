package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

const historySize = 60

// Source samples host state on demand and keeps a ring of recent
// snapshots. Sample never fails: sources that error contribute a zero
// value plus an error descriptor.
type Source struct {
	kube      *kubeClient
	collector *Collector

	mu      sync.RWMutex
	history []*Snapshot
}

func NewSource(kube *kubeClient, collector *Collector) *Source {
	return &Source{
		kube:      kube,
		collector: collector,
		history:   make([]*Snapshot, 0, historySize),
	}
}

// Sample reads host state (and cluster aggregates when a control-plane
// client is configured) and appends the snapshot to the ring.
func (s *Source) Sample(ctx context.Context) *Snapshot {
	start := time.Now()
	snap := &Snapshot{
		Timestamp: start.UTC(),
		Errors:    map[string]string{},
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Host = HostStats{
			Hostname:      info.Hostname,
			Platform:      info.Platform,
			KernelVersion: info.KernelVersion,
			UptimeSec:     info.Uptime,
		}
	} else {
		snap.Errors["host"] = err.Error()
	}

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPU.Cores = counts
	} else {
		snap.Errors["cpu_count"] = err.Error()
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		snap.CPU.UsagePct = pct[0]
	} else if err != nil {
		snap.Errors["cpu"] = err.Error()
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.Memory = MemoryStats{
			TotalBytes: vm.Total,
			UsedBytes:  vm.Used,
			UsedPct:    vm.UsedPercent,
		}
	} else {
		snap.Errors["memory"] = err.Error()
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		snap.Disk = DiskStats{
			Path:       du.Path,
			TotalBytes: du.Total,
			UsedBytes:  du.Used,
			UsedPct:    du.UsedPercent,
		}
	} else {
		snap.Errors["disk"] = err.Error()
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		snap.Network = NetworkStats{
			BytesSent: counters[0].BytesSent,
			BytesRecv: counters[0].BytesRecv,
		}
	} else if err != nil {
		snap.Errors["network"] = err.Error()
	}

	if s.kube != nil {
		snap.Cluster = s.kube.clusterStats(ctx)
	}

	if len(snap.Errors) == 0 {
		snap.Errors = nil
	}

	if s.collector != nil {
		s.collector.RecordSampleDuration(time.Since(start))
	}

	s.mu.Lock()
	if len(s.history) == historySize {
		s.history = s.history[1:]
	}
	s.history = append(s.history, snap)
	s.mu.Unlock()

	return snap
}

// Latest returns the most recent snapshot, sampling fresh when nothing
// has been recorded yet.
func (s *Source) Latest(ctx context.Context) *Snapshot {
	s.mu.RLock()
	if n := len(s.history); n > 0 {
		snap := s.history[n-1]
		s.mu.RUnlock()
		return snap
	}
	s.mu.RUnlock()
	return s.Sample(ctx)
}

// History returns the recorded ring, oldest first.
func (s *Source) History() []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Snapshot, len(s.history))
	copy(out, s.history)
	return out
}
