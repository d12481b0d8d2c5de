package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a best-effort host description recorded once per run so logged
// experiments stay attributable to the machine that produced them.
type Snapshot struct {
	Hostname      string  `json:"hostname,omitempty"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform,omitempty"`
	KernelVersion string  `json:"kernel_version,omitempty"`
	NumCPU        int     `json:"num_cpu"`
	TotalMemBytes uint64  `json:"total_mem_bytes,omitempty"`
	UsedMemPct    float64 `json:"used_mem_pct,omitempty"`
	Load1         float64 `json:"load1,omitempty"`
	GoVersion     string  `json:"go_version"`
}

// Collect never fails; fields that cannot be read are left zero.
func Collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		OS:        runtime.GOOS,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info != nil {
		snap.Hostname = info.Hostname
		snap.Platform = info.Platform
		snap.KernelVersion = info.KernelVersion
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		snap.TotalMemBytes = vm.Total
		snap.UsedMemPct = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		snap.Load1 = avg.Load1
	}
	return snap
}
