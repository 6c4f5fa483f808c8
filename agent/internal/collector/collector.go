// Package collector gathers the host metrics and inventory samples the
// agent publishes to the broker, composing them exactly as the wire schema
// expects (cpu in [0,1], memory/disk in bytes). It is the agent-side
// counterpart to the shared/wire payload shapes.
package collector

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"github.com/GustavPetterssonBjorklund/Statix/shared/wire"
)

// Metrics collects one point-in-time resource sample and returns it as a
// validated MetricsPayload, timestamped at collection time.
func Metrics(ctx context.Context) (wire.MetricsPayload, error) {
	p := wire.MetricsPayload{
		V:  wire.PayloadVersion,
		TS: time.Now().UnixMilli(),
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores == 0 {
		cores = runtime.NumCPU()
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		p.CPU = clamp01(avg.Load1 / float64(cores))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		p.MemTotal = float64(vm.Total)
		p.MemUsed = float64(vm.Total - vm.Available)
	} else {
		p.MemTotal = 1
	}

	if du, err := disk.UsageWithContext(ctx, rootPath()); err == nil {
		p.DiskTotal = float64(du.Total)
		p.DiskUsed = float64(du.Used)
	} else {
		p.DiskTotal = 1
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		p.NetRx = float64(counters[0].BytesRecv)
		p.NetTx = float64(counters[0].BytesSent)
	}

	return p, p.Validate()
}

// SystemInfo collects the slow-changing inventory snapshot. version, commit,
// and builtAt are read from build-time metadata (see agent/cmd/agent) and
// passed through — collector has no opinion on how they were obtained.
func SystemInfo(ctx context.Context, version, commit, builtAt string) (wire.SystemInfo, error) {
	info := wire.SystemInfo{
		OSArch:       runtime.GOARCH,
		AgentVersion: version,
		AgentCommit:  commit,
		AgentBuiltAt: builtAt,
		GPUs:         []wire.GPUInfo{},
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.OSPlatform = hi.Platform
		info.OSRelease = hi.PlatformVersion
		info.Hostname = hi.Hostname
	}
	if info.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			info.Hostname = h
		}
	}
	if info.OSPlatform == "" {
		info.OSPlatform = runtime.GOOS
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = cores
	} else {
		info.CPUCores = runtime.NumCPU()
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemTotal = float64(vm.Total)
	} else {
		info.MemTotal = 1
	}

	info.GPUs = discoverGPUs(ctx)

	return info, info.Validate()
}

// discoverGPUs probes nvidia-smi first, falling back to lspci vendor
// classification. Either step failing silently yields an empty slice — GPU
// discovery is best-effort and never blocks inventory publication.
func discoverGPUs(ctx context.Context) []wire.GPUInfo {
	if gpus := discoverNvidiaSMI(ctx); len(gpus) > 0 {
		return gpus
	}
	if gpus := discoverLspci(ctx); len(gpus) > 0 {
		return gpus
	}
	return []wire.GPUInfo{}
}

func discoverNvidiaSMI(ctx context.Context) []wire.GPUInfo {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,driver_version", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}

	var gpus []wire.GPUInfo
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			continue
		}
		gpu := wire.GPUInfo{
			Name:          name,
			Vendor:        "NVIDIA",
			DriverVersion: strings.TrimSpace(fields[2]),
		}
		if mib, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64); err == nil {
			bytes := mib * 1024 * 1024
			gpu.MemoryBytes = &bytes
		}
		gpus = append(gpus, gpu)
	}
	return gpus
}

func discoverLspci(ctx context.Context) []wire.GPUInfo {
	out, err := exec.CommandContext(ctx, "lspci").Output()
	if err != nil {
		return nil
	}

	var gpus []wire.GPUInfo
	for _, line := range strings.Split(string(out), "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga") && !strings.Contains(lower, "3d controller") {
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		desc := strings.TrimSpace(line[idx+2:])
		if desc == "" {
			continue
		}
		gpus = append(gpus, wire.GPUInfo{Name: desc, Vendor: vendorFromDescription(desc)})
	}
	return gpus
}

func vendorFromDescription(desc string) string {
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(lower, "nvidia"):
		return "NVIDIA"
	case strings.Contains(lower, "intel"):
		return "Intel"
	case strings.Contains(lower, "amd") || strings.Contains(lower, "ati"):
		return "AMD"
	default:
		return ""
	}
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
