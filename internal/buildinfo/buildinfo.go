package buildinfo

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// set with -ldflags "-X elasticroute/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
		"go":      runtime.Version(),
	}
}

// SysInfo describes the machine a run was measured on.
type SysInfo struct {
	Platform string `json:"platform"`
	CPU      string `json:"cpu"`
	Cores    int    `json:"cores"`
	Memory   string `json:"memory"`
}

func (s SysInfo) String() string {
	return fmt.Sprintf("%s, %s (%d cores), %s", s.Platform, s.CPU, s.Cores, s.Memory)
}

// Host collects a SysInfo. Fields gopsutil cannot read are left as
// "unknown" rather than failing the report.
func Host(ctx context.Context) SysInfo {
	info := SysInfo{Platform: "unknown", CPU: "unknown", Cores: runtime.NumCPU(), Memory: "unknown"}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
	}
	if cs, err := cpu.InfoWithContext(ctx); err == nil && len(cs) > 0 {
		info.CPU = cs[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.Memory = fmt.Sprintf("%d GB", vm.Total/1024/1024/1024)
	}
	return info
}
