package main

import (
	"runtime"

	"github.com/go-logr/logr"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// logSystemInfo logs the host's CPU and memory, for sizing -t and -b
func logSystemInfo(logger logr.Logger) {
	kv := []interface{}{"goos", runtime.GOOS, "goarch", runtime.GOARCH, "gomaxprocs", runtime.GOMAXPROCS(0)}

	if n, err := cpu.Counts(true); err == nil {
		kv = append(kv, "logicalCPUs", n)
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		kv = append(kv, "cpuModel", infos[0].ModelName, "cpuMHz", infos[0].Mhz)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		kv = append(kv, "totalMemoryMiB", vm.Total>>20, "availableMemoryMiB", vm.Available>>20)
	}

	logger.Info("System", kv...)
}
