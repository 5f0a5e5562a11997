package perf

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sample is a point-in-time reading of the current process.
type Sample struct {
	RSS        uint64
	CPUPercent float64
	Threads    int32
}

// Sampler reads process and system resource usage.
type Sampler interface {
	Process(ctx context.Context) (Sample, error)
	SystemMemoryPercent(ctx context.Context) (float64, error)
}

// ProcessSampler samples the running process with gopsutil.
type ProcessSampler struct {
	once sync.Once
	proc *process.Process
	err  error
}

// NewProcessSampler returns a sampler for the current process.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{}
}

// handle opens the process once. It is detached from any caller's context so a cancelled
// first caller cannot poison every later sample.
func (s *ProcessSampler) handle() (*process.Process, error) {
	s.once.Do(func() {
		//nolint:gosec // pid fits in int32 on supported platforms
		s.proc, s.err = process.NewProcessWithContext(context.Background(), int32(os.Getpid()))
	})
	return s.proc, s.err
}

// Process samples RSS, CPU percent and thread count.
func (s *ProcessSampler) Process(ctx context.Context) (Sample, error) {
	proc, err := s.handle()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to open process: %w", err)
	}

	var out Sample
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to read memory info: %w", err)
	}
	out.RSS = memInfo.RSS

	if out.CPUPercent, err = proc.CPUPercentWithContext(ctx); err != nil {
		return Sample{}, fmt.Errorf("failed to read cpu percent: %w", err)
	}
	if out.Threads, err = proc.NumThreadsWithContext(ctx); err != nil {
		return Sample{}, fmt.Errorf("failed to read thread count: %w", err)
	}
	return out, nil
}

// SystemMemoryPercent returns system-wide memory use in percent.
func (s *ProcessSampler) SystemMemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}

// NopSampler reports zero usage. Used when resource sampling is disabled.
type NopSampler struct{}

func (NopSampler) Process(context.Context) (Sample, error) { return Sample{}, nil }

func (NopSampler) SystemMemoryPercent(context.Context) (float64, error) { return 0, nil }
