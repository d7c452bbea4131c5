package metrics

import (
	"sync"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

const DefaultSampleInterval = 5 * time.Second

// Target is the supervision surface the sampler feeds. NoteMemory is how
// memory-limit enforcement learns about usage.
type Target interface {
	List() []registry.Summary
	NoteMemory(id uint32, bytes uint64)
}

// Sampler periodically reads RSS and CPU usage of every running process
// via gopsutil and publishes them as gauges.
type Sampler struct {
	target   Target
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSampler(target Target, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		target:   target,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *Sampler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sampleAll()
			}
		}
	}()
}

func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sampler) sampleAll() {
	for _, sum := range s.target.List() {
		running := sum.Status == process.Running
		SetUp(sum.Name, running)
		if !running || sum.PID <= 0 {
			continue
		}
		p, err := gops.NewProcess(int32(sum.PID))
		if err != nil {
			continue
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			SetMemory(sum.Name, mem.RSS)
			s.target.NoteMemory(sum.ID, mem.RSS)
		}
		if pct, err := p.CPUPercent(); err == nil {
			SetCPU(sum.Name, pct)
		}
	}
}
