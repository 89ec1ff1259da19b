// Package health reports liveness details for GET /health.
package health

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// BusState is satisfied by anything that knows whether the MQTT link is up.
type BusState interface {
	Connected() bool
}

// Report is the JSON body of GET /health.
type Report struct {
	Status     string    `json:"status"` // "ok" or "degraded"
	Bus        string    `json:"bus"`    // "connected" or "disconnected"
	Subscriber string    `json:"subscriber,omitempty"`
	Uptime     string    `json:"uptime"`
	StartedAt  time.Time `json:"started_at"`
	Process    *Process  `json:"process,omitempty"`
}

// Process holds this process's own resource usage.
type Process struct {
	PID        int32   `json:"pid"`
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// Checker assembles reports. The subscriber state func is optional.
type Checker struct {
	bus             BusState
	subscriberState func() string
	started         time.Time
	proc            *process.Process
	goroutines      func() int
}

// NewChecker captures the start time. A failure to open the process handle
// only drops the process section from reports.
func NewChecker(bus BusState, subscriberState func() string, goroutines func() int) *Checker {
	c := &Checker{
		bus:             bus,
		subscriberState: subscriberState,
		started:         time.Now().UTC(),
		goroutines:      goroutines,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

// Check never fails; a dropped bus link reports "degraded" because the API
// can still serve stored data.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{
		Status:    "ok",
		Bus:       "connected",
		StartedAt: c.started,
		Uptime:    time.Since(c.started).Truncate(time.Second).String(),
	}
	if c.bus == nil || !c.bus.Connected() {
		r.Status = "degraded"
		r.Bus = "disconnected"
	}
	if c.subscriberState != nil {
		r.Subscriber = c.subscriberState()
	}
	if c.proc != nil {
		r.Process = c.processStats(ctx)
	}
	return r
}

func (c *Checker) processStats(ctx context.Context) *Process {
	p := &Process{PID: c.proc.Pid}

	// RSS is the physical memory the process actually holds.
	if mem, err := c.proc.MemoryInfoWithContext(ctx); err == nil {
		p.RSSMB = float64(mem.RSS) / 1024.0 / 1024.0
	}
	if cpu, err := c.proc.CPUPercentWithContext(ctx); err == nil {
		p.CPUPercent = cpu
	}
	if c.goroutines != nil {
		p.Goroutines = c.goroutines()
	}
	return p
}
