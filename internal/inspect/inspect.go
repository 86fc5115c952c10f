// Package inspect produces the doctor report: host health, timezone
// sanity, and a dispatch simulation for each pending task.
package inspect

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/example/teesched/internal/task"
	"github.com/example/teesched/internal/trigger"
)

type HostReport struct {
	Hostname string  `json:"hostname"`
	OS       string  `json:"os"`
	Platform string  `json:"platform"`
	Uptime   uint64  `json:"uptime"`
	RAMUsage float64 `json:"ram_usage"`
}

type ZoneReport struct {
	Zone      string `json:"zone"`
	Known     bool   `json:"known"`
	LocalTime string `json:"local_time,omitempty"`
	Offset    string `json:"offset,omitempty"`
}

// TaskReport is the dispatch simulation for one task: what the coordinator
// would decide if it ticked right now.
type TaskReport struct {
	ID       string        `json:"id"`
	Status   task.Status   `json:"status"`
	Opening  time.Time     `json:"opening"`
	Decision string        `json:"decision"`
	Wait     time.Duration `json:"wait,omitempty"`
}

type Report struct {
	Host          HostReport   `json:"host"`
	Zone          ZoneReport   `json:"zone"`
	RegistryOK    bool         `json:"registry_ok"`
	RegistryError string       `json:"registry_error,omitempty"`
	Tasks         []TaskReport `json:"tasks"`
}

// Lister is the slice of the registry the doctor needs.
type Lister interface {
	List(ctx context.Context) ([]task.Task, error)
}

func collectHost() HostReport {
	var r HostReport
	if info, err := host.Info(); err == nil {
		r.Hostname = info.Hostname
		r.OS = info.OS
		r.Platform = info.Platform
		r.Uptime = info.Uptime
	}
	if m, err := mem.VirtualMemory(); err == nil {
		r.RAMUsage = m.UsedPercent
	}
	return r
}

func checkZone(zone string, now time.Time) ZoneReport {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return ZoneReport{Zone: zone}
	}
	local := now.In(loc)
	return ZoneReport{
		Zone:      zone,
		Known:     true,
		LocalTime: local.Format("2006-01-02 15:04:05"),
		Offset:    local.Format("-07:00"),
	}
}

func simulate(tasks []task.Task, now time.Time, tolerance time.Duration) []TaskReport {
	out := make([]TaskReport, 0, len(tasks))
	for _, t := range tasks {
		r := TaskReport{ID: t.ID, Status: t.Status, Opening: t.OpeningInstant}
		if t.Status != task.StatusPending {
			r.Decision = "not pending; coordinator will skip"
			out = append(out, r)
			continue
		}
		d := trigger.Classify(t.OpeningInstant, now, tolerance)
		switch d.Class {
		case trigger.Immediate:
			r.Decision = "would dispatch now"
		case trigger.Deferred:
			r.Decision = "waiting for opening"
			r.Wait = d.Wait
		case trigger.TooStale:
			r.Decision = "overdue; would attempt anyway and flag anomaly"
		}
		out = append(out, r)
	}
	return out
}

// Run assembles the full report. A nil reg skips the registry section.
func Run(ctx context.Context, reg Lister, zone string, now time.Time, tolerance time.Duration) Report {
	rep := Report{
		Host: collectHost(),
		Zone: checkZone(zone, now),
	}
	if reg == nil {
		return rep
	}
	tasks, err := reg.List(ctx)
	if err != nil {
		rep.RegistryError = err.Error()
		return rep
	}
	rep.RegistryOK = true
	rep.Tasks = simulate(tasks, now, tolerance)
	return rep
}
