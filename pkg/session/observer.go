package session

import (
	"context"

	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
)

type Phase string

const (
	PhaseWalk     Phase = "walk"
	PhaseHash     Phase = "hash"
	PhaseManifest Phase = "manifest"
	PhaseCopy     Phase = "copy"
)

// Observer receives progress and completion events.
// Progress calls for a phase arrive one at a time with a strictly increasing current.
type Observer interface {
	PhaseStart(phase Phase, total int)
	Progress(phase Phase, current, total int)
	FileError(phase Phase, err error)
	ScanComplete(result *ScanResult)
	ReplicationComplete(report *executor.Report)
}

type NopObserver struct{}

func (NopObserver) PhaseStart(phase Phase, total int) {}
func (NopObserver) Progress(phase Phase, current, total int) {}
func (NopObserver) FileError(phase Phase, err error) {}
func (NopObserver) ScanComplete(result *ScanResult) {}
func (NopObserver) ReplicationComplete(report *executor.Report) {}

// Observers fans every event out to each observer in order
type Observers []Observer

func (o Observers) PhaseStart(phase Phase, total int) {
	for _, obs := range o {
		obs.PhaseStart(phase, total)
	}
}

func (o Observers) Progress(phase Phase, current, total int) {
	for _, obs := range o {
		obs.Progress(phase, current, total)
	}
}

func (o Observers) FileError(phase Phase, err error) {
	for _, obs := range o {
		obs.FileError(phase, err)
	}
}

func (o Observers) ScanComplete(result *ScanResult) {
	for _, obs := range o {
		obs.ScanComplete(result)
	}
}

func (o Observers) ReplicationComplete(report *executor.Report) {
	for _, obs := range o {
		obs.ReplicationComplete(report)
	}
}

// Request describes the copy a Gate is asked to approve
type Request struct {
	SourceRoot string
	TargetRoot string
	Missing    planner.MissingFileList
}

// Gate decides whether replication may proceed.
// Confirm may block, e.g. while waiting for a user.
type Gate interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// GateFunc adapts a function to a Gate
type GateFunc func(ctx context.Context, req Request) (bool, error)

func (f GateFunc) Confirm(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// AlwaysConfirm approves every request
var AlwaysConfirm Gate = GateFunc(func(ctx context.Context, req Request) (bool, error) {
	return true, nil
})
