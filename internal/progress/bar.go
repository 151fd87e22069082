package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

var phaseMessages = map[session.Phase]string{
	session.PhaseHash: "Fingerprinting",
	session.PhaseCopy: "Copying",
}

// Bar renders one progress bar per phase on a terminal.
// Rendering starts with the first phase and stops when the scan or copy
// completes, so the terminal is free for summaries and prompts in between.
type Bar struct {
	out io.Writer

	mu       sync.Mutex
	pw       progress.Writer
	trackers map[session.Phase]*progress.Tracker
}

func NewBar(w io.Writer) *Bar {
	return &Bar{
		out:      w,
		trackers: make(map[session.Phase]*progress.Tracker),
	}
}

func (b *Bar) start() progress.Writer {
	if b.pw != nil {
		return b.pw
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(b.out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(16)
	pw.SetStyle(progress.StyleDefault)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Value = true
	pw.Style().Visibility.Percentage = true

	go pw.Render()
	waitFor(pw.IsRenderInProgress)

	b.pw = pw
	return pw
}

func (b *Bar) PhaseStart(phase session.Phase, total int) {
	message, ok := phaseMessages[phase]
	if !ok {
		return
	}

	tracker := &progress.Tracker{
		Message: message,
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackers[phase] = tracker
	b.start().AppendTracker(tracker)
	if total == 0 {
		tracker.MarkAsDone()
	}
}

func (b *Bar) Progress(phase session.Phase, current, total int) {
	b.mu.Lock()
	tracker := b.trackers[phase]
	b.mu.Unlock()
	if tracker == nil {
		return
	}

	tracker.SetValue(int64(current))
	if current >= total {
		tracker.MarkAsDone()
	}
}

func (b *Bar) FileError(phase session.Phase, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pw != nil {
		b.pw.Log("%s: %v", phase, err)
		return
	}
	fmt.Fprintf(b.out, "%s: %v\n", phase, err)
}

func (b *Bar) ScanComplete(result *session.ScanResult) {
	b.finish(session.PhaseHash)
}

func (b *Bar) ReplicationComplete(report *executor.Report) {
	b.finish(session.PhaseCopy)
}

func (b *Bar) finish(phase session.Phase) {
	b.mu.Lock()
	if tracker := b.trackers[phase]; tracker != nil && !tracker.IsDone() {
		tracker.MarkAsDone()
	}
	b.mu.Unlock()
	b.Stop()
}

// Stop stops rendering and waits for the last frame to be written.
// Trackers that never finished are shown as errored.
func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pw == nil {
		return
	}

	for phase, tracker := range b.trackers {
		if !tracker.IsDone() {
			tracker.MarkAsErrored()
		}
		delete(b.trackers, phase)
	}

	// Stop is a no-op until the render loop has installed its cancel func
	pw := b.pw
	waitFor(func() bool {
		pw.Stop()
		return !pw.IsRenderInProgress()
	})
	b.pw = nil
}

// Running reports whether a frame is being rendered
func (b *Bar) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pw != nil
}

func waitFor(cond func() bool) {
	for deadline := time.Now().Add(time.Second); !cond() && time.Now().Before(deadline); {
		time.Sleep(10 * time.Millisecond)
	}
}
