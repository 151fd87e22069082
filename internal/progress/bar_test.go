package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

// syncBuffer guards a buffer written by the render goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBar(t *testing.T) {
	var out syncBuffer
	bar := NewBar(&out)

	var obs session.Observer = bar
	if bar.Running() {
		t.Fatal("bar renders before the first phase")
	}

	// Phases without a bar are ignored
	obs.PhaseStart(session.PhaseWalk, 10)
	obs.Progress(session.PhaseWalk, 1, 10)
	if bar.Running() {
		t.Fatal("walk phase started rendering")
	}

	obs.PhaseStart(session.PhaseHash, 3)
	if !bar.Running() {
		t.Fatal("hash phase did not start rendering")
	}
	for i := 1; i <= 3; i++ {
		obs.Progress(session.PhaseHash, i, 3)
	}
	obs.FileError(session.PhaseHash, errors.New("read /S/locked.txt: permission denied"))
	obs.ScanComplete(&session.ScanResult{})
	if bar.Running() {
		t.Fatal("bar still renders after ScanComplete")
	}
	if got := out.String(); !strings.Contains(got, "Fingerprinting") {
		t.Errorf("output does not mention the hash phase: %q", got)
	}

	obs.PhaseStart(session.PhaseCopy, 0)
	obs.ReplicationComplete(&executor.Report{})
	if bar.Running() {
		t.Fatal("bar still renders after ReplicationComplete")
	}

	// Errors outside a phase go straight to the writer
	obs.FileError(session.PhaseManifest, errors.New("disk full"))
	if got := out.String(); !strings.Contains(got, "manifest: disk full") {
		t.Errorf("output = %q", got)
	}

	bar.Stop()
}
