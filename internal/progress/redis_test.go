package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

type setCall struct {
	key   string
	value Snapshot
	ttl   time.Duration
}

// mockRedis records SET commands
type mockRedis struct {
	calls []setCall
	err   error
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var snap Snapshot
	if s, ok := value.(string); ok {
		_ = json.Unmarshal([]byte(s), &snap)
	}
	m.calls = append(m.calls, setCall{key: key, value: snap, ttl: expiration})
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	return redis.NewStatusResult("OK", nil)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestReporter(client Setter) (*RedisReporter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRedisReporter(client, "sync:progress", time.Hour)
	r.now = clock.Now
	return r, clock
}

func TestRedisReporter(t *testing.T) {
	m := &mockRedis{}
	r, clock := newTestReporter(m)

	var obs session.Observer = r
	obs.PhaseStart(session.PhaseHash, 4)
	obs.Progress(session.PhaseHash, 1, 4) // throttled
	clock.Advance(time.Second)
	obs.Progress(session.PhaseHash, 2, 4)
	obs.Progress(session.PhaseHash, 3, 4) // throttled
	obs.FileError(session.PhaseHash, errors.New("unreadable"))
	obs.Progress(session.PhaseHash, 4, 4) // final value is always written
	obs.ScanComplete(&session.ScanResult{RunID: "run-1", Missing: planner.MissingFileList{{Path: "/S/a"}}})
	obs.ReplicationComplete(&executor.Report{Copied: 1})

	if len(m.calls) != 5 {
		t.Fatalf("got %d SET calls, want 5", len(m.calls))
	}
	for _, c := range m.calls {
		if c.key != "sync:progress" || c.ttl != time.Hour {
			t.Errorf("SET %q ttl %v", c.key, c.ttl)
		}
	}

	if got := m.calls[1].value; got.Current != 2 || got.Total != 4 || got.Phase != session.PhaseHash {
		t.Errorf("second snapshot = %+v", got)
	}
	if got := m.calls[2].value; got.Current != 4 || got.Errors != 1 {
		t.Errorf("third snapshot = %+v", got)
	}
	if got := m.calls[3].value; got.State != "scanned" || got.RunID != "run-1" || got.Missing != 1 {
		t.Errorf("scan snapshot = %+v", got)
	}
	if got := m.calls[4].value; got.State != "replicated" || got.Copied != 1 {
		t.Errorf("replication snapshot = %+v", got)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v", r.Err())
	}
}

func TestRedisReporterError(t *testing.T) {
	m := &mockRedis{err: errors.New("connection refused")}
	r, _ := newTestReporter(m)

	r.PhaseStart(session.PhaseCopy, 1)
	if r.Err() == nil {
		t.Error("Err() = nil after failed SET")
	}
	if r.Snapshot().Total != 1 {
		t.Errorf("Snapshot() = %+v", r.Snapshot())
	}
}
