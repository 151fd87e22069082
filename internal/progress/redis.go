package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

const defaultPublishInterval = 500 * time.Millisecond

// Setter is the part of a redis client used by RedisReporter
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Snapshot is the JSON document stored under the progress key
type Snapshot struct {
	RunID     string        `json:"run_id,omitempty"`
	State     string        `json:"state"`
	Phase     session.Phase `json:"phase,omitempty"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Errors    int           `json:"errors"`
	Missing   int           `json:"missing"`
	Copied    int           `json:"copied"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RedisReporter stores progress snapshots in redis so other processes can follow a run.
// Progress updates are throttled; phase changes and completions are always written.
type RedisReporter struct {
	client   Setter
	key      string
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	snapshot    Snapshot
	lastPublish time.Time
	err         error
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

func NewRedisReporter(client Setter, key string, ttl time.Duration) *RedisReporter {
	return &RedisReporter{
		client:   client,
		key:      key,
		ttl:      ttl,
		interval: defaultPublishInterval,
		now:      time.Now,
		snapshot: Snapshot{State: "running"},
	}
}

// Err returns the last publish error, if any
func (r *RedisReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Snapshot returns the current state
func (r *RedisReporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func (r *RedisReporter) PhaseStart(phase session.Phase, total int) {
	r.update(true, func(s *Snapshot) {
		s.Phase = phase
		s.Current = 0
		s.Total = total
	})
}

func (r *RedisReporter) Progress(phase session.Phase, current, total int) {
	r.update(current >= total, func(s *Snapshot) {
		s.Phase = phase
		s.Current = current
		s.Total = total
	})
}

func (r *RedisReporter) FileError(phase session.Phase, err error) {
	r.update(false, func(s *Snapshot) {
		s.Errors++
	})
}

func (r *RedisReporter) ScanComplete(result *session.ScanResult) {
	r.update(true, func(s *Snapshot) {
		s.RunID = result.RunID
		s.State = "scanned"
		s.Missing = len(result.Missing)
	})
}

func (r *RedisReporter) ReplicationComplete(report *executor.Report) {
	r.update(true, func(s *Snapshot) {
		s.State = "replicated"
		s.Copied = report.Copied
		s.Skipped = report.Skipped
		s.Failed = report.Failed
	})
}

func (r *RedisReporter) update(force bool, fn func(s *Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&r.snapshot)
	now := r.now()
	r.snapshot.UpdatedAt = now

	if !force && now.Sub(r.lastPublish) < r.interval {
		return
	}
	r.lastPublish = now

	data, err := json.Marshal(r.snapshot)
	if err != nil {
		r.err = fmt.Errorf("marshal progress: %w", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, r.key, string(data), r.ttl).Err(); err != nil {
		r.err = fmt.Errorf("publish progress: %w", err)
	}
}
