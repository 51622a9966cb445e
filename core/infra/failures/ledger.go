// Package failures keeps the entries an import run could not submit so they
// can be inspected after the run.
package failures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 7 * 24 * time.Hour
	maxRuns      = 1000
	defaultLimit = 100
)

var errRunIDRequired = errors.New("run id required")

// Entry is one failed archive entry.
type Entry struct {
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	Category  string    `json:"category,omitempty"`
	Command   string    `json:"command,omitempty"`
	Version   int       `json:"version,omitempty"`
	Status    int       `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Run summarises one import run in the index.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Failures  int64     `json:"failures"`
}

// Ledger stores failures per run in Redis: a list per run plus a sorted index
// of runs.
type Ledger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLedger wraps an existing client. ttl <= 0 keeps run data for a week.
func NewLedger(client *redis.Client, ttl time.Duration) (*Ledger, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Ledger{client: client, ttl: ttl}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

// Add appends an entry to its run and refreshes the run index.
func (l *Ledger) Add(ctx context.Context, entry Entry) error {
	if entry.RunID == "" {
		return errRunIDRequired
	}
	if entry.Path == "" {
		return errors.New("entry path required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal failure entry: %w", err)
	}
	key := runKey(entry.RunID)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, l.ttl)
	pipe.ZAddNX(ctx, runIndexKey(), redis.Z{Score: float64(entry.CreatedAt.Unix()), Member: entry.RunID})
	pipe.ZRemRangeByRank(ctx, runIndexKey(), 0, -(maxRuns + 1))
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to limit failures of a run in the order they happened.
func (l *Ledger) List(ctx context.Context, runID string, limit int64) ([]Entry, error) {
	if runID == "" {
		return nil, errRunIDRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	items, err := l.client.LRange(ctx, runKey(runID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Runs returns the most recent runs that recorded failures, newest first.
// Runs whose data has expired are dropped from the index.
func (l *Ledger) Runs(ctx context.Context, limit int64) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	members, err := l.client.ZRevRangeWithScores(ctx, runIndexKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []Run{}, nil
	}
	pipe := l.client.Pipeline()
	counts := make([]*redis.IntCmd, len(members))
	for i, m := range members {
		counts[i] = pipe.LLen(ctx, runKey(fmt.Sprint(m.Member)))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]Run, 0, len(members))
	var stale []interface{}
	for i, m := range members {
		id := fmt.Sprint(m.Member)
		n, err := counts[i].Result()
		if err != nil || n == 0 {
			stale = append(stale, id)
			continue
		}
		out = append(out, Run{ID: id, StartedAt: time.Unix(int64(m.Score), 0).UTC(), Failures: n})
	}
	if len(stale) > 0 {
		_ = l.client.ZRem(ctx, runIndexKey(), stale...).Err()
	}
	return out, nil
}

// Delete removes every failure of a run.
func (l *Ledger) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errRunIDRequired
	}
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, runKey(runID))
	pipe.ZRem(ctx, runIndexKey(), runID)
	_, err := pipe.Exec(ctx)
	return err
}

func runKey(runID string) string {
	return "import:failures:" + runID
}

func runIndexKey() string {
	return "import:runs"
}
