package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/model"
)

// Redis key layout
const (
	KeyPrefix  = "job:status:"
	IndexKey   = "job:status:index"
	DefaultTTL = 24 * time.Hour
)

// RedisStore keeps one hash per job plus an index set of job ids
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a store on rdb. Entries expire after ttl; a
// non-positive ttl uses DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(jobID string) string {
	return KeyPrefix + jobID
}

// Record implements Store
func (r *RedisStore) Record(ctx context.Context, e events.Event) error {
	key := jobKey(e.JobID)
	prev, err := r.rdb.HGet(ctx, key, "status").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}
	if model.JobStatus(prev).IsFinished() {
		return nil
	}

	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	fields := map[string]interface{}{
		"job_id":     e.JobID,
		"status":     string(StatusFor(e.Kind)),
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	}
	if e.Percent > 0 {
		fields["percent"] = strconv.FormatFloat(e.Percent, 'f', -1, 64)
	}
	if e.Path != "" {
		fields["path"] = e.Path
	}
	if e.Message != "" {
		fields["error"] = e.Message
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, IndexKey, e.JobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record job status: %w", err)
	}
	return nil
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, jobID string) (Entry, error) {
	data, err := r.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read job status: %w", err)
	}
	if len(data) == 0 {
		return Entry{}, errs.ErrJobNotFound
	}
	return entryFromHash(data), nil
}

// List implements Store. Ids whose hash has expired are pruned from the index.
func (r *RedisStore) List(ctx context.Context) ([]Entry, error) {
	ids, err := r.rdb.SMembers(ctx, IndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read job statuses: %w", err)
	}

	entries := make([]Entry, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		entries = append(entries, entryFromHash(data))
	}
	if len(stale) > 0 {
		if err := r.rdb.SRem(ctx, IndexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune job index: %w", err)
		}
	}

	sortEntries(entries)
	return entries, nil
}

func entryFromHash(data map[string]string) Entry {
	e := Entry{
		JobID:  data["job_id"],
		Status: model.JobStatus(data["status"]),
		Path:   data["path"],
		Error:  data["error"],
	}
	if v, err := strconv.ParseFloat(data["percent"], 64); err == nil {
		e.Percent = v
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updated_at"]); err == nil {
		e.UpdatedAt = t
	}
	return e
}
