// Package queue implements the durable job queue shared by the API server
// and worker processes. Jobs are de-duplicated by id: re-submitting an id
// that is already pending replaces its payload instead of adding a second
// queue entry, so at most one processing attempt per id is ever outstanding.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmfontes/callscribe/pkg/models"
)

const (
	pendingList   = "queue:pending"
	idSet         = "queue:ids"
	payloadPrefix = "queue:job:"
)

// Message is the queue wire format between producer and worker.
type Message struct {
	JobID     uuid.UUID          `json:"job_id"`
	AudioPath string             `json:"audio_path"`
	Options   models.TaskOptions `json:"options"`
}

// Queue is a Redis-backed FIFO with per-job-id de-duplication.
type Queue struct {
	client *redis.Client
}

// New creates a Queue from a Redis URL.
func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &Queue{client: redis.NewClient(opts)}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue submits a job. The payload write always wins; the list push is
// guarded by the id set, so a job already pending keeps its single slot and
// only its payload is replaced.
func (q *Queue) Enqueue(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queue message: %w", err)
	}

	id := msg.JobID.String()
	if err := q.client.Set(ctx, payloadPrefix+id, data, 0).Err(); err != nil {
		return fmt.Errorf("store queue payload: %w", err)
	}

	added, err := q.client.SAdd(ctx, idSet, id).Result()
	if err != nil {
		return fmt.Errorf("register queue id: %w", err)
	}
	if added == 0 {
		// Already pending; payload replaced, nothing to push.
		return nil
	}

	if err := q.client.LPush(ctx, pendingList, id).Err(); err != nil {
		return fmt.Errorf("push queue id: %w", err)
	}
	return nil
}

// Dequeue claims the oldest pending job, blocking up to timeout. Returns
// (nil, false, nil) when no job arrived within the window.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, bool, error) {
	vals, err := q.client.BRPop(ctx, timeout, pendingList).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pop queue: %w", err)
	}

	id := vals[1]
	data, err := q.client.Get(ctx, payloadPrefix+id).Bytes()

	// Release the id before decoding so the job can be re-submitted
	// regardless of what happens to this attempt.
	q.client.Del(ctx, payloadPrefix+id)
	q.client.SRem(ctx, idSet, id)

	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load queue payload: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("decode queue message: %w", err)
	}
	return &msg, true, nil
}

// Len reports the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, pendingList).Result()
}
