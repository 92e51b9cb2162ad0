package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix     = "lite:run:"    // live status: lite:run:{run_uuid}
	eventChannelPrefix  = "lite:events:" // pub/sub channel: lite:events:{run_uuid}
	statusTTL           = 24 * time.Hour
	memoryStatusEntries = 10000
)

// Event types
const (
	EventProgress = "progress"
	EventDone     = "done"
)

// CategoryProgress is the live outcome of one category of a run
type CategoryProgress struct {
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Failed   int64  `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// Status is the live view of one ingestion run
type Status struct {
	RunUUID    string                      `json:"run_uuid"`
	CaseID     uint64                      `json:"case_id"`
	Filename   string                      `json:"filename"`
	Status     string                      `json:"status"`
	Accepted   int64                       `json:"accepted"`
	Rejected   int64                       `json:"rejected"`
	Failed     int64                       `json:"failed"`
	Categories map[string]CategoryProgress `json:"categories,omitempty"`
	Error      string                      `json:"error,omitempty"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// Event is published on every status change
type Event struct {
	Type   string `json:"type"`
	Status Status `json:"status"`
}

// statusOf seeds a Status from a persisted run
func statusOf(run *models.IngestionRun) Status {
	return Status{
		RunUUID:   run.RunUUID,
		CaseID:    run.CaseID,
		Filename:  run.Filename,
		Status:    run.Status,
		Accepted:  run.Accepted,
		Rejected:  run.Rejected,
		Failed:    run.Failed,
		Error:     run.Error,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *Status) terminal() bool {
	return (&models.IngestionRun{Status: s.Status}).Terminal()
}

// total recomputes the run counters from the categories
func (s *Status) total() {
	s.Accepted, s.Rejected, s.Failed = 0, 0, 0
	for _, c := range s.Categories {
		s.Accepted += c.Accepted
		s.Rejected += c.Rejected
		s.Failed += c.Failed
	}
}

// StatusStore keeps the live progress of ingestion runs
type StatusStore interface {
	Put(ctx context.Context, st Status) error
	Get(ctx context.Context, runUUID string) (*Status, error)
	Close() error
}

// NewStatusStore returns a Redis store for a non-empty url, otherwise an in-memory one
func NewStatusStore(url string) (StatusStore, error) {
	if url == "" {
		return NewMemoryStatusStore(), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: REDIS_URL: %v", types.ErrInvalidArgument, err)
	}
	return NewRedisStatusStore(redis.NewClient(opts)), nil
}

// RedisStatusStore keeps statuses in Redis and publishes each change
type RedisStatusStore struct {
	client *redis.Client
}

// NewRedisStatusStore wraps a Redis client
func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client}
}

// Put stores the status with a 24h TTL and publishes it
func (r *RedisStatusStore) Put(ctx context.Context, st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	event := Event{Type: EventProgress, Status: st}
	if st.terminal() {
		event.Type = EventDone
	}
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, statusKey(st.RunUUID), data, statusTTL)
	pipe.Publish(ctx, eventChannel(st.RunUUID), eventData)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}
	return nil
}

// Get returns the live status of a run
func (r *RedisStatusStore) Get(ctx context.Context, runUUID string) (*Status, error) {
	data, err := r.client.Get(ctx, statusKey(runUUID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: status of run %s", types.ErrNotFound, runUUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	var st Status
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &st, nil
}

// Subscribe returns the event channel of one run
func (r *RedisStatusStore) Subscribe(ctx context.Context, runUUID string) *redis.PubSub {
	return r.client.Subscribe(ctx, eventChannel(runUUID))
}

// Close closes the client
func (r *RedisStatusStore) Close() error {
	return r.client.Close()
}

// Ping checks the connection
func (r *RedisStatusStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func statusKey(runUUID string) string {
	return statusKeyPrefix + runUUID
}

func eventChannel(runUUID string) string {
	return eventChannelPrefix + runUUID
}

// MemoryStatusStore keeps statuses in process, dropping expired entries on write
type MemoryStatusStore struct {
	mu      sync.RWMutex
	entries map[string]Status
}

// NewMemoryStatusStore returns an empty store
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{entries: make(map[string]Status)}
}

func (m *MemoryStatusStore) Put(_ context.Context, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= memoryStatusEntries {
		cutoff := time.Now().Add(-statusTTL)
		for k, v := range m.entries {
			if v.UpdatedAt.Before(cutoff) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[st.RunUUID] = st
	return nil
}

func (m *MemoryStatusStore) Get(_ context.Context, runUUID string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.entries[runUUID]
	if !ok || time.Since(st.UpdatedAt) > statusTTL {
		return nil, fmt.Errorf("%w: status of run %s", types.ErrNotFound, runUUID)
	}
	return &st, nil
}

func (m *MemoryStatusStore) Close() error { return nil }
