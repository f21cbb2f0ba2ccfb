// Package heartbeat keeps per-task keeper heartbeats and the watcher cursor
// in Redis.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/moebius-network/moebius/keeper/internal/scheduler"
)

const keyPrefix = "moebius"

// ErrDisabled is returned by reads from a disabled store.
var ErrDisabled = errors.New("heartbeat store is disabled")

// Store manages keeper state in Redis
type Store struct {
	redis   *redis.Client
	enabled bool
	ttl     time.Duration
}

var _ scheduler.Reporter = (*Store)(nil)

// NewStore creates a store. ttl expires heartbeats of tasks that stop
// reporting; zero keeps them forever.
func NewStore(redisClient *redis.Client, enabled bool, ttl time.Duration) *Store {
	return &Store{
		redis:   redisClient,
		enabled: enabled,
		ttl:     ttl,
	}
}

// IsEnabled returns whether the store is enabled
func (s *Store) IsEnabled() bool {
	return s.enabled && s.redis != nil
}

// Beat is the last reported cycle of a task.
type Beat struct {
	Task                string `json:"task"`
	CycleID             string `json:"cycle_id"`
	Outcome             string `json:"outcome"`
	LastSeen            int64  `json:"last_seen"` // Unix timestamp
	LastSuccess         int64  `json:"last_success,omitempty"`
	TxHash              string `json:"tx_hash,omitempty"`
	Block               uint64 `json:"block,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Error               string `json:"error,omitempty"`
}

// ReportCycle records a heartbeat for the cycle's task. A disabled store
// does nothing.
func (s *Store) ReportCycle(ctx context.Context, res scheduler.CycleResult) error {
	if !s.IsEnabled() {
		return nil
	}

	prev, err := s.Get(ctx, res.Task)
	if err != nil {
		return err
	}

	beat := Beat{
		Task:     res.Task,
		CycleID:  res.CycleID,
		Outcome:  res.Outcome,
		LastSeen: res.Started.Unix(),
		Block:    res.Block,
	}
	if res.TxHash != (common.Hash{}) {
		beat.TxHash = res.TxHash.Hex()
	}
	if prev != nil {
		beat.LastSuccess = prev.LastSuccess
		beat.ConsecutiveFailures = prev.ConsecutiveFailures
	}
	if res.Err != nil {
		beat.ConsecutiveFailures++
		beat.Error = res.Err.Error()
	} else {
		beat.ConsecutiveFailures = 0
		beat.LastSuccess = res.Started.Unix()
	}

	data, err := json.Marshal(beat)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}
	if err := s.redis.Set(ctx, heartbeatKey(res.Task), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save heartbeat: %w", err)
	}
	return nil
}

// Get returns the heartbeat of task, or nil if it never reported.
func (s *Store) Get(ctx context.Context, task string) (*Beat, error) {
	if !s.IsEnabled() {
		return nil, ErrDisabled
	}

	data, err := s.redis.Get(ctx, heartbeatKey(task)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get heartbeat: %w", err)
	}

	var beat Beat
	if err := json.Unmarshal([]byte(data), &beat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal heartbeat: %w", err)
	}
	return &beat, nil
}

// List returns every stored heartbeat ordered by task name.
func (s *Store) List(ctx context.Context) ([]Beat, error) {
	if !s.IsEnabled() {
		return nil, ErrDisabled
	}

	keys, err := s.redis.Keys(ctx, heartbeatKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get heartbeat keys: %w", err)
	}

	beats := make([]Beat, 0, len(keys))
	for _, key := range keys {
		beat, err := s.Get(ctx, strings.TrimPrefix(key, heartbeatKey("")))
		if err != nil {
			return nil, err
		}
		if beat != nil {
			beats = append(beats, *beat)
		}
	}
	sort.Slice(beats, func(i, j int) bool { return beats[i].Task < beats[j].Task })
	return beats, nil
}

// Cursor returns the next block the watcher should scan for relayAddr.
// ok is false when no cursor has been stored.
func (s *Store) Cursor(ctx context.Context, relayAddr common.Address) (uint64, bool, error) {
	if !s.IsEnabled() {
		return 0, false, nil
	}

	data, err := s.redis.Get(ctx, cursorKey(relayAddr)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	block, err := strconv.ParseUint(data, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cursor %q: %w", data, err)
	}
	return block, true, nil
}

// SetCursor stores the next block to scan for relayAddr.
func (s *Store) SetCursor(ctx context.Context, relayAddr common.Address, next uint64) error {
	if !s.IsEnabled() {
		return nil
	}
	if err := s.redis.Set(ctx, cursorKey(relayAddr), strconv.FormatUint(next, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Helper functions for key generation
func heartbeatKey(task string) string {
	return fmt.Sprintf("%s:heartbeat:%s", keyPrefix, task)
}

func cursorKey(relayAddr common.Address) string {
	return fmt.Sprintf("%s:cursor:%s", keyPrefix, strings.ToLower(relayAddr.Hex()))
}
