package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
	"github.com/redis/go-redis/v9"
)

// transitionScript compares and sets the status field atomically.
// Returns -1 when the key is missing, 0 when the status did not match.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updated', ARGV[3])
return 1
`)

// RedisStore is a Redis implementation of the SubmissionStore interface.
// Each submission is a hash holding its JSON body plus a separately
// updatable status.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, ttl time.Duration) ports.SubmissionStore {
	return &RedisStore{
		client: client,
		prefix: "planmint:",
		ttl:    ttl,
	}
}

func (s *RedisStore) submissionKey(id string) string {
	return s.prefix + "submission:" + id
}

func (s *RedisStore) latestKey(wallet, mint string) string {
	return s.prefix + "latest:" + latestKey(wallet, mint)
}

// Save writes the submission and its latest pointer in one transaction
func (s *RedisStore) Save(ctx context.Context, sub *core.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	key := s.submissionKey(sub.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"data", data,
			"status", string(sub.Status),
			"updated", sub.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Set(ctx, s.latestKey(sub.Wallet, sub.Mint), sub.ID, s.ttl)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

// Get loads a submission by id
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Submission, error) {
	fields, err := s.client.HGetAll(ctx, s.submissionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrSubmissionNotFound
	}

	var sub core.Submission
	if err := json.Unmarshal([]byte(fields["data"]), &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}
	sub.Status = core.SubmissionStatus(fields["status"])
	if updated, err := time.Parse(time.RFC3339Nano, fields["updated"]); err == nil {
		sub.UpdatedAt = updated
	}
	return &sub, nil
}

// Transition runs the compare-and-set script
func (s *RedisStore) Transition(ctx context.Context, id string, from, to core.SubmissionStatus) (bool, error) {
	res, err := transitionScript.Run(ctx, s.client,
		[]string{s.submissionKey(id)},
		string(from), string(to), time.Now().UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to transition submission: %w", err)
	}
	switch res {
	case -1:
		return false, core.ErrSubmissionNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// Latest follows the wallet and mint pointer to the newest submission
func (s *RedisStore) Latest(ctx context.Context, wallet, mint string) (*core.Submission, error) {
	id, err := s.client.Get(ctx, s.latestKey(wallet, mint)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest submission: %w", err)
	}
	return s.Get(ctx, id)
}
