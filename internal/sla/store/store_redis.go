package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"concilia/internal/domain"
	"concilia/pkg/platform/sentinel"
)

const (
	statusKeyPrefix = "sla:status:"
	openSetKey      = "sla:open"
)

// saveScript applies the same rule as sla.Supersedes atomically: a closed
// status is never reopened, an extension is never dropped, and otherwise the
// later evaluated_at wins.
//
// KEYS[1] = status hash, KEYS[2] = open set
// ARGV[1] = json, ARGV[2] = evaluated_at (unix nanos), ARGV[3] = closed (0/1),
// ARGV[4] = extension count, ARGV[5] = case id
var saveScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'evaluated_at', 'closed', 'extensions')
if cur[1] then
  if cur[2] == '1' and ARGV[3] ~= '1' then return 0 end
  if tonumber(cur[3]) > tonumber(ARGV[4]) then return 0 end
  if tonumber(cur[1]) > tonumber(ARGV[2]) then return 0 end
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'evaluated_at', ARGV[2], 'closed', ARGV[3], 'extensions', ARGV[4])
if ARGV[3] == '1' then
  redis.call('SREM', KEYS[2], ARGV[5])
else
  redis.call('SADD', KEYS[2], ARGV[5])
end
return 1
`)

// RedisStore keeps one hash per case plus a set of open case IDs.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func statusKey(caseID string) string {
	return statusKeyPrefix + caseID
}

func (s *RedisStore) Save(ctx context.Context, status domain.SLAStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal sla status: %w", err)
	}
	closed := "0"
	if status.Closed {
		closed = "1"
	}
	applied, err := saveScript.Run(ctx, s.client,
		[]string{statusKey(status.CaseID), openSetKey},
		string(data),
		strconv.FormatInt(status.LastEvaluatedAt.UnixNano(), 10),
		closed,
		strconv.Itoa(len(status.Extensions)),
		status.CaseID,
	).Int()
	if err != nil {
		return fmt.Errorf("save sla status: %w", err)
	}
	if applied == 0 {
		return sentinel.ErrStale
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, caseID string) (domain.SLAStatus, error) {
	data, err := s.client.HGet(ctx, statusKey(caseID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SLAStatus{}, sentinel.ErrNotFound
		}
		return domain.SLAStatus{}, fmt.Errorf("get sla status: %w", err)
	}
	var status domain.SLAStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.SLAStatus{}, fmt.Errorf("decode sla status: %w", err)
	}
	return status, nil
}

func (s *RedisStore) ListOpen(ctx context.Context) ([]domain.SLAStatus, error) {
	ids, err := s.client.SMembers(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list open sla cases: %w", err)
	}
	sort.Strings(ids)
	out := make([]domain.SLAStatus, 0, len(ids))
	for _, id := range ids {
		status, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !status.Closed {
			out = append(out, status)
		}
	}
	return out, nil
}
