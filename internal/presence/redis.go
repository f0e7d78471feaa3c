package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps last-seen stamps in Redis so other processes (and the REST
// layer) can read them. The online key carries a TTL so a crashed process
// does not leave users online forever.
type RedisStore struct {
	rdb       *redis.Client
	onlineTTL time.Duration
}

var _ LastSeenStore = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, onlineTTL time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, onlineTTL: onlineTTL}
}

// DialRedis opens and pings a client.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func onlineKey(userID int64) string   { return "presence:online:" + strconv.FormatInt(userID, 10) }
func lastSeenKey(userID int64) string { return "presence:last_seen:" + strconv.FormatInt(userID, 10) }

func (s *RedisStore) SaveLastSeen(ctx context.Context, userID int64, online bool, at time.Time) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if online {
			p.Set(ctx, onlineKey(userID), "1", s.onlineTTL)
		} else {
			p.Del(ctx, onlineKey(userID))
		}
		p.Set(ctx, lastSeenKey(userID), at.UTC().UnixMilli(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save last seen: %w", err)
	}
	return nil
}

// LastSeen reads back the stamp; ok is false when the user was never seen.
func (s *RedisStore) LastSeen(ctx context.Context, userID int64) (at time.Time, online bool, ok bool, err error) {
	vals, err := s.rdb.MGet(ctx, lastSeenKey(userID), onlineKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return time.Time{}, false, false, fmt.Errorf("read last seen: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return time.Time{}, false, false, nil
	}
	raw, _ := vals[0].(string)
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, false, fmt.Errorf("parse last seen: %w", err)
	}
	return time.UnixMilli(ms).UTC(), vals[1] != nil, true, nil
}

// KeepAlive refreshes the online TTL of every user the tracker sees as online
// until ctx is done.
func (s *RedisStore) KeepAlive(ctx context.Context, t *Tracker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		users := t.OnlineUsers()
		if len(users) == 0 {
			continue
		}
		_, _ = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, id := range users {
				p.Expire(ctx, onlineKey(id), s.onlineTTL)
			}
			return nil
		})
	}
}
