// Package redis implements the presence store on Redis so that every
// instance behind a load balancer sees the same online set.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence provides presence storage in Redis. It implements
// presence.Store.
type Presence struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, addr, password string) (*Presence, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Presence{
		cli: cli,
	}, nil
}

const (
	sessionsKey     = "presence:sessions"      // hash: session id -> user id
	userSessionsKey = "presence:user_sessions" // zset: user id -> live session count
	lastSeenKey     = "presence:last_seen"     // zset: user id -> heartbeat unix nanos
)

// AddSession binds a session to a user and bumps the user's live
// session count.
func (p *Presence) AddSession(ctx context.Context, sessionID string, userID int64) error {
	member := strconv.FormatInt(userID, 10)
	_, err := p.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionsKey, sessionID, member)
		pipe.ZIncrBy(ctx, userSessionsKey, 1, member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add session: %w", err)
	}
	return nil
}

// removeSessionScript deletes the session and decrements the session
// count in one step, so two removals of the same session cannot both
// decrement. It returns the user the session belonged to, or nil when
// the session was already gone.
var removeSessionScript = redis.NewScript(`
local member = redis.call("HGET", KEYS[1], ARGV[1])
if not member then
	return false
end
redis.call("HDEL", KEYS[1], ARGV[1])
local count = redis.call("ZINCRBY", KEYS[2], -1, member)
if tonumber(count) <= 0 then
	redis.call("ZREM", KEYS[2], member)
end
return member
`)

// RemoveSession unbinds a session. The user drops out of the online set
// only when their last session goes.
func (p *Presence) RemoveSession(ctx context.Context, sessionID string) (int64, bool, error) {
	member, err := removeSessionScript.Run(ctx, p.cli, []string{sessionsKey, userSessionsKey}, sessionID).Text()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("remove session: %w", err)
	}
	userID, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse user id: %w", err)
	}
	return userID, true, nil
}

// Touch records a heartbeat, scored by its timestamp.
func (p *Presence) Touch(ctx context.Context, userID int64) error {
	err := p.cli.ZAdd(ctx, lastSeenKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// Online returns the union of users holding a live session and users
// whose heartbeat is at most maxAge old.
func (p *Presence) Online(ctx context.Context, maxAge time.Duration) ([]int64, error) {
	connected, err := p.cli.ZRangeByScore(ctx, userSessionsKey, &redis.ZRangeBy{
		Min: "1",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange sessions: %w", err)
	}

	cutoff := time.Now().Add(-maxAge).UnixNano()
	recent, err := p.cli.ZRangeByScore(ctx, lastSeenKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange heartbeats: %w", err)
	}
	// Expired heartbeats are dead weight from here on.
	if err := p.cli.ZRemRangeByScore(ctx, lastSeenKey, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		return nil, fmt.Errorf("zremrange: %w", err)
	}

	seen := make(map[int64]bool, len(connected)+len(recent))
	out := make([]int64, 0, len(connected)+len(recent))
	for _, member := range append(connected, recent...) {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// Clear wipes all presence keys. Called at service shutdown so a
// restart starts from an empty set.
func (p *Presence) Clear(ctx context.Context) error {
	if err := p.cli.Del(ctx, sessionsKey, userSessionsKey, lastSeenKey).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *Presence) Close() error {
	return p.cli.Close()
}
