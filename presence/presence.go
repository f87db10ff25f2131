// Package presence tracks which users are currently reachable, from
// connection lifecycle signals, periodic heartbeats, or both.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// OnlineUsersTopic carries full snapshots of the online user set.
const OnlineUsersTopic = "online-users"

// DefaultMaxAge is how recent a heartbeat must be for its user to count
// as online when no window is configured.
const DefaultMaxAge = 10 * time.Second

// A Store records presence signals. Two implementations exist: an
// in-memory session store and a Redis-backed one, selected by
// deployment configuration. Implementations must tolerate concurrent
// calls.
type Store interface {
	// AddSession binds a live session to a user.
	AddSession(ctx context.Context, sessionID string, userID int64) error
	// RemoveSession unbinds a session, reporting which user it belonged
	// to. ok is false for sessions the store never saw.
	RemoveSession(ctx context.Context, sessionID string) (userID int64, ok bool, err error)
	// Touch records a heartbeat for a user with no persistent connection.
	Touch(ctx context.Context, userID int64) error
	// Online returns users with at least one live session or a heartbeat
	// within maxAge.
	Online(ctx context.Context, maxAge time.Duration) ([]int64, error)
}

// A Broadcaster fans the online snapshot out to live subscribers.
type Broadcaster interface {
	Publish(topic string, payload any)
}

// Tracker unifies connection-oriented and heartbeat-oriented presence
// behind one contract. Connect and Disconnect publish a full snapshot
// of the online set; heartbeats never broadcast on their own.
type Tracker struct {
	Logger    *slog.Logger
	Store     Store
	Broadcast Broadcaster

	// MaxAge is the heartbeat liveness window. Zero means DefaultMaxAge.
	MaxAge time.Duration
}

func (t *Tracker) maxAge() time.Duration {
	if t.MaxAge > 0 {
		return t.MaxAge
	}
	return DefaultMaxAge
}

// Connect records a new live session and broadcasts the updated online
// set.
func (t *Tracker) Connect(ctx context.Context, sessionID string, userID int64) error {
	if err := t.Store.AddSession(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("add session: %w", err)
	}
	t.Logger.Info("Session connected", "session_id", sessionID, "user_id", userID)
	t.snapshot(ctx)
	return nil
}

// Disconnect drops a session. A user stays online while any other
// session of theirs is live. Unknown sessions are ignored.
func (t *Tracker) Disconnect(ctx context.Context, sessionID string) error {
	userID, ok, err := t.Store.RemoveSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	if !ok {
		return nil
	}
	t.Logger.Info("Session disconnected", "session_id", sessionID, "user_id", userID)
	t.snapshot(ctx)
	return nil
}

// Heartbeat records liveness for the fallback model. No event is
// emitted; pollers read the set via OnlineUsers.
func (t *Tracker) Heartbeat(ctx context.Context, userID int64) error {
	if err := t.Store.Touch(ctx, userID); err != nil {
		return fmt.Errorf("touch: %w", err)
	}
	return nil
}

// OnlineUsers returns the ids of currently reachable users, ascending.
func (t *Tracker) OnlineUsers(ctx context.Context) ([]int64, error) {
	ids, err := t.Store.Online(ctx, t.maxAge())
	if err != nil {
		return nil, fmt.Errorf("online: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// snapshot publishes the full online set. O(online users) per
// connect/disconnect; acceptable at this system's scale.
func (t *Tracker) snapshot(ctx context.Context) {
	ids, err := t.OnlineUsers(ctx)
	if err != nil {
		t.Logger.Error("Could not read online set", "error", err.Error())
		return
	}
	t.Broadcast.Publish(OnlineUsersTopic, ids)
}
