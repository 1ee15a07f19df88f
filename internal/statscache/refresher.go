package statscache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/ledger"
	"presence/internal/queue"
)

// StatsSource recomputes stats for one session.
type StatsSource interface {
	SessionStats(ctx context.Context, sessionID string, r ledger.Reader) (attendance.SessionStats, error)
}

// Refresher rebuilds snapshots in response to queue events. Ledger is
// optional.
type Refresher struct {
	Stats  StatsSource
	Ledger ledger.Reader
	Cache  *Cache
	Log    *zap.Logger
}

// Run consumes q until ctx is done.
func (r *Refresher) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if err := r.Handle(ctx, msg); err != nil {
			r.logger().Warn("refresh failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return ctx.Err()
}

// Handle refreshes the snapshot named by one event. Unknown event types
// are ignored. A session that no longer exists has its snapshot dropped.
func (r *Refresher) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeAttendanceMarked, queue.TypeSessionClosed:
	default:
		r.logger().Debug("ignoring event", zap.String("type", msg.Type))
		return nil
	}
	ev, err := msg.SessionEvent()
	if err != nil {
		return err
	}
	stats, err := r.Stats.SessionStats(ctx, ev.SessionID, r.Ledger)
	if errors.Is(err, attendance.ErrNotFound) {
		return r.Cache.Drop(ctx, ev.SessionID)
	}
	if err != nil {
		return err
	}
	snap, err := r.Cache.Put(ctx, stats)
	if err != nil {
		return err
	}
	r.logger().Debug("stats refreshed",
		zap.String("session_id", ev.SessionID),
		zap.Int("total_records", snap.TotalRecords),
	)
	return nil
}

func (r *Refresher) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
