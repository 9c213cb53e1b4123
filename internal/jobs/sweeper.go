package jobs

import (
	"context"
	"log"
	"log/slog"
	"time"

	"healthshare/internal/db"
	"healthshare/internal/lifecycle"
)

// Sweeper is the background process converting time-expired active shares
// into expired shares. It never touches the store directly: every hit is
// routed through the lifecycle engine, which holds the per-record
// serialization point.
type Sweeper struct {
	db        *db.DB
	engine    *lifecycle.Engine
	interval  time.Duration
	batchSize int
}

// NewSweeper creates a new expiry sweeper.
func NewSweeper(database *db.DB, engine *lifecycle.Engine, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		db:        database,
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	log.Printf("Expiry sweeper started (interval: %v, batch: %d)", s.interval, s.batchSize)

	// Run immediately on start
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires one batch of overdue shares. Races with concurrent
// accesses and revokes are benign: ExpireDue re-derives under the row lock
// and leaves records that moved on their own alone.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ids, err := s.db.GetDueShareIDs(ctx, time.Now(), s.batchSize)
	if err != nil {
		slog.Error("sweeper: failed to list due shares", "error", err)
		return
	}

	if len(ids) == 0 {
		return
	}

	slog.Info("sweeper: expiring shares", "count", len(ids))

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.engine.ExpireDue(ctx, id); err != nil {
			// Busy just means someone else holds the record; the next
			// cycle picks it up again.
			slog.Warn("sweeper: failed to expire share", "share_id", id, "error", err)
		}
	}
}
