package publisher

import (
	"context"
	"time"

	"jobfeed/internal/database"
	"jobfeed/internal/domain/feed"
	"jobfeed/internal/events"

	"github.com/google/uuid"
)

// DatabaseSnapshot replays the portal's current open jobs as publish events.
// It backs the rebuild command: after a wipe, every open job reappears in the
// feed with its original posting time, so decay picks up where it left off.
type DatabaseSnapshot struct {
	db database.DB
}

func NewDatabaseSnapshot(db database.DB) *DatabaseSnapshot {
	return &DatabaseSnapshot{db: db}
}

func (s *DatabaseSnapshot) Events(ctx context.Context) (<-chan events.DomainEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, created_at FROM jobs WHERE status ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}

	out := make(chan events.DomainEvent)
	go func() {
		defer close(out)
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			var createdAt time.Time
			if err := rows.Scan(&id, &createdAt); err != nil {
				return
			}
			evt := events.DomainEvent{
				Type:       feed.EventJobPosted,
				Subject:    feed.Subject{Kind: feed.KindJob, ID: id},
				OccurredAt: createdAt,
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
