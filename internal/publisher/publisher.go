package publisher

import (
	"context"
	"errors"
	"time"

	"jobfeed/internal/domain/feed"
	"jobfeed/internal/events"
	"jobfeed/internal/infrastructure/scoreindex"
	"jobfeed/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	updateRetries      = 3
	sweepLockKey       = "feed:sweep:lock"
	sweepCheckpointKey = "feed:sweep:checkpoint"
	sweepLockTTL       = 10 * time.Minute
)

// Notifier receives every published or refreshed feed item; the websocket
// hub implements it to push live updates.
type Notifier interface {
	FeedItemPublished(item feed.Item)
}

// SweepCache persists the sweep checkpoint and the cross-process sweep lock.
type SweepCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SetIfNotExists(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// SnapshotSource replays the current state of the portal's entities as
// domain events; Rebuild consumes one for disaster recovery.
type SnapshotSource interface {
	Events(ctx context.Context) (<-chan events.DomainEvent, error)
}

// Publisher turns domain events into feed items and keeps the score index
// in step with the store.
type Publisher struct {
	repo   repository.FeedItemRepository
	index  *scoreindex.Index
	scorer *feed.Scorer
	locks  *keyedMutex
	cache  SweepCache
	notify Notifier
	logger *zap.Logger

	sweepBatchSize int
	now            func() time.Time
}

type Option func(*Publisher)

func WithNotifier(n Notifier) Option {
	return func(p *Publisher) { p.notify = n }
}

func WithSweepCache(c SweepCache) Option {
	return func(p *Publisher) { p.cache = c }
}

func WithSweepBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.sweepBatchSize = n
		}
	}
}

// withClock overrides time in tests.
func withClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func New(repo repository.FeedItemRepository, index *scoreindex.Index, scorer *feed.Scorer, logger *zap.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		repo:           repo,
		index:          index,
		scorer:         scorer,
		locks:          newKeyedMutex(),
		logger:         logger,
		sweepBatchSize: 500,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply transitions the feed item for the event's (event_type, subject).
// Creation and refresh hold a per-subject lock, which makes duplicate
// at-least-once deliveries collapse into a single item.
func (p *Publisher) Apply(ctx context.Context, evt events.DomainEvent) error {
	unlock := p.locks.Lock(subjectKey(evt.Type, evt.Subject))
	defer unlock()

	if evt.Deactivate {
		return p.deactivate(ctx, evt)
	}

	existing, err := p.repo.FindBySubject(ctx, evt.Type, evt.Subject)
	switch {
	case err == nil:
		return p.refresh(ctx, existing, evt.Multiplier())
	case errors.Is(err, repository.ErrFeedItemNotFound):
		return p.create(ctx, evt)
	default:
		return err
	}
}

func (p *Publisher) create(ctx context.Context, evt events.DomainEvent) error {
	now := p.now()
	mult := evt.Multiplier()
	item := feed.Item{
		ID:         uuid.New(),
		EventType:  evt.Type,
		Subject:    evt.Subject,
		Score:      p.scorer.Score(evt.Type, mult, evt.OccurredAt, now),
		Multiplier: mult,
		CreatedAt:  evt.OccurredAt,
	}

	stored, created, err := p.repo.Upsert(ctx, item)
	if err != nil {
		return err
	}
	if err := p.index.Upsert(ctx, stored.ID, stored.Score.InexactFloat64()); err != nil {
		return err
	}

	p.logger.Info("feed item published",
		zap.String("feed_item_id", stored.ID.String()),
		zap.String("event_type", string(stored.EventType)),
		zap.String("entity_kind", string(stored.Subject.Kind)),
		zap.String("entity_id", stored.Subject.ID.String()),
		zap.Bool("created", created),
	)
	if p.notify != nil {
		p.notify.FeedItemPublished(stored)
	}
	return nil
}

// refresh recomputes the score in place. Age still counts from the item's
// immutable created_at; a renewal changes the multiplier, not the clock.
func (p *Publisher) refresh(ctx context.Context, item feed.Item, multiplier float64) error {
	for attempt := 0; attempt < updateRetries; attempt++ {
		score := p.scorer.Score(item.EventType, multiplier, item.CreatedAt, p.now())

		err := p.repo.UpdateScore(ctx, item.ID, score, multiplier, item.Version)
		if err == nil {
			if err := p.index.Upsert(ctx, item.ID, score.InexactFloat64()); err != nil {
				return err
			}
			item.Score = score
			item.Multiplier = multiplier
			if p.notify != nil {
				p.notify.FeedItemPublished(item)
			}
			return nil
		}
		if errors.Is(err, repository.ErrFeedItemNotFound) {
			// Deactivated between read and write; nothing to refresh.
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}

		fresh, err := p.repo.FindBySubject(ctx, item.EventType, item.Subject)
		if errors.Is(err, repository.ErrFeedItemNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		item = fresh
	}
	return repository.ErrVersionConflict
}

func (p *Publisher) deactivate(ctx context.Context, evt events.DomainEvent) error {
	ids, err := p.repo.Deactivate(ctx, evt.Type, evt.Subject)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := p.index.Remove(ctx, id); err != nil {
			return err
		}
		p.logger.Info("feed item deactivated",
			zap.String("feed_item_id", id.String()),
			zap.String("event_type", string(evt.Type)),
			zap.String("entity_id", evt.Subject.ID.String()),
		)
	}
	return nil
}

// Sweep recomputes decay scores for every active item in id order. The
// last-processed id is checkpointed after each batch, so an interrupted
// sweep resumes where it stopped instead of starting over. A redis lock
// keeps concurrent processes from sweeping at the same time.
func (p *Publisher) Sweep(ctx context.Context) error {
	if p.cache != nil {
		ok, err := p.cache.SetIfNotExists(ctx, sweepLockKey, "1", sweepLockTTL)
		switch {
		case err != nil:
			// Lock service unavailable; sweep unguarded but never release a
			// lock another process may hold.
			p.logger.Warn("sweep lock unavailable, proceeding without it", zap.Error(err))
		case !ok:
			p.logger.Debug("sweep already running elsewhere, skipping")
			return nil
		default:
			defer func() { _ = p.cache.Delete(context.WithoutCancel(ctx), sweepLockKey) }()
		}
	}

	last := p.loadCheckpoint(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := p.repo.ListActiveAfterID(ctx, last, p.sweepBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			p.clearCheckpoint(ctx)
			return nil
		}

		for _, item := range batch {
			if err := ctx.Err(); err != nil {
				p.saveCheckpoint(ctx, last)
				return err
			}
			if err := p.refresh(ctx, item, item.Multiplier); err != nil {
				p.logger.Warn("sweep refresh failed",
					zap.String("feed_item_id", item.ID.String()),
					zap.Error(err),
				)
			}
			last = item.ID
		}
		p.saveCheckpoint(ctx, last)
	}
}

// Prune deletes inactive rows older than the retention cutoff. Active rows
// are never touched; the operation is irreversible.
func (p *Publisher) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	deleted, err := p.repo.PruneInactive(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	p.logger.Info("pruned inactive feed items",
		zap.Int64("deleted", deleted),
		zap.Time("older_than", olderThan),
	)
	return deleted, nil
}

// Rebuild wipes the feed and replays a snapshot of the source entities.
// Disaster recovery only; invoked by the admin CLI, never automatically.
func (p *Publisher) Rebuild(ctx context.Context, src SnapshotSource) error {
	if src == nil {
		return errors.New("nil snapshot source")
	}

	if err := p.repo.DeleteAll(ctx); err != nil {
		return err
	}
	if err := p.index.Clear(ctx); err != nil {
		return err
	}
	p.clearCheckpoint(ctx)

	ch, err := src.Events(ctx)
	if err != nil {
		return err
	}

	var applied int
	for evt := range ch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Apply(ctx, evt); err != nil {
			return err
		}
		applied++
	}

	p.logger.Info("feed rebuilt", zap.Int("events_applied", applied))
	return nil
}

func (p *Publisher) loadCheckpoint(ctx context.Context) uuid.UUID {
	if p.cache == nil {
		return uuid.Nil
	}
	var raw string
	hit, err := p.cache.GetJSON(ctx, sweepCheckpointKey, &raw)
	if err != nil || !hit {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	p.logger.Info("resuming sweep from checkpoint", zap.String("after_id", raw))
	return id
}

func (p *Publisher) saveCheckpoint(ctx context.Context, id uuid.UUID) {
	if p.cache == nil || id == uuid.Nil {
		return
	}
	_ = p.cache.SetJSON(context.WithoutCancel(ctx), sweepCheckpointKey, id.String(), sweepLockTTL)
}

func (p *Publisher) clearCheckpoint(ctx context.Context) {
	if p.cache == nil {
		return
	}
	_ = p.cache.Delete(context.WithoutCancel(ctx), sweepCheckpointKey)
}

func subjectKey(t feed.EventType, s feed.Subject) string {
	return string(t) + "|" + string(s.Kind) + "|" + s.ID.String()
}
