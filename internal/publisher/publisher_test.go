package publisher

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"jobfeed/internal/domain/feed"
	"jobfeed/internal/events"
	"jobfeed/internal/infrastructure/cache"
	"jobfeed/internal/infrastructure/scoreindex"
	"jobfeed/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeFeedRepo is an in-memory FeedItemRepository with the same upsert and
// CAS semantics as the Postgres implementation.
type fakeFeedRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]feed.Item

	failUpdates int // UpdateScore returns ErrVersionConflict this many times
}

func newFakeFeedRepo() *fakeFeedRepo {
	return &fakeFeedRepo{items: make(map[uuid.UUID]feed.Item)}
}

func (r *fakeFeedRepo) Upsert(_ context.Context, item feed.Item) (feed.Item, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.items {
		if existing.IsActive && existing.EventType == item.EventType && existing.Subject == item.Subject {
			existing.Score = item.Score
			existing.Multiplier = item.Multiplier
			existing.Version++
			existing.UpdatedAt = time.Now()
			r.items[id] = existing
			return existing, false, nil
		}
	}

	item.IsActive = true
	item.Version = 1
	item.UpdatedAt = item.CreatedAt
	r.items[item.ID] = item
	return item, true, nil
}

func (r *fakeFeedRepo) FindBySubject(_ context.Context, eventType feed.EventType, subject feed.Subject) (feed.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range r.items {
		if it.IsActive && it.EventType == eventType && it.Subject == subject {
			return it, nil
		}
	}
	return feed.Item{}, repository.ErrFeedItemNotFound
}

func (r *fakeFeedRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]feed.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]feed.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *fakeFeedRepo) UpdateScore(_ context.Context, id uuid.UUID, score decimal.Decimal, multiplier float64, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpdates > 0 {
		r.failUpdates--
		return repository.ErrVersionConflict
	}

	it, ok := r.items[id]
	if !ok || !it.IsActive {
		return repository.ErrFeedItemNotFound
	}
	if it.Version != version {
		return repository.ErrVersionConflict
	}
	it.Score = score
	it.Multiplier = multiplier
	it.Version++
	it.UpdatedAt = time.Now()
	r.items[id] = it
	return nil
}

func (r *fakeFeedRepo) Deactivate(_ context.Context, eventType feed.EventType, subject feed.Subject) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, it := range r.items {
		if it.IsActive && it.EventType == eventType && it.Subject == subject {
			it.IsActive = false
			it.Version++
			r.items[id] = it
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeFeedRepo) ListActivePage(_ context.Context, after *feed.Item, limit int, types []feed.EventType) ([]feed.Item, error) {
	return nil, nil
}

func (r *fakeFeedRepo) ListActiveAfterID(_ context.Context, afterID uuid.UUID, limit int) ([]feed.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []feed.Item
	for _, it := range r.items {
		if it.IsActive && bytes.Compare(it.ID[:], afterID[:]) > 0 {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeFeedRepo) PruneInactive(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, it := range r.items {
		if !it.IsActive && it.UpdatedAt.Before(olderThan) {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeFeedRepo) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[uuid.UUID]feed.Item)
	return nil
}

func (r *fakeFeedRepo) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.IsActive {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []feed.Item
}

func (n *recordingNotifier) FeedItemPublished(item feed.Item) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

type channelSnapshot struct {
	events []events.DomainEvent
}

func (s channelSnapshot) Events(ctx context.Context) (<-chan events.DomainEvent, error) {
	ch := make(chan events.DomainEvent)
	go func() {
		defer close(ch)
		for _, evt := range s.events {
			ch <- evt
		}
	}()
	return ch, nil
}

func testScorer() *feed.Scorer {
	return feed.NewScorer(map[string]float64{
		"job_posted":          1.0,
		"promotion_activated": 10.0,
	}, 48*time.Hour, nil)
}

func testSetup(t *testing.T, opts ...Option) (*Publisher, *fakeFeedRepo, *scoreindex.Index, *cache.Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newFakeFeedRepo()
	idx := scoreindex.NewIndex(client, nil)
	c := cache.NewRedisWithClient(client, nil)

	opts = append([]Option{WithSweepCache(c)}, opts...)
	return New(repo, idx, testScorer(), nil, opts...), repo, idx, c
}

func publishEvent(subject feed.Subject, occurred time.Time) events.DomainEvent {
	return events.DomainEvent{
		Type:       feed.EventJobPosted,
		Subject:    subject,
		OccurredAt: occurred,
	}
}

func TestApply_CreatesItemAndIndexEntry(t *testing.T) {
	pub, repo, idx, _ := testSetup(t)
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())))

	require.Equal(t, 1, repo.activeCount())
	card, err := idx.Card(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, card)
}

func TestApply_DuplicateDeliveriesCollapse(t *testing.T) {
	pub, repo, idx, _ := testSetup(t)
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	evt := publishEvent(subject, time.Now().UTC())

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- pub.Apply(ctx, evt)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, repo.activeCount(), "duplicates must collapse into one item")
	card, err := idx.Card(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, card)
}

func TestApply_RenewalBumpsMultiplierNotClock(t *testing.T) {
	pub, repo, _, _ := testSetup(t)
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindPromotion, ID: uuid.New()}
	created := time.Now().UTC().Add(-24 * time.Hour)

	require.NoError(t, pub.Apply(ctx, events.DomainEvent{
		Type:       feed.EventPromotionActivated,
		Subject:    subject,
		OccurredAt: created,
	}))
	before, err := repo.FindBySubject(ctx, feed.EventPromotionActivated, subject)
	require.NoError(t, err)

	require.NoError(t, pub.Apply(ctx, events.DomainEvent{
		Type:       feed.EventPromotionActivated,
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Attributes: map[string]string{"priority_weight": "2"},
	}))
	after, err := repo.FindBySubject(ctx, feed.EventPromotionActivated, subject)
	require.NoError(t, err)

	require.Equal(t, before.ID, after.ID, "renewal must not create a second item")
	require.Equal(t, 2.0, after.Multiplier)
	require.True(t, after.Score.GreaterThan(before.Score), "doubled weight must raise the score")
	require.True(t, after.CreatedAt.Equal(before.CreatedAt), "age clock must not reset")
}

func TestApply_VersionConflictRetries(t *testing.T) {
	pub, repo, _, _ := testSetup(t)
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())))

	repo.failUpdates = 2
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())),
		"conflicts within the retry budget must succeed")

	repo.failUpdates = updateRetries
	err := pub.Apply(ctx, publishEvent(subject, time.Now().UTC()))
	require.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestApply_DeactivationRemovesFromIndex(t *testing.T) {
	pub, repo, idx, _ := testSetup(t)
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())))

	require.NoError(t, pub.Apply(ctx, events.DomainEvent{
		Type:       feed.EventJobPosted,
		Subject:    subject,
		Deactivate: true,
		OccurredAt: time.Now().UTC(),
	}))

	require.Equal(t, 0, repo.activeCount())
	card, err := idx.Card(ctx)
	require.NoError(t, err)
	require.Zero(t, card)

	// Deactivating an absent subject is a no-op, not an error.
	require.NoError(t, pub.Apply(ctx, events.DomainEvent{
		Type:       feed.EventJobPosted,
		Subject:    feed.Subject{Kind: feed.KindJob, ID: uuid.New()},
		Deactivate: true,
		OccurredAt: time.Now().UTC(),
	}))
}

func TestApply_NotifierSeesPublishes(t *testing.T) {
	notifier := &recordingNotifier{}
	pub, _, _, _ := testSetup(t, WithNotifier(notifier))
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())))
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())))

	require.Equal(t, 2, notifier.count(), "create and refresh both notify")
}

func TestSweep_RecomputesDecayedScores(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	pub, repo, _, _ := testSetup(t, withClock(func() time.Time { return clock }))
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, now)))
	before, err := repo.FindBySubject(ctx, feed.EventJobPosted, subject)
	require.NoError(t, err)

	clock = now.Add(48 * time.Hour)
	require.NoError(t, pub.Sweep(ctx))

	after, err := repo.FindBySubject(ctx, feed.EventJobPosted, subject)
	require.NoError(t, err)
	require.True(t, after.Score.LessThan(before.Score), "sweep must decay the score")
	require.Equal(t, before.Multiplier, after.Multiplier, "sweep must preserve the multiplier")
}

func TestSweep_SkipsWhenLockHeld(t *testing.T) {
	pub, repo, _, c := testSetup(t)
	ctx := context.Background()

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC().Add(-time.Hour))))
	before, err := repo.FindBySubject(ctx, feed.EventJobPosted, subject)
	require.NoError(t, err)

	ok, err := c.SetIfNotExists(ctx, sweepLockKey, "other-process", sweepLockTTL)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, pub.Sweep(ctx))

	after, err := repo.FindBySubject(ctx, feed.EventJobPosted, subject)
	require.NoError(t, err)
	require.True(t, after.Score.Equal(before.Score), "a skipped sweep must not touch scores")
}

// flakyLockCache fails lock acquisition while delegating everything else,
// and records which keys get deleted.
type flakyLockCache struct {
	inner   *cache.Redis
	deleted []string
}

func (f *flakyLockCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	return f.inner.GetJSON(ctx, key, out)
}

func (f *flakyLockCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	return f.inner.SetJSON(ctx, key, value, ttl)
}

func (f *flakyLockCache) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return f.inner.Delete(ctx, key)
}

func (f *flakyLockCache) SetIfNotExists(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("redis timeout")
}

func TestSweep_LockFailureNeverReleasesForeignLock(t *testing.T) {
	now := time.Now().UTC()
	clock := now

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newFakeFeedRepo()
	idx := scoreindex.NewIndex(client, nil)
	inner := cache.NewRedisWithClient(client, nil)
	flaky := &flakyLockCache{inner: inner}

	pub := New(repo, idx, testScorer(), nil,
		WithSweepCache(flaky),
		withClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	// Another process holds the lock; our acquisition attempt errors out.
	held, err := inner.SetIfNotExists(ctx, sweepLockKey, "other-process", sweepLockTTL)
	require.NoError(t, err)
	require.True(t, held)

	subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(subject, now)))
	before, err := repo.FindBySubject(ctx, feed.EventJobPosted, subject)
	require.NoError(t, err)

	clock = now.Add(48 * time.Hour)
	require.NoError(t, pub.Sweep(ctx))

	after, err := repo.FindBySubject(ctx, feed.EventJobPosted, subject)
	require.NoError(t, err)
	require.True(t, after.Score.LessThan(before.Score), "sweep proceeds when the lock service errors")

	require.NotContains(t, flaky.deleted, sweepLockKey, "an unacquired lock must never be released")
	stillHeld, err := inner.SetIfNotExists(ctx, sweepLockKey, "1", sweepLockTTL)
	require.NoError(t, err)
	require.False(t, stillHeld, "the other process's lock must survive the sweep")
}

func TestSweep_CancellationCheckpointsProgress(t *testing.T) {
	pub, _, _, c := testSetup(t, WithSweepBatchSize(1))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		subject := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
		require.NoError(t, pub.Apply(ctx, publishEvent(subject, time.Now().UTC())))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := pub.Sweep(cancelled)
	require.ErrorIs(t, err, context.Canceled)

	// A clean run resumes, finishes and clears the checkpoint.
	require.NoError(t, pub.Sweep(ctx))
	var raw string
	hit, err := c.GetJSON(ctx, sweepCheckpointKey, &raw)
	require.NoError(t, err)
	require.False(t, hit, "completed sweep must clear its checkpoint")
}

func TestPrune_DeletesOnlyOldInactiveRows(t *testing.T) {
	pub, repo, _, _ := testSetup(t)
	ctx := context.Background()

	active := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	retired := feed.Subject{Kind: feed.KindJob, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, publishEvent(active, time.Now().UTC())))
	require.NoError(t, pub.Apply(ctx, publishEvent(retired, time.Now().UTC())))
	require.NoError(t, pub.Apply(ctx, events.DomainEvent{
		Type:       feed.EventJobPosted,
		Subject:    retired,
		Deactivate: true,
		OccurredAt: time.Now().UTC(),
	}))

	deleted, err := pub.Prune(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	require.Equal(t, 1, repo.activeCount(), "active rows are never pruned")

	deleted, err = pub.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, deleted, "rows newer than the cutoff survive")
}

func TestRebuild_WipesAndReplays(t *testing.T) {
	pub, repo, idx, _ := testSetup(t)
	ctx := context.Background()

	stale := feed.Subject{Kind: feed.KindCompany, ID: uuid.New()}
	require.NoError(t, pub.Apply(ctx, events.DomainEvent{
		Type:       feed.EventCompanyJoined,
		Subject:    stale,
		OccurredAt: time.Now().UTC(),
	}))

	replayed := []events.DomainEvent{
		publishEvent(feed.Subject{Kind: feed.KindJob, ID: uuid.New()}, time.Now().UTC().Add(-time.Hour)),
		publishEvent(feed.Subject{Kind: feed.KindJob, ID: uuid.New()}, time.Now().UTC()),
	}
	require.NoError(t, pub.Rebuild(ctx, channelSnapshot{events: replayed}))

	require.Equal(t, 2, repo.activeCount())
	card, err := idx.Card(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, card)

	_, err = repo.FindBySubject(ctx, feed.EventCompanyJoined, stale)
	require.ErrorIs(t, err, repository.ErrFeedItemNotFound)
}
