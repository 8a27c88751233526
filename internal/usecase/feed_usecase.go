package usecase

import (
	"context"
	"time"

	"jobfeed/internal/domain/feed"
	"jobfeed/internal/infrastructure/scoreindex"
	"jobfeed/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidCursor is returned for page tokens that cannot be decoded; the
// client should restart from the first page.
var ErrInvalidCursor = scoreindex.ErrInvalidCursor

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type FeedEntry struct {
	ID         uuid.UUID       `json:"id"`
	EventType  feed.EventType  `json:"event_type"`
	EntityKind feed.EntityKind `json:"entity_kind"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Score      decimal.Decimal `json:"score"`
	CreatedAt  time.Time       `json:"created_at"`
}

type FeedPage struct {
	Entries    []FeedEntry `json:"entries"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type FeedUsecase interface {
	GetPage(ctx context.Context, cursorToken string, limit int, types []feed.EventType) (FeedPage, error)
}

type feedUsecase struct {
	repo   repository.FeedItemRepository
	index  *scoreindex.Index
	logger *zap.Logger
}

func NewFeedUsecase(repo repository.FeedItemRepository, index *scoreindex.Index, logger *zap.Logger) FeedUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &feedUsecase{repo: repo, index: index, logger: logger}
}

// GetPage serves one page of the feed in (score desc, id desc) order. The
// score index drives ordering and pagination; hydrated rows that went
// inactive since the index was read are dropped rather than served stale.
// When the index is empty the database answers directly with the same order.
func (u *feedUsecase) GetPage(ctx context.Context, cursorToken string, limit int, types []feed.EventType) (FeedPage, error) {
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	cursor, err := scoreindex.DecodeCursor(cursorToken)
	if err != nil {
		return FeedPage{}, err
	}

	card, err := u.index.Card(ctx)
	if err != nil {
		u.logger.Warn("score index unreachable, serving feed from database", zap.Error(err))
		card = 0
	}
	if card == 0 {
		return u.pageFromDatabase(ctx, cursor, limit, types)
	}

	entries, next, err := u.index.Page(ctx, cursor, limit)
	if err != nil {
		u.logger.Warn("score index read failed, serving feed from database", zap.Error(err))
		return u.pageFromDatabase(ctx, cursor, limit, types)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	items, err := u.repo.FindByIDs(ctx, ids)
	if err != nil {
		return FeedPage{}, err
	}
	byID := make(map[uuid.UUID]feed.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	page := FeedPage{Entries: make([]FeedEntry, 0, len(entries)), NextCursor: next.Encode()}
	for _, e := range entries {
		it, ok := byID[e.ID]
		if !ok || !it.IsActive {
			continue
		}
		if !matchesTypes(it.EventType, types) {
			continue
		}
		page.Entries = append(page.Entries, toFeedEntry(it))
	}
	return page, nil
}

// pageFromDatabase runs the same keyset pagination against feed_items; the
// next cursor carries values, so a later page may be served by either path.
func (u *feedUsecase) pageFromDatabase(ctx context.Context, cursor scoreindex.Cursor, limit int, types []feed.EventType) (FeedPage, error) {
	var after *feed.Item
	if !cursor.IsZero() {
		after = &feed.Item{ID: cursor.ID, Score: decimal.NewFromFloat(cursor.Score)}
	}

	items, err := u.repo.ListActivePage(ctx, after, limit, types)
	if err != nil {
		return FeedPage{}, err
	}

	page := FeedPage{Entries: make([]FeedEntry, 0, len(items))}
	for _, it := range items {
		page.Entries = append(page.Entries, toFeedEntry(it))
	}
	if len(items) == limit {
		last := items[len(items)-1]
		page.NextCursor = scoreindex.NewCursor(last.Score.InexactFloat64(), last.ID).Encode()
	}
	return page, nil
}

func matchesTypes(t feed.EventType, types []feed.EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

func toFeedEntry(it feed.Item) FeedEntry {
	return FeedEntry{
		ID:         it.ID,
		EventType:  it.EventType,
		EntityKind: it.Subject.Kind,
		EntityID:   it.Subject.ID,
		Score:      it.Score,
		CreatedAt:  it.CreatedAt,
	}
}
