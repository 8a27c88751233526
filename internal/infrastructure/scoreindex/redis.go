package scoreindex

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const indexKey = "feed:index"

type Entry struct {
	ID    uuid.UUID
	Score float64
}

// Index is the rank-queryable view over active feed items, kept in a redis
// sorted set ordered by (score desc, id desc). The member is the canonical
// uuid string, so redis' reverse lexicographic order inside a score tie is
// exactly the id-descending tiebreak.
type Index struct {
	client *redis.Client
	logger *zap.Logger
}

func NewIndex(client *redis.Client, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{client: client, logger: logger}
}

func (i *Index) unavailable() bool {
	return i == nil || i.client == nil
}

func (i *Index) Upsert(ctx context.Context, id uuid.UUID, score float64) error {
	if i.unavailable() {
		return nil
	}
	return i.client.ZAdd(ctx, indexKey, redis.Z{Score: score, Member: id.String()}).Err()
}

// Remove is a no-op when the id is absent.
func (i *Index) Remove(ctx context.Context, id uuid.UUID) error {
	if i.unavailable() {
		return nil
	}
	return i.client.ZRem(ctx, indexKey, id.String()).Err()
}

func (i *Index) Clear(ctx context.Context) error {
	if i.unavailable() {
		return nil
	}
	return i.client.Del(ctx, indexKey).Err()
}

func (i *Index) Card(ctx context.Context) (int64, error) {
	if i.unavailable() {
		return 0, nil
	}
	return i.client.ZCard(ctx, indexKey).Result()
}

// Page returns up to limit entries strictly after the cursor position, plus
// the cursor for the next page. Fewer than limit entries means end-of-index.
// Two calls with the same cursor against an unmodified index return identical
// results; under concurrent writes, progress is monotonic (an id yielded past
// the cursor is never yielded again) because the cursor encodes values.
func (i *Index) Page(ctx context.Context, cursor Cursor, limit int) ([]Entry, Cursor, error) {
	if limit < 1 {
		limit = 1
	}
	if i.unavailable() {
		return nil, Cursor{}, nil
	}

	// The upper bound is inclusive so entries tied on the cursor score are
	// still seen; the ones at or before the cursor id are filtered below.
	max := "+inf"
	if !cursor.IsZero() {
		max = strconv.FormatFloat(cursor.Score, 'f', -1, 64)
	}

	collected := make([]Entry, 0, limit+1)
	offset := int64(0)

	for len(collected) <= limit {
		zs, err := i.client.ZRevRangeByScoreWithScores(ctx, indexKey, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    max,
			Offset: offset,
			Count:  int64(limit + 1),
		}).Result()
		if err != nil {
			return nil, Cursor{}, err
		}
		if len(zs) == 0 {
			break
		}

		for _, z := range zs {
			member, _ := z.Member.(string)
			if !cursor.IsZero() && z.Score == cursor.Score && member >= cursor.ID.String() {
				continue
			}
			id, err := uuid.Parse(member)
			if err != nil {
				i.logger.Warn("dropping non-uuid index member", zap.String("member", member))
				continue
			}
			collected = append(collected, Entry{ID: id, Score: z.Score})
			if len(collected) == limit+1 {
				break
			}
		}

		if len(zs) < limit+1 {
			break
		}
		offset += int64(len(zs))
	}

	if len(collected) <= limit {
		return collected, Cursor{}, nil
	}

	collected = collected[:limit]
	last := collected[limit-1]
	return collected, NewCursor(last.Score, last.ID), nil
}
