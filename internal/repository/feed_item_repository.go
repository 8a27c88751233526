package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jobfeed/internal/database"
	"jobfeed/internal/domain/feed"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrFeedItemNotFound = errors.New("feed item not found")
	ErrVersionConflict  = errors.New("feed item version conflict")
)

type FeedItemRepository interface {
	Upsert(ctx context.Context, item feed.Item) (feed.Item, bool, error)
	FindBySubject(ctx context.Context, eventType feed.EventType, subject feed.Subject) (feed.Item, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]feed.Item, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score decimal.Decimal, multiplier float64, version int64) error
	Deactivate(ctx context.Context, eventType feed.EventType, subject feed.Subject) ([]uuid.UUID, error)
	ListActivePage(ctx context.Context, after *feed.Item, limit int, types []feed.EventType) ([]feed.Item, error)
	ListActiveAfterID(ctx context.Context, afterID uuid.UUID, limit int) ([]feed.Item, error)
	PruneInactive(ctx context.Context, olderThan time.Time) (int64, error)
	DeleteAll(ctx context.Context) error
}

type PostgresFeedItemRepository struct {
	db database.DB
}

func NewPostgresFeedItemRepository(db database.DB) *PostgresFeedItemRepository {
	return &PostgresFeedItemRepository{db: db}
}

const feedItemColumns = `id, event_type, entity_kind, entity_id, score, weight_multiplier, is_active, version, created_at, updated_at`

// Upsert inserts a new active item or refreshes the score of the existing
// active item for the same (event_type, subject). The partial unique index
// makes the insert race-safe across processes; the returned bool reports
// whether a row was created.
func (r *PostgresFeedItemRepository) Upsert(ctx context.Context, item feed.Item) (feed.Item, bool, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO feed_items (id, event_type, entity_kind, entity_id, score, weight_multiplier, is_active, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, 1, $7, $7)
		 ON CONFLICT (event_type, entity_kind, entity_id) WHERE is_active
		 DO UPDATE SET score = EXCLUDED.score, weight_multiplier = EXCLUDED.weight_multiplier,
		               version = feed_items.version + 1, updated_at = EXCLUDED.updated_at
		 RETURNING `+feedItemColumns+`, (xmax = 0)`,
		item.ID, item.EventType, item.Subject.Kind, item.Subject.ID, item.Score, item.Multiplier, item.CreatedAt,
	)

	var out feed.Item
	var created bool
	if err := scanFeedItemWith(row, &out, &created); err != nil {
		return feed.Item{}, false, err
	}
	return out, created, nil
}

func (r *PostgresFeedItemRepository) FindBySubject(ctx context.Context, eventType feed.EventType, subject feed.Subject) (feed.Item, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+feedItemColumns+`
		 FROM feed_items
		 WHERE event_type = $1 AND entity_kind = $2 AND entity_id = $3 AND is_active`,
		eventType, subject.Kind, subject.ID,
	)

	var out feed.Item
	if err := scanFeedItem(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
			return feed.Item{}, ErrFeedItemNotFound
		}
		return feed.Item{}, err
	}
	return out, nil
}

func (r *PostgresFeedItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]feed.Item, error) {
	if len(ids) == 0 {
		return []feed.Item{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+feedItemColumns+` FROM feed_items WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeedItems(rows)
}

// UpdateScore is a compare-and-swap on the version counter; a lost race
// surfaces as ErrVersionConflict so the caller can re-read and retry.
func (r *PostgresFeedItemRepository) UpdateScore(ctx context.Context, id uuid.UUID, score decimal.Decimal, multiplier float64, version int64) error {
	affected, err := r.db.Exec(ctx,
		`UPDATE feed_items
		 SET score = $1, weight_multiplier = $2, version = version + 1, updated_at = now()
		 WHERE id = $3 AND version = $4 AND is_active`,
		score, multiplier, id, version,
	)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	row := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM feed_items WHERE id = $1 AND is_active)`, id)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrFeedItemNotFound
	}
	return ErrVersionConflict
}

// Deactivate flips the active flag and returns the affected ids so the
// caller can evict them from the score index. Rows are retained for audit.
func (r *PostgresFeedItemRepository) Deactivate(ctx context.Context, eventType feed.EventType, subject feed.Subject) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE feed_items
		 SET is_active = FALSE, version = version + 1, updated_at = now()
		 WHERE event_type = $1 AND entity_kind = $2 AND entity_id = $3 AND is_active
		 RETURNING id`,
		eventType, subject.Kind, subject.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, 1)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListActivePage is the keyset fallback used when the score index is empty,
// ordered exactly like the index: score desc, id desc.
func (r *PostgresFeedItemRepository) ListActivePage(ctx context.Context, after *feed.Item, limit int, types []feed.EventType) ([]feed.Item, error) {
	if limit < 1 {
		limit = 1
	}

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	var (
		rows database.Rows
		err  error
	)
	switch {
	case after == nil && len(typeNames) == 0:
		rows, err = r.db.Query(ctx,
			`SELECT `+feedItemColumns+` FROM feed_items
			 WHERE is_active
			 ORDER BY score DESC, id DESC LIMIT $1`, limit)
	case after == nil:
		rows, err = r.db.Query(ctx,
			`SELECT `+feedItemColumns+` FROM feed_items
			 WHERE is_active AND event_type = ANY($1)
			 ORDER BY score DESC, id DESC LIMIT $2`, typeNames, limit)
	case len(typeNames) == 0:
		rows, err = r.db.Query(ctx,
			`SELECT `+feedItemColumns+` FROM feed_items
			 WHERE is_active AND (score < $1 OR (score = $1 AND id < $2))
			 ORDER BY score DESC, id DESC LIMIT $3`, after.Score, after.ID, limit)
	default:
		rows, err = r.db.Query(ctx,
			`SELECT `+feedItemColumns+` FROM feed_items
			 WHERE is_active AND (score < $1 OR (score = $1 AND id < $2)) AND event_type = ANY($3)
			 ORDER BY score DESC, id DESC LIMIT $4`, after.Score, after.ID, typeNames, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeedItems(rows)
}

// ListActiveAfterID pages active items in id order; the stable ordering is
// what lets the sweep checkpoint and resume.
func (r *PostgresFeedItemRepository) ListActiveAfterID(ctx context.Context, afterID uuid.UUID, limit int) ([]feed.Item, error) {
	if limit < 1 {
		limit = 1
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+feedItemColumns+` FROM feed_items
		 WHERE is_active AND id > $1
		 ORDER BY id ASC LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeedItems(rows)
}

func (r *PostgresFeedItemRepository) PruneInactive(ctx context.Context, olderThan time.Time) (int64, error) {
	return r.db.Exec(ctx,
		`DELETE FROM feed_items WHERE is_active = FALSE AND updated_at < $1`,
		olderThan,
	)
}

func (r *PostgresFeedItemRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM feed_items`)
	return err
}

func scanFeedItem(row database.Row, out *feed.Item) error {
	return row.Scan(
		&out.ID, &out.EventType, &out.Subject.Kind, &out.Subject.ID,
		&out.Score, &out.Multiplier, &out.IsActive, &out.Version, &out.CreatedAt, &out.UpdatedAt,
	)
}

func scanFeedItemWith(row database.Row, out *feed.Item, created *bool) error {
	return row.Scan(
		&out.ID, &out.EventType, &out.Subject.Kind, &out.Subject.ID,
		&out.Score, &out.Multiplier, &out.IsActive, &out.Version, &out.CreatedAt, &out.UpdatedAt,
		created,
	)
}

func collectFeedItems(rows database.Rows) ([]feed.Item, error) {
	out := make([]feed.Item, 0)
	for rows.Next() {
		var it feed.Item
		if err := rows.Scan(
			&it.ID, &it.EventType, &it.Subject.Kind, &it.Subject.ID,
			&it.Score, &it.Multiplier, &it.IsActive, &it.Version, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
