package dto

import "time"

type FeedEntryResponse struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	Score      string    `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

type FeedPageResponse struct {
	Entries    []FeedEntryResponse `json:"entries"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
