package feed

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventJobPosted            EventType = "job_posted"
	EventCompanyJoined        EventType = "company_joined"
	EventPromotionActivated   EventType = "promotion_activated"
	EventApplicationMilestone EventType = "application_milestone"
)

func (t EventType) Valid() bool {
	switch t {
	case EventJobPosted, EventCompanyJoined, EventPromotionActivated, EventApplicationMilestone:
		return true
	}
	return false
}

type EntityKind string

const (
	KindJob         EntityKind = "job"
	KindCompany     EntityKind = "company"
	KindPromotion   EntityKind = "promotion"
	KindApplication EntityKind = "application"
)

func (k EntityKind) Valid() bool {
	switch k {
	case KindJob, KindCompany, KindPromotion, KindApplication:
		return true
	}
	return false
}

// Subject is a tagged reference to the entity a feed item is about. Subjects
// span unrelated tables, so they are resolved through per-kind lookups rather
// than a single foreign key.
type Subject struct {
	Kind EntityKind
	ID   uuid.UUID
}

type Item struct {
	ID        uuid.UUID
	EventType EventType
	Subject   Subject
	Score     decimal.Decimal
	// Multiplier scales the base weight (promotion package priority); kept
	// on the row so scheduled recomputes preserve it.
	Multiplier float64
	IsActive   bool
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
