package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jobfeed/internal/domain/feed"

	"github.com/google/uuid"
)

var ErrMalformedEvent = errors.New("malformed domain event")

// DomainEvent is a feed-worthy fact about a subject. Producers deliver these
// at least once; the publisher is idempotent under duplicates.
type DomainEvent struct {
	Type       feed.EventType
	Subject    feed.Subject
	Deactivate bool
	OccurredAt time.Time
	Attributes map[string]string
}

// Multiplier reads the optional priority_weight attribute (promotion packages
// carry one). Absent or unparseable values mean a neutral 1; out-of-range
// values are left for the scorer to clamp and report.
func (e DomainEvent) Multiplier() float64 {
	raw, ok := e.Attributes["priority_weight"]
	if !ok {
		return 1
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 1
	}
	return v
}

type wireEvent struct {
	EventType  string            `json:"event_type"`
	EntityKind string            `json:"entity_kind"`
	EntityID   string            `json:"entity_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes"`
}

// wireTypes maps every accepted wire event type onto the feed event it
// creates or deactivates. Loosely-typed payloads are validated here, at the
// boundary, so nothing malformed reaches the scoring path.
var wireTypes = map[string]struct {
	feedType   feed.EventType
	kind       feed.EntityKind
	deactivate bool
}{
	"job_posted":            {feed.EventJobPosted, feed.KindJob, false},
	"job_withdrawn":         {feed.EventJobPosted, feed.KindJob, true},
	"job_expired":           {feed.EventJobPosted, feed.KindJob, true},
	"company_joined":        {feed.EventCompanyJoined, feed.KindCompany, false},
	"company_removed":       {feed.EventCompanyJoined, feed.KindCompany, true},
	"promotion_activated":   {feed.EventPromotionActivated, feed.KindPromotion, false},
	"promotion_renewed":     {feed.EventPromotionActivated, feed.KindPromotion, false},
	"promotion_expired":     {feed.EventPromotionActivated, feed.KindPromotion, true},
	"promotion_cancelled":   {feed.EventPromotionActivated, feed.KindPromotion, true},
	"application_milestone": {feed.EventApplicationMilestone, feed.KindApplication, false},
	"application_withdrawn": {feed.EventApplicationMilestone, feed.KindApplication, true},
}

func Parse(data []byte) (DomainEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return DomainEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	spec, ok := wireTypes[strings.TrimSpace(w.EventType)]
	if !ok {
		return DomainEvent{}, fmt.Errorf("%w: unknown event_type %q", ErrMalformedEvent, w.EventType)
	}

	kind := feed.EntityKind(strings.TrimSpace(w.EntityKind))
	if kind != spec.kind {
		return DomainEvent{}, fmt.Errorf("%w: entity_kind %q does not match event_type %q", ErrMalformedEvent, w.EntityKind, w.EventType)
	}

	id, err := uuid.Parse(strings.TrimSpace(w.EntityID))
	if err != nil || id == uuid.Nil {
		return DomainEvent{}, fmt.Errorf("%w: bad entity_id %q", ErrMalformedEvent, w.EntityID)
	}

	occurred := w.OccurredAt
	if occurred.IsZero() {
		return DomainEvent{}, fmt.Errorf("%w: missing occurred_at", ErrMalformedEvent)
	}

	attrs := w.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	return DomainEvent{
		Type:       spec.feedType,
		Subject:    feed.Subject{Kind: kind, ID: id},
		Deactivate: spec.deactivate,
		OccurredAt: occurred.UTC(),
		Attributes: attrs,
	}, nil
}
