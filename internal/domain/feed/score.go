package feed

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultHalfLife = 48 * time.Hour

// Scorer computes the time-decayed relevance score of a feed item:
// baseWeight(eventType) * multiplier * 2^(-age/halfLife), rounded to six
// decimal places. Malformed weights are clamped to zero and logged, never
// surfaced as an error.
type Scorer struct {
	weights  map[EventType]float64
	halfLife time.Duration
	logger   *zap.Logger
}

func NewScorer(weights map[string]float64, halfLife time.Duration, logger *zap.Logger) *Scorer {
	if halfLife <= 0 {
		halfLife = defaultHalfLife
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := make(map[EventType]float64, len(weights))
	for k, v := range weights {
		w[EventType(k)] = v
	}
	return &Scorer{weights: w, halfLife: halfLife, logger: logger}
}

func (s *Scorer) Score(eventType EventType, multiplier float64, createdAt, now time.Time) decimal.Decimal {
	weight := s.clamp(s.weights[eventType], "base_weight", string(eventType))
	mult := s.clamp(multiplier, "multiplier", string(eventType))

	raw := weight * mult * s.Decay(now.Sub(createdAt))
	if raw < 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		raw = 0
	}
	return decimal.NewFromFloat(raw).Round(6)
}

// Decay is strictly decreasing in age and bounded in (0, 1]. Negative ages
// (clock skew, events timestamped in the future) count as zero.
func (s *Scorer) Decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp2(-float64(age) / float64(s.halfLife))
}

func (s *Scorer) HalfLife() time.Duration {
	return s.halfLife
}

func (s *Scorer) clamp(v float64, field, eventType string) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		s.logger.Warn("score input anomaly, clamped to zero",
			zap.String("field", field),
			zap.String("event_type", eventType),
			zap.Float64("value", v),
		)
		return 0
	}
	return v
}
