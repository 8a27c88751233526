package usecase

import (
	"context"
	"errors"
	"sort"

	"jobfeed/internal/config"
	"jobfeed/internal/domain/matching"
	"jobfeed/internal/infrastructure/cache"
	"jobfeed/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRecommendationLimit = 20
	maxRecommendationLimit     = 50
	recommendationCandidates   = 200
)

// RecommendedJob is one entry of a user's ranked job list.
type RecommendedJob struct {
	JobID           uuid.UUID   `json:"job_id"`
	MatchPercentage float64     `json:"match_percentage"`
	MatchedSkillIDs []uuid.UUID `json:"matched_skill_ids"`
	MissingSkillIDs []uuid.UUID `json:"missing_skill_ids"`
}

type RecommendationUsecase interface {
	GetRecommendations(ctx context.Context, userID uuid.UUID, limit int) ([]RecommendedJob, error)
}

type recommendationUsecase struct {
	skills repository.SkillRepository
	engine *matching.Engine
	cache  *cache.Redis
	cfg    config.CacheConfig
	logger *zap.Logger
}

func NewRecommendationUsecase(skills repository.SkillRepository, engine *matching.Engine, c *cache.Redis, cfg config.CacheConfig, logger *zap.Logger) RecommendationUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &recommendationUsecase{skills: skills, engine: engine, cache: c, cfg: cfg, logger: logger}
}

// GetRecommendations scores the user against the newest open jobs, keeps
// matches at or above the configured threshold and ranks them by percentage
// descending, job id ascending on ties. A user with no recorded skills gets
// an empty list, not an error.
func (u *recommendationUsecase) GetRecommendations(ctx context.Context, userID uuid.UUID, limit int) ([]RecommendedJob, error) {
	if userID == uuid.Nil {
		return nil, ErrUserNotFound
	}
	if limit < 1 {
		limit = defaultRecommendationLimit
	}
	if limit > maxRecommendationLimit {
		limit = maxRecommendationLimit
	}

	out := make([]RecommendedJob, 0, limit)
	err := u.cache.GetOrCompute(ctx, cache.RecommendationsKey(userID.String(), limit), u.cfg.RecommendationTTL, &out,
		func(ctx context.Context) (any, error) {
			return u.compute(ctx, userID, limit)
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *recommendationUsecase) compute(ctx context.Context, userID uuid.UUID, limit int) ([]RecommendedJob, error) {
	userSkills, err := u.skills.GetUserSkills(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if len(userSkills) == 0 {
		return []RecommendedJob{}, nil
	}

	sets, err := u.skills.ListJobSkillSets(ctx, recommendationCandidates)
	if err != nil {
		return nil, err
	}

	recs := make([]RecommendedJob, 0, len(sets))
	for _, set := range sets {
		m := u.engine.Calculate(userSkills, set.Skills)
		if m.MatchPercentage < u.cfg.MinMatchPercent {
			continue
		}
		recs = append(recs, RecommendedJob{
			JobID:           set.JobID,
			MatchPercentage: m.MatchPercentage,
			MatchedSkillIDs: m.MatchedSkillIDs,
			MissingSkillIDs: m.MissingSkillIDs,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].MatchPercentage != recs[j].MatchPercentage {
			return recs[i].MatchPercentage > recs[j].MatchPercentage
		}
		return recs[i].JobID.String() < recs[j].JobID.String()
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
