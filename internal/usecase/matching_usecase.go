package usecase

import (
	"context"
	"errors"

	"jobfeed/internal/config"
	"jobfeed/internal/domain/matching"
	"jobfeed/internal/infrastructure/cache"
	"jobfeed/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrJobNotFound  = errors.New("job not found")
)

// SkillMatch is the full match report for one (user, job) pair. It is pure
// and cacheable: the same skill sets always produce the same report.
type SkillMatch struct {
	UserID          uuid.UUID   `json:"user_id"`
	JobID           uuid.UUID   `json:"job_id"`
	MatchPercentage float64     `json:"match_percentage"`
	MatchedSkillIDs []uuid.UUID `json:"matched_skill_ids"`
	MissingSkillIDs []uuid.UUID `json:"missing_skill_ids"`
}

type MatchingUsecase interface {
	CalculateMatch(ctx context.Context, userID, jobID uuid.UUID) (SkillMatch, error)
}

type matchingUsecase struct {
	skills repository.SkillRepository
	engine *matching.Engine
	cache  *cache.Redis
	cfg    config.CacheConfig
	logger *zap.Logger
}

func NewMatchingUsecase(skills repository.SkillRepository, engine *matching.Engine, c *cache.Redis, cfg config.CacheConfig, logger *zap.Logger) MatchingUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &matchingUsecase{skills: skills, engine: engine, cache: c, cfg: cfg, logger: logger}
}

func (u *matchingUsecase) CalculateMatch(ctx context.Context, userID, jobID uuid.UUID) (SkillMatch, error) {
	if userID == uuid.Nil {
		return SkillMatch{}, ErrUserNotFound
	}
	if jobID == uuid.Nil {
		return SkillMatch{}, ErrJobNotFound
	}

	var out SkillMatch
	err := u.cache.GetOrCompute(ctx, cache.MatchKey(userID.String(), jobID.String()), u.cfg.MatchTTL, &out,
		func(ctx context.Context) (any, error) {
			return u.compute(ctx, userID, jobID)
		})
	if err != nil {
		return SkillMatch{}, err
	}
	return out, nil
}

func (u *matchingUsecase) compute(ctx context.Context, userID, jobID uuid.UUID) (SkillMatch, error) {
	userSkills, err := u.skills.GetUserSkills(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return SkillMatch{}, ErrUserNotFound
		}
		return SkillMatch{}, err
	}

	jobSkills, err := u.skills.GetJobSkills(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return SkillMatch{}, ErrJobNotFound
		}
		return SkillMatch{}, err
	}

	m := u.engine.Calculate(userSkills, jobSkills)
	return SkillMatch{
		UserID:          userID,
		JobID:           jobID,
		MatchPercentage: m.MatchPercentage,
		MatchedSkillIDs: m.MatchedSkillIDs,
		MissingSkillIDs: m.MissingSkillIDs,
	}, nil
}
