package matching

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserSkill struct {
	SkillID          uuid.UUID
	ProficiencyLevel int
}

type JobSkill struct {
	SkillID             uuid.UUID
	ImportanceWeight    float64
	RequiredProficiency int
}

// Match is the compatibility verdict between one user profile and one job.
// It is a pure function of its inputs: matched and missing ids come out
// sorted so two computations over the same state serialize identically.
type Match struct {
	MatchPercentage float64     `json:"match_percentage"`
	MatchedSkillIDs []uuid.UUID `json:"matched_skill_ids"`
	MissingSkillIDs []uuid.UUID `json:"missing_skill_ids"`
}

type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Calculate computes the weighted fraction of the job's requirements covered
// by the user's skills, to two decimals. An empty requirement set scores 0 by
// policy: no requirements means no demonstrable match. Negative or non-finite
// importance weights are clamped to zero and logged, never propagated.
func (e *Engine) Calculate(userSkills []UserSkill, jobSkills []JobSkill) Match {
	if len(jobSkills) == 0 {
		return Match{
			MatchPercentage: 0,
			MatchedSkillIDs: []uuid.UUID{},
			MissingSkillIDs: []uuid.UUID{},
		}
	}

	userBySkill := make(map[uuid.UUID]UserSkill, len(userSkills))
	for _, us := range userSkills {
		if us.SkillID == uuid.Nil {
			continue
		}
		userBySkill[us.SkillID] = us
	}

	var totalWeight, earnedWeight float64
	matched := make([]uuid.UUID, 0, len(jobSkills))
	missing := make([]uuid.UUID, 0)

	for _, js := range jobSkills {
		if js.SkillID == uuid.Nil {
			continue
		}
		weight := js.ImportanceWeight
		if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
			e.logger.Warn("importance weight anomaly, clamped to zero",
				zap.String("skill_id", js.SkillID.String()),
				zap.Float64("weight", weight),
			)
			weight = 0
		}
		totalWeight += weight

		us, ok := userBySkill[js.SkillID]
		if !ok {
			missing = append(missing, js.SkillID)
			continue
		}
		matched = append(matched, js.SkillID)
		earnedWeight += weight * proficiencyCredit(us.ProficiencyLevel, js.RequiredProficiency)
	}

	pct := 0.0
	if totalWeight > 0 {
		pct = 100 * earnedWeight / totalWeight
	}
	pct = math.Round(pct*100) / 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	sortIDs(matched)
	sortIDs(missing)

	return Match{
		MatchPercentage: pct,
		MatchedSkillIDs: matched,
		MissingSkillIDs: missing,
	}
}

// proficiencyCredit is monotonically non-decreasing in the user's level:
// full credit at or above the required level, proportional partial credit
// below it. Jobs that state no required level grant full credit.
func proficiencyCredit(userLevel, requiredLevel int) float64 {
	if requiredLevel <= 0 {
		return 1
	}
	if userLevel >= requiredLevel {
		return 1
	}
	if userLevel <= 0 {
		return 0
	}
	return float64(userLevel) / float64(requiredLevel)
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
}
