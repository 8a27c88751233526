package repository

import (
	"context"
	"errors"

	"jobfeed/internal/database"
	"jobfeed/internal/domain/matching"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrUserNotFound = errors.New("user not found")
)

type JobSkillSet struct {
	JobID  uuid.UUID
	Skills []matching.JobSkill
}

// SkillRepository is the read-only lookup collaborator: the portal's CRUD
// services own these tables, the core only reads attribute sets for scoring.
type SkillRepository interface {
	GetJobSkills(ctx context.Context, jobID uuid.UUID) ([]matching.JobSkill, error)
	GetUserSkills(ctx context.Context, userID uuid.UUID) ([]matching.UserSkill, error)
	ListJobSkillSets(ctx context.Context, maxJobs int) ([]JobSkillSet, error)
}

type PostgresSkillRepository struct {
	db database.DB
}

func NewPostgresSkillRepository(db database.DB) *PostgresSkillRepository {
	return &PostgresSkillRepository{db: db}
}

func (r *PostgresSkillRepository) GetJobSkills(ctx context.Context, jobID uuid.UUID) ([]matching.JobSkill, error) {
	exists, err := r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, jobID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrJobNotFound
	}

	rows, err := r.db.Query(ctx,
		`SELECT skill_id, COALESCE(importance_weight, 0), COALESCE(required_proficiency, 0)
		 FROM job_skills
		 WHERE job_id = $1
		 ORDER BY skill_id ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]matching.JobSkill, 0)
	for rows.Next() {
		var js matching.JobSkill
		if err := rows.Scan(&js.SkillID, &js.ImportanceWeight, &js.RequiredProficiency); err != nil {
			return nil, err
		}
		out = append(out, js)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresSkillRepository) GetUserSkills(ctx context.Context, userID uuid.UUID) ([]matching.UserSkill, error) {
	exists, err := r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	rows, err := r.db.Query(ctx,
		`SELECT skill_id, COALESCE(proficiency_level, 0)
		 FROM user_skills
		 WHERE user_id = $1
		 ORDER BY skill_id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]matching.UserSkill, 0)
	for rows.Next() {
		var us matching.UserSkill
		if err := rows.Scan(&us.SkillID, &us.ProficiencyLevel); err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListJobSkillSets loads the requirement sets of the newest open jobs in one
// round trip; the recommendation path scores the user against each of them.
func (r *PostgresSkillRepository) ListJobSkillSets(ctx context.Context, maxJobs int) ([]JobSkillSet, error) {
	if maxJobs < 1 {
		maxJobs = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT js.job_id, js.skill_id, COALESCE(js.importance_weight, 0), COALESCE(js.required_proficiency, 0)
		 FROM job_skills js
		 JOIN (
			SELECT id FROM jobs WHERE status ORDER BY created_at DESC LIMIT $1
		 ) j ON j.id = js.job_id
		 ORDER BY js.job_id ASC, js.skill_id ASC`,
		maxJobs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]JobSkillSet, 0)
	for rows.Next() {
		var jobID uuid.UUID
		var js matching.JobSkill
		if err := rows.Scan(&jobID, &js.SkillID, &js.ImportanceWeight, &js.RequiredProficiency); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].JobID != jobID {
			out = append(out, JobSkillSet{JobID: jobID})
		}
		out[len(out)-1].Skills = append(out[len(out)-1].Skills, js)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresSkillRepository) exists(ctx context.Context, query string, id uuid.UUID) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx, query, id)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
