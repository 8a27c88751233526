package dto

type SkillMatchResponse struct {
	UserID          string   `json:"user_id"`
	JobID           string   `json:"job_id"`
	MatchPercentage float64  `json:"match_percentage"`
	MatchedSkillIDs []string `json:"matched_skill_ids"`
	MissingSkillIDs []string `json:"missing_skill_ids"`
}
