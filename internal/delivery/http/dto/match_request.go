package dto

type MatchRequest struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
}
