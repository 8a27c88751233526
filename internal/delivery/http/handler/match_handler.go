package handler

import (
	"errors"

	"jobfeed/internal/delivery/http/dto"
	"jobfeed/internal/delivery/http/middleware"
	"jobfeed/internal/pkg/response"
	"jobfeed/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type MatchHandler struct {
	uc usecase.MatchingUsecase
}

func NewMatchHandler(uc usecase.MatchingUsecase) *MatchHandler {
	return &MatchHandler{uc: uc}
}

func (h *MatchHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/matches", h.CalculateMatch)
}

func (h *MatchHandler) CalculateMatch(c fiber.Ctx) error {
	var req dto.MatchRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid request body", nil, err)
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid user id", nil, err)
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid job id", nil, err)
	}

	res, err := h.uc.CalculateMatch(c.Context(), userID, jobID)
	if err != nil {
		return mapMatchingError(err)
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, toSkillMatchResponse(res))
}

func toSkillMatchResponse(res usecase.SkillMatch) dto.SkillMatchResponse {
	return dto.SkillMatchResponse{
		UserID:          res.UserID.String(),
		JobID:           res.JobID.String(),
		MatchPercentage: res.MatchPercentage,
		MatchedSkillIDs: uuidStrings(res.MatchedSkillIDs),
		MissingSkillIDs: uuidStrings(res.MissingSkillIDs),
	}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func mapMatchingError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrUserNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "user not found", nil, err)
	case errors.Is(err, usecase.ErrJobNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "job not found", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
}
