package handler

import (
	"strconv"

	"jobfeed/internal/delivery/http/dto"
	"jobfeed/internal/delivery/http/middleware"
	"jobfeed/internal/pkg/response"
	"jobfeed/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type RecommendationHandler struct {
	uc usecase.RecommendationUsecase
}

func NewRecommendationHandler(uc usecase.RecommendationUsecase) *RecommendationHandler {
	return &RecommendationHandler{uc: uc}
}

func (h *RecommendationHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/:user_id/recommendations", h.GetRecommendations)
}

func (h *RecommendationHandler) GetRecommendations(c fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid user id", nil, err)
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return middleware.NewAppError(fiber.StatusBadRequest, "limit must be a positive integer", nil, err)
		}
		limit = n
	}

	recs, err := h.uc.GetRecommendations(c.Context(), userID, limit)
	if err != nil {
		return mapMatchingError(err)
	}

	out := dto.RecommendationListResponse{
		Recommendations: make([]dto.RecommendedJobResponse, 0, len(recs)),
	}
	for _, rec := range recs {
		out.Recommendations = append(out.Recommendations, dto.RecommendedJobResponse{
			JobID:           rec.JobID.String(),
			MatchPercentage: rec.MatchPercentage,
			MatchedSkillIDs: uuidStrings(rec.MatchedSkillIDs),
			MissingSkillIDs: uuidStrings(rec.MissingSkillIDs),
		})
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}
