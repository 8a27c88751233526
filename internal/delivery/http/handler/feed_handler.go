package handler

import (
	"errors"
	"strconv"
	"strings"

	"jobfeed/internal/delivery/http/dto"
	"jobfeed/internal/delivery/http/middleware"
	"jobfeed/internal/domain/feed"
	"jobfeed/internal/pkg/response"
	"jobfeed/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type FeedHandler struct {
	uc usecase.FeedUsecase
}

func NewFeedHandler(uc usecase.FeedUsecase) *FeedHandler {
	return &FeedHandler{uc: uc}
}

func (h *FeedHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/feed", h.GetFeed)
}

func (h *FeedHandler) GetFeed(c fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return middleware.NewAppError(fiber.StatusBadRequest, "limit must be a positive integer", nil, err)
		}
		limit = n
	}

	types, err := parseEventTypes(c.Query("types"))
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, err.Error(), nil, err)
	}

	page, err := h.uc.GetPage(c.Context(), c.Query("cursor"), limit, types)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCursor) {
			return middleware.NewAppError(fiber.StatusBadRequest, "invalid cursor", nil, err)
		}
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}

	out := dto.FeedPageResponse{
		Entries:    make([]dto.FeedEntryResponse, 0, len(page.Entries)),
		NextCursor: page.NextCursor,
	}
	for _, e := range page.Entries {
		out.Entries = append(out.Entries, dto.FeedEntryResponse{
			ID:         e.ID.String(),
			EventType:  string(e.EventType),
			EntityKind: string(e.EntityKind),
			EntityID:   e.EntityID.String(),
			Score:      e.Score.String(),
			CreatedAt:  e.CreatedAt,
		})
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

func parseEventTypes(raw string) ([]feed.EventType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	types := make([]feed.EventType, 0, len(parts))
	for _, p := range parts {
		t := feed.EventType(strings.TrimSpace(p))
		if !t.Valid() {
			return nil, errors.New("unknown event type: " + string(t))
		}
		types = append(types, t)
	}
	return types, nil
}
