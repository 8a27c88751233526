package routes

import (
	"jobfeed/internal/delivery/http/handler"
	"jobfeed/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	Health         *handler.HealthHandler
	Feed           *handler.FeedHandler
	Match          *handler.MatchHandler
	Recommendation *handler.RecommendationHandler
	WS             *ws.Handler
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}

	api := app.Group("/api")
	v1 := api.Group("/v1")

	if r.Feed != nil {
		r.Feed.RegisterRoutes(v1)
	}
	if r.Match != nil {
		r.Match.RegisterRoutes(v1)
	}
	if r.Recommendation != nil {
		r.Recommendation.RegisterRoutes(v1.Group("/users"))
	}

	if r.WS != nil {
		app.Get("/ws/feed", r.WS.HandleFeedWS)
	}
}
