package app

import (
	"fmt"
	"strings"

	"jobfeed/internal/delivery/http/handler"
	"jobfeed/internal/delivery/http/middleware"
	"jobfeed/internal/delivery/http/routes"
	"jobfeed/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func Bootstrap(c *Container) *App {
	f := fiber.New(fiber.Config{
		AppName: c.Config.App.AppName,
	})

	f.Use(middleware.NewAccessLogMiddleware(c.Logger).Middleware())
	f.Use(middleware.NewErrorMiddleware(c.Logger).Middleware())

	registry := &routes.Registry{
		Health:         handler.NewHealthHandler(c.DB, c.Cache),
		Feed:           handler.NewFeedHandler(c.FeedUC),
		Match:          handler.NewMatchHandler(c.MatchUC),
		Recommendation: handler.NewRecommendationHandler(c.RecUC),
		WS:             ws.NewHandler(c.Hub, c.Logger),
	}
	registry.Register(f)

	return &App{Fiber: f, Container: c}
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
