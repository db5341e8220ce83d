package spawn

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rkotelov/dexy-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API спавна
func (s *SpawnService) SetupRoutes(app *fiber.App) {
	// Группа для API спавна; доступна только процессу бота
	api := app.Group("/api/spawn")
	api.Use(middleware.BotMiddleware(s.cfg.BotServiceToken))

	// Маршрут для учета события активности
	api.Post("/activity", s.Activity)
}
