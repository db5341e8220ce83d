package auth

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rkotelov/dexy-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API авторизации
func (s *AuthService) SetupRoutes(app *fiber.App) {
	// Группа для API авторизации
	api := app.Group("/api/auth")

	// Обмен сервисного токена бота на JWT игрока
	api.Post("/bot", s.BotAuthHandler, middleware.BotMiddleware(s.cfg.BotServiceToken))
}
