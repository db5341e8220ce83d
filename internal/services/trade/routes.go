package trade

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rkotelov/dexy-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API обменов
func (s *TradeService) SetupRoutes(app *fiber.App) {
	// Группа для API обменов
	api := app.Group("/api/trades")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Маршрут для открытия сессии обмена
	api.Post("/", s.CreateTrade)

	// Маршрут для активной сессии вызывающего игрока
	api.Get("/active", s.GetActiveTrade)

	// Маршрут для истории завершенных обменов
	api.Get("/history", s.GetTradeHistory)

	// Маршрут для просмотра сессии
	api.Get("/:id", s.GetTrade)

	// Маршруты операций над предложением
	api.Post("/:id/items", s.AddItems)
	api.Delete("/:id/items", s.RemoveItems)
	api.Put("/:id/currency", s.SetCurrency)

	// Маршруты фазовых переходов
	api.Post("/:id/lock", s.LockTrade)
	api.Post("/:id/confirm", s.ConfirmTrade)
	api.Post("/:id/cancel", s.CancelTrade)
}
