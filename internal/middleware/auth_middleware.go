package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rkotelov/dexy-api/internal/utils"
)

// AuthMiddleware создаёт middleware для проверки JWT
func AuthMiddleware(jwtService *utils.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		// Проверяем Bearer токен
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		tokenString := parts[1]
		playerID, isAdmin, err := jwtService.ExtractClaims(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		// Проверяем, что playerID является валидным UUID
		_, err = uuid.Parse(playerID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid player ID",
			})
		}

		// Добавляем данные игрока в контекст
		c.Locals("playerID", playerID)
		c.Locals("isAdmin", isAdmin)

		return c.Next()
	}
}

// BotMiddleware создаёт middleware для запросов от процесса бота.
// Бот аутентифицируется общим сервисным токеном, а не JWT игрока
func BotMiddleware(serviceToken string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Get("X-Service-Token") != serviceToken {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid service token",
			})
		}
		return c.Next()
	}
}
