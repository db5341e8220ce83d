package auth

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rkotelov/dexy-api/internal/config"
	"github.com/rkotelov/dexy-api/internal/db"
	"github.com/rkotelov/dexy-api/internal/models"
	"github.com/rkotelov/dexy-api/internal/utils"
)

// AuthService – структура для обработки авторизации
type AuthService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
}

// NewAuthService – конструктор AuthService
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
	}
}

// GetJWTService возвращает JWT сервис
func (s *AuthService) GetJWTService() *utils.JWTService {
	return s.jwtService
}

// BotAuthHandler выдает JWT игрока процессу бота.
// Бот уже проверен сервисным токеном в middleware; здесь игрок
// создается при первом обращении или обновляется при повторном
func (s *AuthService) BotAuthHandler(c fiber.Ctx) error {
	var payload struct {
		DiscordID string `json:"discord_id"`
		Username  string `json:"username"`
	}

	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if payload.DiscordID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать discord_id"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	player, err := upsertPlayer(ctx, payload.DiscordID, payload.Username)
	if err != nil {
		log.Printf("Ошибка создания/обновления игрока: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	// Генерируем JWT
	jwtToken, err := s.jwtService.GenerateToken(player.ID, player.IsAdmin)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate JWT"})
	}

	return c.JSON(fiber.Map{
		"token": jwtToken,
		"player": fiber.Map{
			"id":         player.ID,
			"discord_id": player.DiscordID,
			"username":   player.Username,
			"balance":    player.Balance,
			"is_admin":   player.IsAdmin,
		},
	})
}

// upsertPlayer создает нового игрока по Discord ID или обновляет существующего
func upsertPlayer(ctx context.Context, discordID, username string) (*models.Player, error) {
	// Начинаем транзакцию
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // Откатываем транзакцию в случае ошибки

	var playerID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM players WHERE discord_id = $1
	`, discordID).Scan(&playerID)

	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	// Если игрок не существует, создаем нового
	if err == pgx.ErrNoRows {
		err = tx.QueryRow(ctx, `
			INSERT INTO players (discord_id, username, last_login_at)
			VALUES ($1, $2, CURRENT_TIMESTAMP)
			RETURNING id
		`, discordID, username).Scan(&playerID)
		if err != nil {
			return nil, err
		}
	} else {
		// Обновляем имя и время входа у существующего игрока
		_, err = tx.Exec(ctx, `
			UPDATE players
			SET username = $1, last_login_at = CURRENT_TIMESTAMP, updated_at = NOW()
			WHERE id = $2
		`, username, playerID)
		if err != nil {
			return nil, err
		}
	}

	var player models.Player
	var rawBalance string
	err = tx.QueryRow(ctx, `
		SELECT id, discord_id, username, balance::text, is_admin, created_at, updated_at, last_login_at
		FROM players WHERE id = $1
	`, playerID).Scan(
		&player.ID,
		&player.DiscordID,
		&player.Username,
		&rawBalance,
		&player.IsAdmin,
		&player.CreatedAt,
		&player.UpdatedAt,
		&player.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	if player.Balance, err = utils.ParseAmount(rawBalance); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &player, nil
}
