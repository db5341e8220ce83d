package spawn

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rkotelov/dexy-api/internal/config"
	"github.com/rkotelov/dexy-api/internal/spawn"
)

// SpawnService представляет сервис учета активности для спавна
type SpawnService struct {
	cfg     *config.Config
	tracker *spawn.Tracker
}

// NewSpawnService создает новый экземпляр SpawnService
func NewSpawnService(cfg *config.Config, tracker *spawn.Tracker) *SpawnService {
	return &SpawnService{
		cfg:     cfg,
		tracker: tracker,
	}
}

// Activity учитывает событие активности на сервере и сообщает боту,
// пора ли спавнить шар
func (s *SpawnService) Activity(c fiber.Ctx) error {
	var requestData struct {
		GuildID string `json:"guild_id"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if requestData.GuildID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать guild_id"})
	}

	return c.JSON(fiber.Map{
		"spawn": s.tracker.Activity(requestData.GuildID),
	})
}
