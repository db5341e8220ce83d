package trade

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rkotelov/dexy-api/internal/config"
	"github.com/rkotelov/dexy-api/internal/db"
	coretrade "github.com/rkotelov/dexy-api/internal/trade"
	"github.com/rkotelov/dexy-api/internal/utils"
)

// TradeService представляет сервис для работы с обменами
type TradeService struct {
	cfg         *config.Config
	jwtService  *utils.JWTService
	coordinator *coretrade.Coordinator
	registry    *coretrade.Registry
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(cfg *config.Config, coordinator *coretrade.Coordinator, registry *coretrade.Registry) *TradeService {
	return &TradeService{
		cfg:         cfg,
		jwtService:  utils.NewJWTService(cfg.JWTSecret),
		coordinator: coordinator,
		registry:    registry,
	}
}

// statusForError переводит ошибку координатора в HTTP статус.
// Вся таксономия восстановимая: до процесса ошибки не доходят
func statusForError(err error) int {
	switch {
	case errors.Is(err, coretrade.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, coretrade.ErrNotOwner),
		errors.Is(err, coretrade.ErrNotParticipant):
		return fiber.StatusForbidden
	case errors.Is(err, coretrade.ErrNotTradeable),
		errors.Is(err, coretrade.ErrNotProposed),
		errors.Is(err, coretrade.ErrInsufficientFunds),
		errors.Is(err, coretrade.ErrSameParticipant):
		return fiber.StatusBadRequest
	case errors.Is(err, coretrade.ErrLocked),
		errors.Is(err, coretrade.ErrSessionClosed),
		errors.Is(err, coretrade.ErrItemReserved),
		errors.Is(err, coretrade.ErrAlreadyTrading),
		errors.Is(err, coretrade.ErrSynchronization),
		errors.Is(err, coretrade.ErrIntegrity):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError отправляет ошибку координатора пользователю
func respondError(c fiber.Ctx, err error) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("Внутренняя ошибка обмена: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// currentPlayer извлекает ID игрока из контекста запроса
func currentPlayer(c fiber.Ctx) (uuid.UUID, error) {
	playerID, _ := c.Locals("playerID").(string)
	if playerID == "" {
		return uuid.Nil, errors.New("игрок не авторизован")
	}
	return uuid.Parse(playerID)
}

// sessionForRequest находит сессию и проверяет, что вызывающий —
// ее участник (или администратор)
func (s *TradeService) sessionForRequest(c fiber.Ctx, playerID uuid.UUID) (*coretrade.Session, error) {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, coretrade.ErrSessionNotFound
	}

	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	isAdmin, _ := c.Locals("isAdmin").(bool)
	view := session.View()
	if !isAdmin && view.Participants[0].PlayerID != playerID && view.Participants[1].PlayerID != playerID {
		return nil, coretrade.ErrNotParticipant
	}
	return session, nil
}

// CreateTrade открывает новую сессию обмена с другим игроком
func (s *TradeService) CreateTrade(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	var requestData struct {
		PartnerDiscordID string `json:"partner_discord_id"`
		GuildID          string `json:"guild_id"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if requestData.PartnerDiscordID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать партнера по обмену"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	// Находим партнера по Discord ID
	var partnerID uuid.UUID
	err = db.Pool.QueryRow(ctx, `
        SELECT id FROM players WHERE discord_id = $1
    `, requestData.PartnerDiscordID).Scan(&partnerID)

	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Партнер по обмену не найден"})
		}
		log.Printf("Ошибка запроса партнера: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки партнера"})
	}

	session, err := s.coordinator.Open(playerID, partnerID, requestData.GuildID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"session": session.View(),
	})
}

// GetActiveTrade возвращает активную сессию вызывающего игрока
func (s *TradeService) GetActiveTrade(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	session, err := s.registry.GetByPlayer(playerID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"session": session.View()})
}

// GetTrade возвращает сессию по ID
func (s *TradeService) GetTrade(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	session, err := s.sessionForRequest(c, playerID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"session": session.View()})
}

// AddItems добавляет шары в предложение вызывающего игрока
func (s *TradeService) AddItems(c fiber.Ctx) error {
	return s.mutateItems(c, s.coordinator.AddItems)
}

// RemoveItems убирает шары из предложения вызывающего игрока
func (s *TradeService) RemoveItems(c fiber.Ctx) error {
	return s.mutateItems(c, func(ctx context.Context, session *coretrade.Session, playerID uuid.UUID, ballIDs []uuid.UUID) error {
		return s.coordinator.RemoveItems(session, playerID, ballIDs)
	})
}

// mutateItems — общий путь добавления и удаления шаров
func (s *TradeService) mutateItems(c fiber.Ctx, op func(context.Context, *coretrade.Session, uuid.UUID, []uuid.UUID) error) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	var requestData struct {
		BallIDs []string `json:"ball_ids"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if len(requestData.BallIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать хотя бы один шар"})
	}

	ballIDs := make([]uuid.UUID, 0, len(requestData.BallIDs))
	for _, raw := range requestData.BallIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID шара"})
		}
		ballIDs = append(ballIDs, id)
	}

	session, err := s.sessionForRequest(c, playerID)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := op(ctx, session, playerID, ballIDs); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": session.View(),
	})
}

// SetCurrency устанавливает денежную часть предложения
func (s *TradeService) SetCurrency(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	var requestData struct {
		Amount string `json:"amount"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	amount, err := utils.ParseAmount(requestData.Amount)
	if err != nil || amount.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат суммы"})
	}

	session, err := s.sessionForRequest(c, playerID)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.coordinator.SetCurrency(ctx, session, playerID, amount); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": session.View(),
	})
}

// LockTrade фиксирует предложение вызывающего игрока
func (s *TradeService) LockTrade(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	session, err := s.sessionForRequest(c, playerID)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.coordinator.Lock(session, playerID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": session.View(),
	})
}

// ConfirmTrade подтверждает обмен; после второго подтверждения
// выполняется атомарный расчет
func (s *TradeService) ConfirmTrade(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	session, err := s.sessionForRequest(c, playerID)
	if err != nil {
		return respondError(c, err)
	}

	// Расчет ждет блокировки строк, даем транзакции больший таймаут
	ctx, cancel := db.GetTxContext()
	defer cancel()

	if err := s.coordinator.Confirm(ctx, session, playerID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": session.View(),
	})
}

// CancelTrade отменяет сессию. Администратор может отменить чужую
func (s *TradeService) CancelTrade(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	session, err := s.sessionForRequest(c, playerID)
	if err != nil {
		return respondError(c, err)
	}

	// Отмена собственной сессии админом считается отменой участника
	view := session.View()
	isAdmin, _ := c.Locals("isAdmin").(bool)
	asAdmin := isAdmin && view.Participants[0].PlayerID != playerID && view.Participants[1].PlayerID != playerID

	if err := s.coordinator.Cancel(session, playerID, asAdmin); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": session.View(),
	})
}
