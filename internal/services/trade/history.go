package trade

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rkotelov/dexy-api/internal/db"
	"github.com/rkotelov/dexy-api/internal/models"
	"github.com/rkotelov/dexy-api/internal/utils"
)

// GetTradeHistory возвращает список завершенных обменов игрока
func (s *TradeService) GetTradeHistory(c fiber.Ctx) error {
	playerID, err := currentPlayer(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Игрок не авторизован"})
	}

	// Получаем тип и статус обменов
	tradeType := c.Query("type", "all") // all, incoming, outgoing
	status := c.Query("status", "all")  // all, settled

	ctx, cancel := db.GetContext()
	defer cancel()

	query, withStatus := historyQuery(tradeType, status)
	args := []interface{}{playerID}
	if withStatus {
		args = append(args, status)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		log.Printf("Ошибка запроса истории обменов: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения истории обменов"})
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var trade models.Trade
		var rawAmount string
		if err := rows.Scan(
			&trade.ID,
			&trade.SenderID,
			&trade.ReceiverID,
			&trade.GuildID,
			&trade.Status,
			&rawAmount,
			&trade.CreatedAt,
		); err != nil {
			log.Printf("Ошибка сканирования строки: %v", err)
			continue
		}
		if trade.NetAmount, err = utils.ParseAmount(rawAmount); err != nil {
			log.Printf("Ошибка разбора суммы обмена: %v", err)
			continue
		}

		// Загружаем переданные шары и информацию об игроках
		trade.Items = s.getTradeItems(ctx, trade.ID)
		trade.Sender = s.getPlayerInfo(ctx, trade.SenderID)
		trade.Receiver = s.getPlayerInfo(ctx, trade.ReceiverID)

		trades = append(trades, trade)
	}

	return c.JSON(fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}

// historyQuery собирает запрос истории обменов по типу и статусу.
// При status == "all" запрос принимает единственный аргумент — игрока,
// иначе вторым аргументом передается статус
func historyQuery(tradeType, status string) (string, bool) {
	var where string
	switch tradeType {
	case "incoming":
		where = "t.receiver_id = $1"
	case "outgoing":
		where = "t.sender_id = $1"
	default: // all
		where = "(t.sender_id = $1 OR t.receiver_id = $1)"
	}

	withStatus := status != "all"
	if withStatus {
		where += " AND t.status = $2"
	}

	query := `
        SELECT t.id, t.sender_id, t.receiver_id, t.guild_id, t.status, t.net_amount::text, t.created_at
        FROM trades t
        WHERE ` + where + `
        ORDER BY t.created_at DESC
    `
	return query, withStatus
}

// getTradeItems получает переданные шары записи об обмене
func (s *TradeService) getTradeItems(ctx context.Context, tradeID uuid.UUID) []models.TradeItem {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, ball_id, from_owner, to_owner
        FROM trade_items
        WHERE trade_id = $1
    `, tradeID)

	if err != nil {
		log.Printf("Ошибка получения шаров обмена %s: %v", tradeID, err)
		return nil
	}
	defer rows.Close()

	var items []models.TradeItem
	for rows.Next() {
		var item models.TradeItem
		if err := rows.Scan(&item.ID, &item.BallID, &item.FromOwner, &item.ToOwner); err != nil {
			log.Printf("Ошибка сканирования шара обмена: %v", err)
			continue
		}
		item.TradeID = tradeID
		items = append(items, item)
	}

	return items
}

// getPlayerInfo получает информацию об игроке
func (s *TradeService) getPlayerInfo(ctx context.Context, playerID uuid.UUID) *models.Player {
	var player models.Player
	err := db.Pool.QueryRow(ctx, `
        SELECT id, discord_id, username
        FROM players
        WHERE id = $1
    `, playerID).Scan(
		&player.ID,
		&player.DiscordID,
		&player.Username,
	)

	if err != nil {
		log.Printf("Ошибка получения игрока %s: %v", playerID, err)
		return nil
	}

	return &player
}
