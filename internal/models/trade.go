package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade представляет завершенную запись об обмене
// Создается ровно один раз при успешном расчете и больше не изменяется
type Trade struct {
	ID         uuid.UUID       `json:"id"`
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	GuildID    string          `json:"guild_id,omitempty"`
	Status     string          `json:"status"` // settled, cancelled, timed_out
	NetAmount  decimal.Decimal `json:"net_amount"`
	CreatedAt  time.Time       `json:"created_at"`

	// Дополнительные поля для API
	Items    []TradeItem `json:"items,omitempty"`
	Sender   *Player     `json:"sender,omitempty"`
	Receiver *Player     `json:"receiver,omitempty"`
}

// TradeItem представляет один переданный шар внутри записи об обмене
type TradeItem struct {
	ID        uuid.UUID `json:"id"`
	TradeID   uuid.UUID `json:"trade_id"`
	BallID    uuid.UUID `json:"ball_id"`
	FromOwner uuid.UUID `json:"from_owner"`
	ToOwner   uuid.UUID `json:"to_owner"`
}
