package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Player представляет игрока в системе
type Player struct {
	ID          uuid.UUID       `json:"id"`
	DiscordID   string          `json:"discord_id"`
	Username    string          `json:"username"`
	Balance     decimal.Decimal `json:"balance"`
	IsAdmin     bool            `json:"is_admin"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	LastLoginAt time.Time       `json:"last_login_at"`
}
