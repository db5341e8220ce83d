package models

import (
	"time"

	"github.com/google/uuid"
)

// Ball представляет экземпляр коллекционного шара у игрока
type Ball struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CountryCode string    `json:"country_code"`
	Nickname    string    `json:"nickname,omitempty"`
	Shiny       bool      `json:"shiny"`
	Tradeable   bool      `json:"tradeable"`
	CaughtAt    time.Time `json:"caught_at"`
	GuildID     string    `json:"guild_id,omitempty"` // Сервер, где шар был пойман
}
