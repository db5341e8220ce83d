package trade

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State представляет состояние сессии обмена
type State string

const (
	StateNegotiating State = "negotiating" // Участники собирают предложения
	StateConfirming  State = "confirming"  // Оба зафиксировали, ждем подтверждений
	StateSettled     State = "settled"     // Расчет выполнен
	StateCancelled   State = "cancelled"   // Отменена участником, админом или при ошибке расчета
	StateTimedOut    State = "timed_out"   // Истек срок сессии
)

// Terminal сообщает, является ли состояние конечным
func (s State) Terminal() bool {
	return s == StateSettled || s == StateCancelled || s == StateTimedOut
}

// CancelReason указывает, кто или что завершило сессию
type CancelReason string

const (
	CancelByParticipant CancelReason = "participant"
	CancelByAdmin       CancelReason = "admin"
	CancelByTimeout     CancelReason = "timeout"
	CancelByIntegrity   CancelReason = "integrity"
	CancelByInternal    CancelReason = "internal"
)

// Participant представляет одну сторону обмена
type Participant struct {
	PlayerID  uuid.UUID
	Balls     map[uuid.UUID]struct{} // Предложенные шары, изменяемы до фиксации
	Amount    decimal.Decimal        // Предложенная сумма (может быть нулевой)
	Locked    bool
	Confirmed bool
}

func newParticipant(playerID uuid.UUID) *Participant {
	return &Participant{
		PlayerID: playerID,
		Balls:    make(map[uuid.UUID]struct{}),
		Amount:   decimal.Zero,
	}
}

func (p *Participant) ballIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Balls))
	for id := range p.Balls {
		ids = append(ids, id)
	}
	return ids
}

// Session представляет одну сессию обмена между двумя участниками.
// Не сохраняется в базе до расчета; живет только в памяти процесса.
type Session struct {
	ID        uuid.UUID
	GuildID   string
	CreatedAt time.Time
	Deadline  time.Time

	mu           sync.Mutex
	state        State
	participants [2]*Participant
	cancelReason CancelReason
	cancelledBy  uuid.UUID // Инициатор отмены, для отображения в UI
	settlementID uuid.UUID // ID записи об обмене после успешного расчета
	timer        *time.Timer
}

func newSession(a, b uuid.UUID, guildID string, timeout time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New(),
		GuildID:      guildID,
		CreatedAt:    now,
		Deadline:     now.Add(timeout),
		state:        StateNegotiating,
		participants: [2]*Participant{newParticipant(a), newParticipant(b)},
	}
}

// participant возвращает участника по ID игрока
// Вызывается под mu
func (s *Session) participant(playerID uuid.UUID) *Participant {
	for _, p := range s.participants {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

// other возвращает второго участника сессии
// Вызывается под mu
func (s *Session) other(playerID uuid.UUID) *Participant {
	for _, p := range s.participants {
		if p.PlayerID != playerID {
			return p
		}
	}
	return nil
}

// bothLocked сообщает, зафиксировали ли оба участника свои предложения
func (s *Session) bothLocked() bool {
	return s.participants[0].Locked && s.participants[1].Locked
}

// bothConfirmed сообщает, подтвердили ли оба участника обмен
func (s *Session) bothConfirmed() bool {
	return s.participants[0].Confirmed && s.participants[1].Confirmed
}

// State возвращает текущее состояние сессии
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ParticipantView представляет сторону обмена для API
type ParticipantView struct {
	PlayerID  uuid.UUID   `json:"player_id"`
	BallIDs   []uuid.UUID `json:"ball_ids"`
	Amount    string      `json:"amount"`
	Locked    bool        `json:"locked"`
	Confirmed bool        `json:"confirmed"`
}

// SessionView представляет снимок сессии для API и событий
type SessionView struct {
	ID           uuid.UUID          `json:"id"`
	GuildID      string             `json:"guild_id,omitempty"`
	State        State              `json:"state"`
	Participants [2]ParticipantView `json:"participants"`
	CreatedAt    time.Time          `json:"created_at"`
	Deadline     time.Time          `json:"deadline"`
	CancelReason CancelReason       `json:"cancel_reason,omitempty"`
	CancelledBy  *uuid.UUID         `json:"cancelled_by,omitempty"`
	SettlementID *uuid.UUID         `json:"settlement_id,omitempty"`
}

// View возвращает снимок сессии
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// viewLocked собирает снимок сессии
// Вызывается под mu
func (s *Session) viewLocked() SessionView {
	v := SessionView{
		ID:           s.ID,
		GuildID:      s.GuildID,
		State:        s.state,
		CreatedAt:    s.CreatedAt,
		Deadline:     s.Deadline,
		CancelReason: s.cancelReason,
	}
	// uuid.UUID — массив, omitempty его не скрывает: нулевые
	// значения отдаем как отсутствующие поля через указатели
	if s.cancelledBy != uuid.Nil {
		id := s.cancelledBy
		v.CancelledBy = &id
	}
	if s.settlementID != uuid.Nil {
		id := s.settlementID
		v.SettlementID = &id
	}
	for i, p := range s.participants {
		v.Participants[i] = ParticipantView{
			PlayerID:  p.PlayerID,
			BallIDs:   p.ballIDs(),
			Amount:    p.Amount.String(),
			Locked:    p.Locked,
			Confirmed: p.Confirmed,
		}
	}
	return v
}
