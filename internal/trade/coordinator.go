package trade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer описывает передачу одного шара при расчете
type Transfer struct {
	BallID    uuid.UUID
	FromOwner uuid.UUID
	ToOwner   uuid.UUID
}

// Settlement описывает атомарный расчет по сессии
type Settlement struct {
	SessionID uuid.UUID
	GuildID   string
	PartyA    uuid.UUID
	PartyB    uuid.UUID
	Transfers []Transfer
	Deltas    map[uuid.UUID]decimal.Decimal // Чистое изменение баланса каждого участника
}

// Store — внешнее хранилище владения шарами и балансов игроков.
// Swap обязан выполнять все проверки и переводы в одной транзакции
// с блокировкой строк; при нарушении владения или баланса возвращает
// ошибку, оборачивающую ErrIntegrity, не меняя ничего
type Store interface {
	GetOwner(ctx context.Context, ballID uuid.UUID) (uuid.UUID, error)
	IsTradeable(ctx context.Context, ballID uuid.UUID) (bool, error)
	GetBalance(ctx context.Context, playerID uuid.UUID) (decimal.Decimal, error)
	Swap(ctx context.Context, st Settlement) (uuid.UUID, error)
}

// EventType определяет тип события сессии обмена
type EventType string

const (
	EventOpened    EventType = "trade_opened"
	EventUpdated   EventType = "trade_updated"
	EventLocked    EventType = "trade_locked"
	EventConfirmed EventType = "trade_confirmed"
	EventSettled   EventType = "trade_settled"
	EventCancelled EventType = "trade_cancelled"
	EventTimedOut  EventType = "trade_timed_out"
)

// Event публикуется после каждого изменения состояния сессии.
// Слой отображения подписывается на события и рисует их сам
type Event struct {
	Type    EventType   `json:"type"`
	Actor   uuid.UUID   `json:"actor,omitempty"`
	Session SessionView `json:"session"`
}

// Coordinator управляет жизненным циклом сессий обмена:
// сборка предложений, фиксация, взаимное подтверждение и атомарный расчет
type Coordinator struct {
	store    Store
	registry *Registry
	timeout  time.Duration
	notify   func(Event) // Может быть nil; не должен вызывать координатор обратно
}

// NewCoordinator создает новый экземпляр Coordinator
func NewCoordinator(store Store, registry *Registry, timeout time.Duration, notify func(Event)) *Coordinator {
	return &Coordinator{
		store:    store,
		registry: registry,
		timeout:  timeout,
		notify:   notify,
	}
}

// emit публикует событие со снимком сессии
// Вызывается под s.mu
func (c *Coordinator) emit(typ EventType, actor uuid.UUID, s *Session) {
	if c.notify == nil {
		return
	}
	c.notify(Event{Type: typ, Actor: actor, Session: s.viewLocked()})
}

// Open открывает новую сессию между двумя игроками.
// У каждого игрока может быть только одна активная сессия
func (c *Coordinator) Open(a, b uuid.UUID, guildID string) (*Session, error) {
	if a == b {
		return nil, ErrSameParticipant
	}

	s := newSession(a, b, guildID, c.timeout)
	if err := c.registry.add(s); err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Таймер гонится с обычным завершением; проигравший увидит конечное
	// состояние и ничего не сделает
	s.timer = time.AfterFunc(c.timeout, func() { c.expire(s) })
	c.emit(EventOpened, a, s)
	s.mu.Unlock()

	return s, nil
}

// AddItems добавляет шары в предложение участника.
// Резервирование выполняется по принципу все-или-ничего
func (c *Coordinator) AddItems(ctx context.Context, s *Session, playerID uuid.UUID, ballIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := c.mutableParticipant(s, playerID)
	if err != nil {
		return err
	}

	// Проверяем владение и возможность обмена до резервирования
	for _, id := range ballIDs {
		owner, err := c.store.GetOwner(ctx, id)
		if err != nil {
			return err
		}
		if owner != playerID {
			return fmt.Errorf("шар %s: %w", id, ErrNotOwner)
		}
		tradeable, err := c.store.IsTradeable(ctx, id)
		if err != nil {
			return err
		}
		if !tradeable {
			return fmt.Errorf("шар %s: %w", id, ErrNotTradeable)
		}
	}

	if err := c.registry.reserve(s.ID, ballIDs); err != nil {
		return err
	}

	for _, id := range ballIDs {
		p.Balls[id] = struct{}{}
	}
	c.emit(EventUpdated, playerID, s)
	return nil
}

// RemoveItems убирает шары из предложения участника и снимает резерв
func (c *Coordinator) RemoveItems(s *Session, playerID uuid.UUID, ballIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := c.mutableParticipant(s, playerID)
	if err != nil {
		return err
	}

	for _, id := range ballIDs {
		if _, ok := p.Balls[id]; !ok {
			return fmt.Errorf("шар %s: %w", id, ErrNotProposed)
		}
	}

	for _, id := range ballIDs {
		delete(p.Balls, id)
	}
	c.registry.release(s.ID, ballIDs)
	c.emit(EventUpdated, playerID, s)
	return nil
}

// SetCurrency устанавливает денежную часть предложения.
// Баланс проверяется в хранилище в момент вызова, не из кеша
func (c *Coordinator) SetCurrency(ctx context.Context, s *Session, playerID uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := c.mutableParticipant(s, playerID)
	if err != nil {
		return err
	}

	if amount.IsNegative() {
		return fmt.Errorf("сумма %s: %w", amount, ErrInsufficientFunds)
	}
	balance, err := c.store.GetBalance(ctx, playerID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("сумма %s при балансе %s: %w", amount, balance, ErrInsufficientFunds)
	}

	p.Amount = amount
	c.emit(EventUpdated, playerID, s)
	return nil
}

// Lock фиксирует предложение участника. Повторная фиксация — ошибка,
// а не тихий no-op: так ошибки UI всплывают сразу
func (c *Coordinator) Lock(s *Session, playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := c.mutableParticipant(s, playerID)
	if err != nil {
		return err
	}

	p.Locked = true
	if s.bothLocked() {
		s.state = StateConfirming
	}
	c.emit(EventLocked, playerID, s)
	return nil
}

// Confirm подтверждает обмен. Когда подтвердили оба, выполняется расчет
func (c *Coordinator) Confirm(ctx context.Context, s *Session, playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return ErrSessionClosed
	}
	p := s.participant(playerID)
	if p == nil {
		return ErrNotParticipant
	}
	if s.state != StateConfirming || p.Confirmed {
		return ErrSynchronization
	}

	p.Confirmed = true
	c.emit(EventConfirmed, playerID, s)

	if !s.bothConfirmed() {
		return nil
	}
	return c.settle(ctx, s)
}

// settle выполняет атомарный расчет: хранилище еще раз проверяет
// владение и балансы под блокировками строк и переводит все разом.
// Частичный перевод не наблюдаем ни при каком исходе
// Вызывается под s.mu
func (c *Coordinator) settle(ctx context.Context, s *Session) error {
	a, b := s.participants[0], s.participants[1]

	st := Settlement{
		SessionID: s.ID,
		GuildID:   s.GuildID,
		PartyA:    a.PlayerID,
		PartyB:    b.PlayerID,
		Deltas: map[uuid.UUID]decimal.Decimal{
			a.PlayerID: b.Amount.Sub(a.Amount),
			b.PlayerID: a.Amount.Sub(b.Amount),
		},
	}
	for _, p := range s.participants {
		o := s.other(p.PlayerID)
		for id := range p.Balls {
			st.Transfers = append(st.Transfers, Transfer{
				BallID:    id,
				FromOwner: p.PlayerID,
				ToOwner:   o.PlayerID,
			})
		}
	}

	settlementID, err := c.store.Swap(ctx, st)
	if err != nil {
		reason := CancelByIntegrity
		if !errors.Is(err, ErrIntegrity) {
			// Неизвестная ошибка при расчете: транзакция уже откатана
			// хранилищем, сессию завершаем как отмененную
			reason = CancelByInternal
			log.Printf("Непредвиденная ошибка расчета сессии %s: %v", s.ID, err)
		}
		c.closeLocked(s, StateCancelled, reason, uuid.Nil)
		c.emit(EventCancelled, uuid.Nil, s)
		return err
	}

	s.settlementID = settlementID
	c.closeLocked(s, StateSettled, "", uuid.Nil)
	c.emit(EventSettled, uuid.Nil, s)
	return nil
}

// Cancel завершает сессию по инициативе участника или администратора.
// Повторная отмена уже отмененной сессии — безопасный no-op
func (c *Coordinator) Cancel(s *Session, actorID uuid.UUID, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCancelled || s.state == StateTimedOut {
		return nil
	}
	if s.state.Terminal() {
		return ErrSessionClosed
	}
	if !admin && s.participant(actorID) == nil {
		return ErrNotParticipant
	}

	reason := CancelByParticipant
	if admin {
		reason = CancelByAdmin
	}
	c.closeLocked(s, StateCancelled, reason, actorID)
	c.emit(EventCancelled, actorID, s)
	return nil
}

// expire переводит сессию в TimedOut по истечении срока
func (c *Coordinator) expire(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	c.closeLocked(s, StateTimedOut, CancelByTimeout, uuid.Nil)
	c.emit(EventTimedOut, uuid.Nil, s)
}

// closeLocked выполняет конечный переход: останавливает таймер
// и снимает все резервы сессии
// Вызывается под s.mu
func (c *Coordinator) closeLocked(s *Session, state State, reason CancelReason, actorID uuid.UUID) {
	s.state = state
	s.cancelReason = reason
	s.cancelledBy = actorID
	if s.timer != nil {
		s.timer.Stop()
	}
	c.registry.drop(s)
}

// mutableParticipant возвращает участника, если его предложение
// еще можно менять
// Вызывается под s.mu
func (c *Coordinator) mutableParticipant(s *Session, playerID uuid.UUID) (*Participant, error) {
	if s.state.Terminal() {
		return nil, ErrSessionClosed
	}
	p := s.participant(playerID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	if p.Locked || s.state != StateNegotiating {
		return nil, ErrLocked
	}
	return p, nil
}
