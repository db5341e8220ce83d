package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(store Store, notify func(Event)) (*Coordinator, *Registry) {
	registry := NewRegistry()
	return NewCoordinator(store, registry, time.Hour, notify), registry
}

func TestAddItemsReservesBall(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	ball := store.addBall(alice, true)

	coord, registry := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "guild-1")
	require.NoError(t, err)

	require.NoError(t, coord.AddItems(context.Background(), s, alice, []uuid.UUID{ball}))

	holder, reserved := registry.reservedBy(ball)
	assert.True(t, reserved)
	assert.Equal(t, s.ID, holder)
	assert.Equal(t, StateNegotiating, s.State())
}

func TestAddItemsValidation(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	carol := store.addPlayer("0")

	aliceBall := store.addBall(alice, true)
	carolBall := store.addBall(carol, true)
	frozenBall := store.addBall(alice, false)

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("чужой шар", func(t *testing.T) {
		err := coord.AddItems(ctx, s, alice, []uuid.UUID{carolBall})
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("необмениваемый шар", func(t *testing.T) {
		err := coord.AddItems(ctx, s, alice, []uuid.UUID{frozenBall})
		assert.ErrorIs(t, err, ErrNotTradeable)
	})

	t.Run("не участник", func(t *testing.T) {
		err := coord.AddItems(ctx, s, carol, []uuid.UUID{carolBall})
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("все или ничего", func(t *testing.T) {
		// Второй шар невалиден, первый не должен остаться в резерве
		err := coord.AddItems(ctx, s, alice, []uuid.UUID{aliceBall, carolBall})
		assert.ErrorIs(t, err, ErrNotOwner)

		view := s.View()
		assert.Empty(t, view.Participants[0].BallIDs)
		err = coord.AddItems(ctx, s, alice, []uuid.UUID{aliceBall})
		assert.NoError(t, err)
	})
}

func TestReservationExclusivity(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	carol := store.addPlayer("0")
	dave := store.addPlayer("0")

	ball := store.addBall(alice, true)

	coord, registry := newTestCoordinator(store, nil)
	s1, err := coord.Open(alice, bob, "")
	require.NoError(t, err)
	s2, err := coord.Open(carol, dave, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s1, alice, []uuid.UUID{ball}))

	// Владелец сменился вне сессии; вторая сессия пытается добавить
	// тот же шар — резерв первой сессии должен заблокировать попытку
	store.setOwner(ball, carol)
	err = coord.AddItems(ctx, s2, carol, []uuid.UUID{ball})
	assert.ErrorIs(t, err, ErrItemReserved)
	assert.Empty(t, s2.View().Participants[0].BallIDs)

	// После завершения первой сессии резерв свободен
	require.NoError(t, coord.Cancel(s1, alice, false))
	_, reserved := registry.reservedBy(ball)
	assert.False(t, reserved)
	assert.NoError(t, coord.AddItems(ctx, s2, carol, []uuid.UUID{ball}))
}

func TestFullTradeFlow(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("100")
	bob := store.addPlayer("50")
	ball := store.addBall(alice, true)

	var events []EventType
	notify := func(ev Event) { events = append(events, ev.Type) }

	coord, registry := newTestCoordinator(store, notify)
	s, err := coord.Open(alice, bob, "guild-1")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))
	require.NoError(t, coord.SetCurrency(ctx, s, bob, decimal.RequireFromString("25")))

	require.NoError(t, coord.Lock(s, alice))
	assert.Equal(t, StateNegotiating, s.State())
	require.NoError(t, coord.Lock(s, bob))
	assert.Equal(t, StateConfirming, s.State())

	require.NoError(t, coord.Confirm(ctx, s, alice))
	assert.Equal(t, StateConfirming, s.State())
	require.NoError(t, coord.Confirm(ctx, s, bob))

	// Расчет: шар у Боба, деньги у Алисы, запись создана
	assert.Equal(t, StateSettled, s.State())
	assert.Equal(t, bob, store.owner(ball))
	assert.Equal(t, "125", store.balance(alice).String())
	assert.Equal(t, "25", store.balance(bob).String())
	require.Len(t, store.settlements, 1)
	assert.Equal(t, alice, store.settlements[0].PartyA)
	assert.Equal(t, bob, store.settlements[0].PartyB)

	view := s.View()
	require.NotNil(t, view.SettlementID)
	assert.NotEqual(t, uuid.Nil, *view.SettlementID)

	// Резервы сняты, сессия удалена из реестра
	_, reserved := registry.reservedBy(ball)
	assert.False(t, reserved)
	assert.Equal(t, 0, registry.ActiveCount())

	assert.Equal(t, EventSettled, events[len(events)-1])
}

func TestLockedProposalImmutable(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("100")
	bob := store.addPlayer("0")
	ball := store.addBall(alice, true)
	extra := store.addBall(alice, true)

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))
	require.NoError(t, coord.Lock(s, alice))

	assert.ErrorIs(t, coord.AddItems(ctx, s, alice, []uuid.UUID{extra}), ErrLocked)
	assert.ErrorIs(t, coord.RemoveItems(s, alice, []uuid.UUID{ball}), ErrLocked)
	assert.ErrorIs(t, coord.SetCurrency(ctx, s, alice, decimal.NewFromInt(1)), ErrLocked)

	// Повторная фиксация — ошибка, а не no-op
	assert.ErrorIs(t, coord.Lock(s, alice), ErrLocked)
}

func TestConfirmSynchronization(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()

	// Подтверждение до фиксации обоих — нарушение порядка фаз
	assert.ErrorIs(t, coord.Confirm(ctx, s, alice), ErrSynchronization)

	require.NoError(t, coord.Lock(s, alice))
	require.NoError(t, coord.Lock(s, bob))

	require.NoError(t, coord.Confirm(ctx, s, alice))
	assert.ErrorIs(t, coord.Confirm(ctx, s, alice), ErrSynchronization)
}

func TestSettlementIntegrityFault(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("10")
	bob := store.addPlayer("10")
	carol := store.addPlayer("0")
	ball := store.addBall(alice, true)

	coord, registry := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))
	require.NoError(t, coord.Lock(s, alice))
	require.NoError(t, coord.Lock(s, bob))
	require.NoError(t, coord.Confirm(ctx, s, alice))

	// Владение меняется между фиксацией и расчетом
	store.setOwner(ball, carol)

	err = coord.Confirm(ctx, s, bob)
	assert.ErrorIs(t, err, ErrIntegrity)

	// Никаких изменений: шар у Кэрол, балансы нетронуты, записей нет
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, carol, store.owner(ball))
	assert.Equal(t, "10", store.balance(alice).String())
	assert.Equal(t, "10", store.balance(bob).String())
	assert.Empty(t, store.settlements)
	assert.Equal(t, 1, store.swapCalls)

	view := s.View()
	assert.Equal(t, CancelByIntegrity, view.CancelReason)
	assert.Equal(t, 0, registry.ActiveCount())
}

func TestSettlementInternalFault(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("10")
	bob := store.addPlayer("10")
	ball := store.addBall(alice, true)

	coord, registry := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))
	require.NoError(t, coord.Lock(s, alice))
	require.NoError(t, coord.Lock(s, bob))
	require.NoError(t, coord.Confirm(ctx, s, alice))

	// Хранилище падает с ошибкой вне таксономии, транзакция откатана
	dbErr := errors.New("соединение с базой потеряно")
	store.failSwap(dbErr)

	err = coord.Confirm(ctx, s, bob)
	require.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrIntegrity)

	// Сессия отменена как внутренняя ошибка, перевода не было
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, alice, store.owner(ball))
	assert.Equal(t, "10", store.balance(alice).String())
	assert.Equal(t, "10", store.balance(bob).String())
	assert.Empty(t, store.settlements)

	view := s.View()
	assert.Equal(t, CancelByInternal, view.CancelReason)
	assert.Nil(t, view.SettlementID)

	// Резервы сняты, сессия удалена из реестра
	_, reserved := registry.reservedBy(ball)
	assert.False(t, reserved)
	assert.Equal(t, 0, registry.ActiveCount())
}

func TestCancelReleasesReservations(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	ball := store.addBall(alice, true)

	coord, registry := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))
	require.NoError(t, coord.Cancel(s, alice, false))

	assert.Equal(t, StateCancelled, s.State())
	_, reserved := registry.reservedBy(ball)
	assert.False(t, reserved)
	assert.Equal(t, alice, store.owner(ball))
	assert.Empty(t, store.settlements)

	view := s.View()
	assert.Equal(t, CancelByParticipant, view.CancelReason)
	require.NotNil(t, view.CancelledBy)
	assert.Equal(t, alice, *view.CancelledBy)
}

func TestCancelIdempotent(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	require.NoError(t, coord.Cancel(s, alice, false))
	before := s.View()

	// Повторная отмена ничего не меняет и не падает
	require.NoError(t, coord.Cancel(s, bob, false))
	after := s.View()

	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.CancelledBy, after.CancelledBy)
	assert.Equal(t, before.CancelReason, after.CancelReason)
}

func TestAdminCancel(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	admin := store.addPlayer("0")

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	// Посторонний без прав администратора отменить не может
	assert.ErrorIs(t, coord.Cancel(s, admin, false), ErrNotParticipant)

	require.NoError(t, coord.Cancel(s, admin, true))
	view := s.View()
	assert.Equal(t, CancelByAdmin, view.CancelReason)
	require.NotNil(t, view.CancelledBy)
	assert.Equal(t, admin, *view.CancelledBy)
}

func TestSessionTimeout(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	ball := store.addBall(alice, true)

	registry := NewRegistry()
	coord := NewCoordinator(store, registry, 30*time.Millisecond, nil)

	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)
	require.NoError(t, coord.AddItems(context.Background(), s, alice, []uuid.UUID{ball}))

	require.Eventually(t, func() bool {
		return s.State() == StateTimedOut
	}, time.Second, 5*time.Millisecond)

	// Резервы сняты, записей нет, дальнейшие операции отклоняются
	_, reserved := registry.reservedBy(ball)
	assert.False(t, reserved)
	assert.Empty(t, store.settlements)
	assert.ErrorIs(t, coord.Lock(s, alice), ErrSessionClosed)
	assert.ErrorIs(t, coord.Confirm(context.Background(), s, alice), ErrSessionClosed)
}

func TestTerminalStateIsFinal(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	ball := store.addBall(alice, true)

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))
	require.NoError(t, coord.Lock(s, alice))
	require.NoError(t, coord.Lock(s, bob))
	require.NoError(t, coord.Confirm(ctx, s, alice))
	require.NoError(t, coord.Confirm(ctx, s, bob))
	require.Equal(t, StateSettled, s.State())

	// Из конечного состояния выхода нет, расчет не повторяется
	assert.ErrorIs(t, coord.Cancel(s, alice, false), ErrSessionClosed)
	assert.ErrorIs(t, coord.Confirm(ctx, s, alice), ErrSessionClosed)
	assert.Equal(t, StateSettled, s.State())
	assert.Equal(t, 1, store.swapCalls)
	assert.Len(t, store.settlements, 1)
}

func TestSetCurrencyInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("10")
	bob := store.addPlayer("0")

	coord, _ := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	err = coord.SetCurrency(ctx, s, alice, decimal.RequireFromString("10.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	view := s.View()
	assert.Equal(t, "0", view.Participants[0].Amount)
	assert.Equal(t, "10", store.balance(alice).String())

	// Сумма в пределах баланса принимается
	require.NoError(t, coord.SetCurrency(ctx, s, alice, decimal.RequireFromString("10")))
	assert.Equal(t, "10", s.View().Participants[0].Amount)
}

func TestOpenValidation(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	carol := store.addPlayer("0")

	coord, _ := newTestCoordinator(store, nil)

	_, err := coord.Open(alice, alice, "")
	assert.ErrorIs(t, err, ErrSameParticipant)

	_, err = coord.Open(alice, bob, "")
	require.NoError(t, err)

	// Игрок уже в активной сессии
	_, err = coord.Open(bob, carol, "")
	assert.ErrorIs(t, err, ErrAlreadyTrading)
}

func TestRemoveItems(t *testing.T) {
	store := newFakeStore()
	alice := store.addPlayer("0")
	bob := store.addPlayer("0")
	ball := store.addBall(alice, true)
	other := store.addBall(alice, true)

	coord, registry := newTestCoordinator(store, nil)
	s, err := coord.Open(alice, bob, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coord.AddItems(ctx, s, alice, []uuid.UUID{ball}))

	assert.ErrorIs(t, coord.RemoveItems(s, alice, []uuid.UUID{other}), ErrNotProposed)

	require.NoError(t, coord.RemoveItems(s, alice, []uuid.UUID{ball}))
	_, reserved := registry.reservedBy(ball)
	assert.False(t, reserved)
	assert.Empty(t, s.View().Participants[0].BallIDs)
}
