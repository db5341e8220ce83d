package trade

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeStore — хранилище в памяти для тестов координатора.
// Swap повторяет проверки настоящего хранилища: владение,
// возможность обмена и балансы, все-или-ничего
type fakeStore struct {
	mu        sync.Mutex
	owners    map[uuid.UUID]uuid.UUID
	tradeable map[uuid.UUID]bool
	balances  map[uuid.UUID]decimal.Decimal

	swapCalls   int
	settlements []Settlement
	swapErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners:    make(map[uuid.UUID]uuid.UUID),
		tradeable: make(map[uuid.UUID]bool),
		balances:  make(map[uuid.UUID]decimal.Decimal),
	}
}

func (f *fakeStore) addPlayer(balance string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.balances[id] = decimal.RequireFromString(balance)
	return id
}

func (f *fakeStore) addBall(owner uuid.UUID, canTrade bool) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.owners[id] = owner
	f.tradeable[id] = canTrade
	return id
}

// failSwap заставляет следующий расчет упасть с заданной ошибкой,
// как будто транзакция откатилась по причинам вне таксономии
func (f *fakeStore) failSwap(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapErr = err
}

func (f *fakeStore) setOwner(ballID, owner uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[ballID] = owner
}

func (f *fakeStore) owner(ballID uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[ballID]
}

func (f *fakeStore) balance(playerID uuid.UUID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[playerID]
}

func (f *fakeStore) GetOwner(_ context.Context, ballID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[ballID]
	if !ok {
		return uuid.Nil, fmt.Errorf("шар %s не найден: %w", ballID, ErrNotOwner)
	}
	return owner, nil
}

func (f *fakeStore) IsTradeable(_ context.Context, ballID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tradeable[ballID], nil
}

func (f *fakeStore) GetBalance(_ context.Context, playerID uuid.UUID) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[playerID], nil
}

func (f *fakeStore) Swap(_ context.Context, st Settlement) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.swapCalls++

	if f.swapErr != nil {
		return uuid.Nil, f.swapErr
	}

	// Повторная проверка под "блокировкой": владение и возможность обмена
	for _, tr := range st.Transfers {
		if f.owners[tr.BallID] != tr.FromOwner {
			return uuid.Nil, fmt.Errorf("владелец шара %s изменился: %w", tr.BallID, ErrIntegrity)
		}
		if !f.tradeable[tr.BallID] {
			return uuid.Nil, fmt.Errorf("шар %s больше нельзя обменивать: %w", tr.BallID, ErrIntegrity)
		}
	}
	for playerID, delta := range st.Deltas {
		if f.balances[playerID].Add(delta).IsNegative() {
			return uuid.Nil, fmt.Errorf("игрок %s не может оплатить обмен: %w", playerID, ErrIntegrity)
		}
	}

	// Все проверки пройдены — применяем разом
	for _, tr := range st.Transfers {
		f.owners[tr.BallID] = tr.ToOwner
	}
	for playerID, delta := range st.Deltas {
		f.balances[playerID] = f.balances[playerID].Add(delta)
	}

	f.settlements = append(f.settlements, st)
	return uuid.New(), nil
}
