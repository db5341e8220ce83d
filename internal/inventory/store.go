package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rkotelov/dexy-api/internal/trade"
)

// Store — хранилище владения шарами и балансов игроков поверх Postgres.
// Реализует trade.Store
type Store struct {
	pool *pgxpool.Pool
}

// NewStore создает новый экземпляр Store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetOwner возвращает владельца шара
func (s *Store) GetOwner(ctx context.Context, ballID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := s.pool.QueryRow(ctx, `
        SELECT owner_id FROM balls WHERE id = $1
    `, ballID).Scan(&owner)

	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, fmt.Errorf("шар %s не найден: %w", ballID, trade.ErrNotOwner)
		}
		return uuid.Nil, fmt.Errorf("ошибка запроса владельца шара: %w", err)
	}
	return owner, nil
}

// IsTradeable сообщает, можно ли обменивать шар
func (s *Store) IsTradeable(ctx context.Context, ballID uuid.UUID) (bool, error) {
	var tradeable bool
	err := s.pool.QueryRow(ctx, `
        SELECT tradeable FROM balls WHERE id = $1
    `, ballID).Scan(&tradeable)

	if err != nil {
		if err == pgx.ErrNoRows {
			return false, fmt.Errorf("шар %s не найден: %w", ballID, trade.ErrNotTradeable)
		}
		return false, fmt.Errorf("ошибка запроса шара: %w", err)
	}
	return tradeable, nil
}

// GetBalance возвращает текущий баланс игрока
func (s *Store) GetBalance(ctx context.Context, playerID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `
        SELECT balance::text FROM players WHERE id = $1
    `, playerID).Scan(&raw)

	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка запроса баланса игрока %s: %w", playerID, err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка разбора баланса: %w", err)
	}
	return balance, nil
}

// Swap выполняет атомарный расчет по сессии: в одной транзакции
// блокирует строки всех шаров и обоих игроков, повторно проверяет
// владение, возможность обмена и балансы, переводит все разом
// и создает запись об обмене. Любая неудачная проверка откатывает
// транзакцию целиком и возвращает trade.ErrIntegrity
func (s *Store) Swap(ctx context.Context, st trade.Settlement) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строки в детерминированном порядке, чтобы два
	// конкурирующих расчета не попали во взаимную блокировку
	ballIDs := make([]uuid.UUID, 0, len(st.Transfers))
	expected := make(map[uuid.UUID]trade.Transfer, len(st.Transfers))
	for _, tr := range st.Transfers {
		ballIDs = append(ballIDs, tr.BallID)
		expected[tr.BallID] = tr
	}
	sort.Slice(ballIDs, func(i, j int) bool {
		return ballIDs[i].String() < ballIDs[j].String()
	})

	rows, err := tx.Query(ctx, `
        SELECT id, owner_id, tradeable FROM balls
        WHERE id = ANY($1)
        ORDER BY id
        FOR UPDATE
    `, ballIDs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ошибка блокировки шаров: %w", err)
	}

	locked := 0
	for rows.Next() {
		var id, owner uuid.UUID
		var tradeable bool
		if err := rows.Scan(&id, &owner, &tradeable); err != nil {
			rows.Close()
			return uuid.Nil, fmt.Errorf("ошибка чтения шара: %w", err)
		}
		tr := expected[id]
		if owner != tr.FromOwner {
			rows.Close()
			return uuid.Nil, fmt.Errorf("владелец шара %s изменился: %w", id, trade.ErrIntegrity)
		}
		if !tradeable {
			rows.Close()
			return uuid.Nil, fmt.Errorf("шар %s больше нельзя обменивать: %w", id, trade.ErrIntegrity)
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return uuid.Nil, fmt.Errorf("ошибка чтения шаров: %w", err)
	}
	if locked != len(ballIDs) {
		// Часть шаров исчезла между фиксацией и расчетом
		return uuid.Nil, fmt.Errorf("шары не найдены: %w", trade.ErrIntegrity)
	}

	// Блокируем обоих игроков, тоже в детерминированном порядке
	playerIDs := []uuid.UUID{st.PartyA, st.PartyB}
	sort.Slice(playerIDs, func(i, j int) bool {
		return playerIDs[i].String() < playerIDs[j].String()
	})

	balances := make(map[uuid.UUID]decimal.Decimal, 2)
	for _, playerID := range playerIDs {
		var raw string
		err := tx.QueryRow(ctx, `
            SELECT balance::text FROM players WHERE id = $1 FOR UPDATE
        `, playerID).Scan(&raw)
		if err != nil {
			if err == pgx.ErrNoRows {
				return uuid.Nil, fmt.Errorf("игрок %s не найден: %w", playerID, trade.ErrIntegrity)
			}
			return uuid.Nil, fmt.Errorf("ошибка блокировки игрока: %w", err)
		}
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("ошибка разбора баланса: %w", err)
		}
		balances[playerID] = balance
	}

	// Проверяем, что после применения чистой разницы баланс
	// не уходит в минус
	for playerID, delta := range st.Deltas {
		if balances[playerID].Add(delta).IsNegative() {
			return uuid.Nil, fmt.Errorf("игрок %s не может оплатить обмен: %w", playerID, trade.ErrIntegrity)
		}
	}

	// Все проверки пройдены — переводим владение и корректируем балансы
	for _, tr := range st.Transfers {
		_, err := tx.Exec(ctx, `
            UPDATE balls SET owner_id = $1 WHERE id = $2
        `, tr.ToOwner, tr.BallID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("ошибка перевода шара %s: %w", tr.BallID, err)
		}
	}

	for playerID, delta := range st.Deltas {
		if delta.IsZero() {
			continue
		}
		_, err := tx.Exec(ctx, `
            UPDATE players SET balance = balance + $1, updated_at = NOW() WHERE id = $2
        `, delta.String(), playerID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("ошибка изменения баланса игрока %s: %w", playerID, err)
		}
	}

	// Создаем запись об обмене; net_amount — чистая сумма, полученная второй стороной
	settlementID := uuid.New()
	_, err = tx.Exec(ctx, `
        INSERT INTO trades (id, sender_id, receiver_id, guild_id, status, net_amount)
        VALUES ($1, $2, $3, $4, 'settled', $5)
    `, settlementID, st.PartyA, st.PartyB, st.GuildID, st.Deltas[st.PartyB].String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("ошибка создания записи об обмене: %w", err)
	}

	for _, tr := range st.Transfers {
		_, err = tx.Exec(ctx, `
            INSERT INTO trade_items (id, trade_id, ball_id, from_owner, to_owner)
            VALUES ($1, $2, $3, $4, $5)
        `, uuid.New(), settlementID, tr.BallID, tr.FromOwner, tr.ToOwner)
		if err != nil {
			return uuid.Nil, fmt.Errorf("ошибка записи переданного шара: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return settlementID, nil
}
