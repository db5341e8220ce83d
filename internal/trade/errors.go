package trade

import "errors"

// Ошибки валидации операций над сессией. Все они восстановимые:
// сервисный слой переводит их в ответ пользователю, процесс не падает.
var (
	// ErrLocked — участник уже зафиксировал свое предложение
	ErrLocked = errors.New("предложение уже зафиксировано")

	// ErrSessionClosed — сессия уже завершена (расчет, отмена или таймаут)
	ErrSessionClosed = errors.New("сессия обмена уже завершена")

	// ErrNotOwner — шар не принадлежит участнику
	ErrNotOwner = errors.New("шар не принадлежит участнику")

	// ErrItemReserved — шар уже участвует в другой активной сессии
	ErrItemReserved = errors.New("шар уже зарезервирован в другом обмене")

	// ErrNotTradeable — шар помечен как не подлежащий обмену
	ErrNotTradeable = errors.New("шар нельзя обменивать")

	// ErrNotProposed — шар отсутствует в предложении участника
	ErrNotProposed = errors.New("шар отсутствует в предложении")

	// ErrInsufficientFunds — недостаточно средств для предложенной суммы
	ErrInsufficientFunds = errors.New("недостаточно средств")

	// ErrSynchronization — повторное или преждевременное подтверждение
	ErrSynchronization = errors.New("подтверждение уже обрабатывается")

	// ErrIntegrity — проверка при расчете обнаружила изменение владения
	// или баланса; сессия отменяется, сообщается обоим участникам
	ErrIntegrity = errors.New("состояние инвентаря изменилось, обмен отменен")

	// ErrNotParticipant — игрок не является участником сессии
	ErrNotParticipant = errors.New("игрок не участвует в этой сессии")

	// ErrSameParticipant — попытка открыть обмен с самим собой
	ErrSameParticipant = errors.New("нельзя открыть обмен с самим собой")

	// ErrAlreadyTrading — у игрока уже есть активная сессия
	ErrAlreadyTrading = errors.New("у игрока уже есть активный обмен")

	// ErrSessionNotFound — сессия не найдена или уже удалена
	ErrSessionNotFound = errors.New("сессия обмена не найдена")
)
