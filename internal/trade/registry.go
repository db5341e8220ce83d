package trade

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry хранит активные сессии и резервирования шаров.
// Создается при старте процесса и передается координатору явно;
// записи удаляются при каждом конечном переходе сессии.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session  // sessionID -> сессия
	byPlayer map[uuid.UUID]uuid.UUID // playerID -> активная сессия игрока
	reserved map[uuid.UUID]uuid.UUID // ballID -> сессия, удерживающая резерв
}

// NewRegistry создает новый экземпляр Registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		reserved: make(map[uuid.UUID]uuid.UUID),
	}
}

// add регистрирует новую сессию для обоих участников
func (r *Registry) add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range s.participants {
		if _, busy := r.byPlayer[p.PlayerID]; busy {
			return fmt.Errorf("игрок %s: %w", p.PlayerID, ErrAlreadyTrading)
		}
	}

	r.sessions[s.ID] = s
	for _, p := range s.participants {
		r.byPlayer[p.PlayerID] = s.ID
	}
	return nil
}

// Get возвращает активную сессию по ID
func (r *Registry) Get(sessionID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// GetByPlayer возвращает активную сессию игрока
func (r *Registry) GetByPlayer(playerID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.byPlayer[playerID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// reserve резервирует все шары за сессией по принципу все-или-ничего.
// Шар, удерживаемый другой активной сессией, блокирует всю операцию
func (r *Registry) reserve(sessionID uuid.UUID, ballIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ballIDs {
		if holder, taken := r.reserved[id]; taken && holder != sessionID {
			return fmt.Errorf("шар %s: %w", id, ErrItemReserved)
		}
	}
	for _, id := range ballIDs {
		r.reserved[id] = sessionID
	}
	return nil
}

// release снимает резерв с отдельных шаров сессии
func (r *Registry) release(sessionID uuid.UUID, ballIDs []uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ballIDs {
		if holder, ok := r.reserved[id]; ok && holder == sessionID {
			delete(r.reserved, id)
		}
	}
}

// drop удаляет сессию вместе со всеми ее резервами.
// Вызывается при любом конечном переходе; повторный вызов безопасен
func (r *Registry) drop(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, holder := range r.reserved {
		if holder == s.ID {
			delete(r.reserved, id)
		}
	}
	for _, p := range s.participants {
		if r.byPlayer[p.PlayerID] == s.ID {
			delete(r.byPlayer, p.PlayerID)
		}
	}
	delete(r.sessions, s.ID)
}

// reservedBy возвращает сессию, удерживающую шар
func (r *Registry) reservedBy(ballID uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, ok := r.reserved[ballID]
	return holder, ok
}

// ActiveCount возвращает количество активных сессий
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
