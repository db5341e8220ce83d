package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rkotelov/dexy-api/internal/trade"
)

// Manager представляет центральный менеджер для всех WebSocket соединений.
// Процесс бота подключается от имени игроков и получает события сессий
type Manager struct {
	clients       map[uuid.UUID]*Client
	clientsMutex  sync.RWMutex
	playerClients map[string]map[uuid.UUID]bool // playerID -> map[clientID]bool
	playerMutex   sync.RWMutex
}

// Event представляет структуру сообщения для WebSocket
type Event struct {
	Type      trade.EventType `json:"type"`
	PlayerID  string          `json:"player_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewManager создает новый экземпляр Manager
func NewManager() *Manager {
	return &Manager{
		clients:       make(map[uuid.UUID]*Client),
		playerClients: make(map[string]map[uuid.UUID]bool),
	}
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	// Связываем клиент с игроком
	m.playerMutex.Lock()
	if _, exists := m.playerClients[client.PlayerID]; !exists {
		m.playerClients[client.PlayerID] = make(map[uuid.UUID]bool)
	}
	m.playerClients[client.PlayerID][client.ID] = true
	m.playerMutex.Unlock()

	log.Printf("WebSocket client %s connected for player %s", client.ID, client.PlayerID)
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.RLock()
	client, exists := m.clients[clientID]
	m.clientsMutex.RUnlock()

	if !exists {
		return
	}

	playerID := client.PlayerID

	// Удаляем клиент из связи с игроком
	m.playerMutex.Lock()
	if clients, ok := m.playerClients[playerID]; ok {
		delete(clients, clientID)
		// Если это был последний клиент игрока, удаляем запись игрока
		if len(clients) == 0 {
			delete(m.playerClients, playerID)
		}
	}
	m.playerMutex.Unlock()

	// Удаляем клиент из общего списка
	m.clientsMutex.Lock()
	delete(m.clients, clientID)
	m.clientsMutex.Unlock()

	log.Printf("WebSocket client %s disconnected for player %s", clientID, playerID)
}

// SendToPlayer отправляет событие всем соединениям конкретного игрока
func (m *Manager) SendToPlayer(playerID string, event Event) {
	if playerID == "" {
		return
	}

	m.playerMutex.RLock()
	clientIDs, exists := m.playerClients[playerID]
	m.playerMutex.RUnlock()

	if !exists || len(clientIDs) == 0 {
		// Игрок не подключен; бот при необходимости запросит состояние сам
		return
	}

	// Устанавливаем время события, если не установлено
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	for clientID := range clientIDs {
		m.clientsMutex.RLock()
		client, exists := m.clients[clientID]
		m.clientsMutex.RUnlock()

		if !exists {
			continue
		}

		// Отправляем в неблокирующем режиме через горутину
		go func(c *Client) {
			select {
			case c.send <- eventJSON:
				// Сообщение успешно добавлено в очередь отправки
			default:
				// Канал заполнен, клиент слишком медленный - закрываем соединение
				log.Printf("Send channel full for client %s, closing connection", c.ID)
				c.conn.Close()
				m.RemoveClient(c.ID)
			}
		}(client)
	}
}

// TradeNotifier возвращает обработчик событий координатора:
// каждое изменение состояния сессии доставляется обоим участникам
func (m *Manager) TradeNotifier() func(trade.Event) {
	return func(ev trade.Event) {
		payload, err := json.Marshal(ev.Session)
		if err != nil {
			log.Printf("Error marshaling session view: %v", err)
			return
		}

		for _, p := range ev.Session.Participants {
			m.SendToPlayer(p.PlayerID.String(), Event{
				Type:      ev.Type,
				PlayerID:  ev.Actor.String(),
				Timestamp: time.Now(),
				Payload:   payload,
			})
		}
	}
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.conn.Close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	m.playerMutex.Lock()
	m.playerClients = make(map[string]map[uuid.UUID]bool)
	m.playerMutex.Unlock()
}
