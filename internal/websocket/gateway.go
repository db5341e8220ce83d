package websocket

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rkotelov/dexy-api/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Подключается только процесс бота, проверка происхождения не нужна
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway поднимает отдельный HTTP-листенер для WebSocket соединений.
// Fiber работает поверх fasthttp, поэтому gorilla/websocket живет
// на собственном порту
type Gateway struct {
	manager    *Manager
	jwtService *utils.JWTService
	server     *http.Server
}

// NewGateway создает новый экземпляр Gateway
func NewGateway(manager *Manager, jwtService *utils.JWTService, addr string) *Gateway {
	g := &Gateway{
		manager:    manager,
		jwtService: jwtService,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	g.server = &http.Server{Addr: addr, Handler: mux}

	return g
}

// handleWS проверяет токен игрока и апгрейдит соединение
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	playerID, _, err := g.jwtService.ExtractClaims(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if _, err := uuid.Parse(playerID); err != nil {
		http.Error(w, "invalid player id", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Ошибка апгрейда WebSocket соединения: %v", err)
		return
	}

	NewClient(playerID, conn, g.manager).Start()
}

// Run запускает листенер; блокируется до завершения сервера
func (g *Gateway) Run() error {
	log.Printf("✅ WebSocket шлюз запущен на %s", g.server.Addr)
	return g.server.ListenAndServe()
}

// Shutdown останавливает листенер и закрывает все соединения
func (g *Gateway) Shutdown() {
	g.manager.Shutdown()
	g.server.Close()
}
