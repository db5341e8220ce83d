package main

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rkotelov/dexy-api/internal/config"
	"github.com/rkotelov/dexy-api/internal/db"
	"github.com/rkotelov/dexy-api/internal/inventory"
	spawntracker "github.com/rkotelov/dexy-api/internal/spawn"
	"github.com/rkotelov/dexy-api/internal/services/auth"
	"github.com/rkotelov/dexy-api/internal/services/spawn"
	"github.com/rkotelov/dexy-api/internal/services/trade"
	coretrade "github.com/rkotelov/dexy-api/internal/trade"
	"github.com/rkotelov/dexy-api/internal/utils"
	"github.com/rkotelov/dexy-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("❌ Ошибка при инициализации базы данных: %v", err)
	}
	defer db.CloseDB()

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Dexy Trade API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Service-Token"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// WebSocket менеджер доставляет события сессий процессу бота
	wsManager := websocket.NewManager()
	defer wsManager.Shutdown()

	// Собираем ядро обменов: хранилище, реестр резервов и координатор
	store := inventory.NewStore(db.Pool)
	registry := coretrade.NewRegistry()
	coordinator := coretrade.NewCoordinator(store, registry, cfg.TradeConfig.SessionTimeout, wsManager.TradeNotifier())

	// Счетчик активности для спавна
	tracker := spawntracker.NewTracker(cfg.SpawnConfig)

	// Создаём сервисы
	authService := auth.NewAuthService(cfg)
	tradeService := trade.NewTradeService(cfg, coordinator, registry)
	spawnService := spawn.NewSpawnService(cfg, tracker)

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	tradeService.SetupRoutes(app)
	spawnService.SetupRoutes(app)

	// Запускаем WebSocket шлюз на отдельном порту
	gateway := websocket.NewGateway(wsManager, utils.NewJWTService(cfg.JWTSecret), cfg.WSListenAddr)
	go func() {
		if err := gateway.Run(); err != nil {
			log.Printf("⚠️ WebSocket шлюз остановлен: %v", err)
		}
	}()
	defer gateway.Shutdown()

	// Запускаем сервер
	log.Println("✅ Dexy Trade API запущен на порту 8080")
	log.Fatal(app.Listen(":8080"))
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
