package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config структура конфигурации
type Config struct {
	BotServiceToken string
	JWTSecret       string
	DatabaseURL     string
	DatabaseConfig  DatabaseConfig
	TradeConfig     TradeConfig
	SpawnConfig     SpawnConfig
	WSListenAddr    string
	AppEnv          string // Окружение приложения
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// TradeConfig содержит настройки обменных сессий
type TradeConfig struct {
	SessionTimeout time.Duration // Время жизни сессии до автоматического завершения
}

// SpawnConfig содержит настройки счетчика активности для спавна
type SpawnConfig struct {
	ThresholdMin int           // Нижняя граница случайного порога
	ThresholdMax int           // Верхняя граница случайного порога
	Throttle     time.Duration // Минимальный интервал между учитываемыми событиями
	MinElapsed   time.Duration // Минимальное время цикла до срабатывания
}

// LoadConfig загружает переменные из .env
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️ .env файл не найден, используем переменные окружения")
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "dexy_user"),
		Password: getEnv("PGPASSWORD", "dexy_pass"),
		Name:     getEnv("PGDATABASE", "dexy"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	tradeConfig := TradeConfig{
		SessionTimeout: getEnvDuration("TRADE_SESSION_TIMEOUT", 30*time.Minute),
	}

	spawnConfig := SpawnConfig{
		ThresholdMin: getEnvInt("SPAWN_THRESHOLD_MIN", 40),
		ThresholdMax: getEnvInt("SPAWN_THRESHOLD_MAX", 100),
		Throttle:     getEnvDuration("SPAWN_THROTTLE", 10*time.Second),
		MinElapsed:   getEnvDuration("SPAWN_MIN_ELAPSED", 10*time.Minute),
	}

	cfg := &Config{
		BotServiceToken: getEnv("BOT_SERVICE_TOKEN", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		DatabaseURL:     dbURL,
		DatabaseConfig:  dbConfig,
		TradeConfig:     tradeConfig,
		SpawnConfig:     spawnConfig,
		WSListenAddr:    getEnv("WS_LISTEN_ADDR", ":8081"),
		AppEnv:          getEnv("APP_ENV", "production"), // По умолчанию production
	}

	if cfg.BotServiceToken == "" || cfg.JWTSecret == "" {
		log.Fatal("❌ Ошибка: Не заданы обязательные переменные окружения")
	}

	if cfg.SpawnConfig.ThresholdMin > cfg.SpawnConfig.ThresholdMax {
		log.Fatal("❌ Ошибка: SPAWN_THRESHOLD_MIN больше SPAWN_THRESHOLD_MAX")
	}

	return cfg
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("⚠️ Неверное значение %s, используем %d", key, defaultValue)
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения с длительностью
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("⚠️ Неверное значение %s, используем %s", key, defaultValue)
	}
	return defaultValue
}
