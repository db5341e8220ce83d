package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTService отвечает за создание и валидацию JWT токенов
type JWTService struct {
	secretKey string
}

// NewJWTService создаёт новый экземпляр JWTService
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{secretKey: secretKey}
}

// GenerateToken создаёт JWT токен для игрока
func (s *JWTService) GenerateToken(playerID uuid.UUID, isAdmin bool) (string, error) {
	claims := jwt.MapClaims{
		"player_id": playerID.String(),
		"is_admin":  isAdmin,
		"exp":       time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// ValidateToken проверяет JWT токен
func (s *JWTService) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
}

// ExtractClaims извлекает ID игрока и признак администратора из токена
func (s *JWTService) ExtractClaims(tokenString string) (string, bool, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", false, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", false, fmt.Errorf("невалидный токен")
	}

	playerID, ok := claims["player_id"].(string)
	if !ok || playerID == "" {
		return "", false, fmt.Errorf("токен не содержит player_id")
	}

	isAdmin, _ := claims["is_admin"].(bool)
	return playerID, isAdmin, nil
}
