package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseAmount разбирает денежную сумму из текстового представления
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка разбора суммы %q: %w", raw, err)
	}
	return amount, nil
}
