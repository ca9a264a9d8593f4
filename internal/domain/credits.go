package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Credits struct {
	Balance   decimal.Decimal
	FetchedAt time.Time
}

func (c Credits) IsExhausted() bool {
	return !c.Balance.IsPositive()
}
