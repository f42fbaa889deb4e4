package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LivenessWindow задаёт интервал, в течение которого точка без новых сигналов считается на связи.
const LivenessWindow = 5 * time.Minute

// LocationStatus описывает административный статус точки.
type LocationStatus string

const (
	LocationActive   LocationStatus = "active"
	LocationInactive LocationStatus = "inactive"
)

// Location описывает точку печати.
type Location struct {
	ID                int64          `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Address           string         `json:"address" db:"address"`
	Status            LocationStatus `json:"status" db:"status"`
	HasFotoya         bool           `json:"has_fotoya" db:"has_fotoya"`
	HasColorPrinting  bool           `json:"has_color_printing" db:"has_color_printing"`
	AllowCustomPrices bool           `json:"allow_custom_prices" db:"allow_custom_prices"`
	MaxBWSize         SizeClass      `json:"max_bw_size" db:"max_bw_size"`
	MaxColorSize      SizeClass      `json:"max_color_size" db:"max_color_size"`
	CustomPrices      CustomPrices   `json:"custom_prices,omitempty" db:"custom_prices"`
	IsOpen            bool           `json:"is_open" db:"is_open"`
	LastActivity      *time.Time     `json:"last_activity,omitempty" db:"last_activity"`
	OperatorID        *int64         `json:"operator_id,omitempty" db:"operator_id"`
}

// Alive сообщает, получен ли сигнал активности в пределах окна.
func (l *Location) Alive(now time.Time) bool {
	if l.LastActivity == nil {
		return false
	}
	return now.Sub(*l.LastActivity) <= LivenessWindow
}

// EffectivelyOpen сообщает, открыта ли точка с учётом давности сигнала активности.
func (l *Location) EffectivelyOpen(now time.Time) bool {
	return l.Status == LocationActive && l.IsOpen && l.Alive(now)
}

// PriceTable содержит глобальную таблицу цен по ключу формата и качества.
type PriceTable map[string]decimal.Decimal

// CustomPrices содержит индивидуальные цены точки по ключу формата и качества.
// Ключ со значением null при разборе JSON отбрасывается и не перекрывает глобальную цену.
type CustomPrices map[string]decimal.Decimal

// UnmarshalJSON разбирает объект цен, пропуская значения null.
func (p *CustomPrices) UnmarshalJSON(b []byte) error {
	var raw map[string]*decimal.Decimal
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	res := make(CustomPrices, len(raw))
	for k, v := range raw {
		if v != nil {
			res[k] = *v
		}
	}
	*p = res
	return nil
}
