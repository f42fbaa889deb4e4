// Package pricing вычисляет цену печати с учётом индивидуальных цен точки.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/printpoints/internal/model"
)

// Key возвращает ключ таблицы цен для формата и качества.
func Key(size model.SizeID, quality model.Quality) string {
	if size.IsPhoto() {
		return "foto_" + string(size)
	}
	if quality == model.QualityStandard || quality == "" {
		return string(size) + "_eco"
	}
	return string(size) + "_high"
}

// UnitPrice возвращает цену одной страницы: индивидуальную цену точки, если она разрешена
// и задана, иначе цену из глобальной таблицы. Отсутствующий ключ даёт ноль.
func UnitPrice(size model.SizeID, quality model.Quality, loc *model.Location, table model.PriceTable) decimal.Decimal {
	price, _ := lookup(Key(size, quality), loc, table)
	return price
}

func lookup(key string, loc *model.Location, table model.PriceTable) (decimal.Decimal, bool) {
	if loc != nil && loc.AllowCustomPrices {
		if v, ok := loc.CustomPrices[key]; ok {
			return v, true
		}
	}
	v, ok := table[key]
	return v, ok
}

// Quote содержит расчёт стоимости заказа.
type Quote struct {
	Key    string          `json:"key"`
	Unit   decimal.Decimal `json:"unit_price"`
	Total  decimal.Decimal `json:"total_amount"`
	Points int64           `json:"points_earned"`
	// Missing выставляется, если цены нет ни у точки, ни в глобальной таблице.
	Missing bool `json:"-"`
}

// Calculate рассчитывает стоимость заказа: цена × число файлов × копии.
func Calculate(spec model.PrintSpecification, fileCount int, loc *model.Location, table model.PriceTable) Quote {
	key := Key(spec.Size, spec.Quality)
	unit, ok := lookup(key, loc, table)
	total := unit.Mul(decimal.NewFromInt(int64(fileCount))).Mul(decimal.NewFromInt(int64(spec.Copies)))
	return Quote{
		Key:     key,
		Unit:    unit,
		Total:   total,
		Points:  PointsFor(total),
		Missing: !ok,
	}
}

var pointsRate = decimal.NewFromFloat(0.10)

// PointsFor возвращает число баллов за сумму заказа: floor(total × 0.10).
func PointsFor(total decimal.Decimal) int64 {
	if total.IsNegative() {
		return 0
	}
	return total.Mul(pointsRate).Floor().IntPart()
}
