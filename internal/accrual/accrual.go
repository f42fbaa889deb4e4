// Package accrual содержит правила начисления баллов лояльности за выданные заказы.
package accrual

import "github.com/mmeshcher/printpoints/internal/model"

const (
	silverThreshold int64 = 500
	goldThreshold   int64 = 2000
)

// TierFor возвращает уровень программы по сумме баллов за всё время.
func TierFor(lifetime int64) model.Tier {
	switch {
	case lifetime >= goldThreshold:
		return model.TierGold
	case lifetime >= silverThreshold:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}

// Credit начисляет баллы на счёт и пересчитывает уровень.
// Отрицательные и нулевые начисления счёт не меняют.
func Credit(acc model.PointsAccount, points int64) model.PointsAccount {
	if points <= 0 {
		if acc.TierLevel == "" {
			acc.TierLevel = TierFor(acc.LifetimePoints)
		}
		return acc
	}
	acc.CurrentPoints += points
	acc.LifetimePoints += points
	acc.TierLevel = TierFor(acc.LifetimePoints)
	return acc
}
