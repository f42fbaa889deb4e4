package model

// Tier описывает уровень программы лояльности.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// PointsAccount содержит баланс баллов клиента.
type PointsAccount struct {
	CustomerID     int64 `json:"-" db:"customer_id"`
	CurrentPoints  int64 `json:"current_points" db:"current_points"`
	LifetimePoints int64 `json:"lifetime_points" db:"lifetime_points"`
	TierLevel      Tier  `json:"tier_level" db:"tier_level"`
}
