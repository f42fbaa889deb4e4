package accrual

import (
	"testing"

	"github.com/mmeshcher/printpoints/internal/model"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		lifetime int64
		want     model.Tier
	}{
		{0, model.TierBronze},
		{499, model.TierBronze},
		{500, model.TierSilver},
		{1999, model.TierSilver},
		{2000, model.TierGold},
	}
	for _, tt := range tests {
		if got := TierFor(tt.lifetime); got != tt.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tt.lifetime, got, tt.want)
		}
	}
}

func TestCredit(t *testing.T) {
	acc := model.PointsAccount{CustomerID: 7, CurrentPoints: 450, LifetimePoints: 480}

	got := Credit(acc, 72)
	if got.CurrentPoints != 522 || got.LifetimePoints != 552 {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.TierLevel != model.TierSilver {
		t.Fatalf("tier = %s, want silver", got.TierLevel)
	}
	if acc.CurrentPoints != 450 {
		t.Fatalf("Credit must not mutate its argument")
	}
}

func TestCredit_IgnoresNonPositive(t *testing.T) {
	acc := model.PointsAccount{CurrentPoints: 10, LifetimePoints: 10}

	got := Credit(acc, 0)
	if got.CurrentPoints != 10 || got.LifetimePoints != 10 {
		t.Fatalf("zero credit changed account: %+v", got)
	}
	if got.TierLevel != model.TierBronze {
		t.Fatalf("tier = %q, want bronze", got.TierLevel)
	}
}
