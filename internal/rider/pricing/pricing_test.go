package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEarnings(t *testing.T) {
	cfg := Config{BaseFee: 80, PerKMRate: 30, MinCharge: 100}

	tests := []struct {
		name     string
		distance float64
		bonus    int64
		penalty  int64
		want     int64
	}{
		{name: "plain", distance: 4.2, want: 206},
		{name: "bonus and penalty", distance: 4.2, bonus: 50, penalty: 20, want: 236},
		{name: "half rounds away from zero", distance: 0.85, bonus: 0, penalty: 0, want: 106},
		{name: "floored at minimum", distance: 0.1, want: 100},
		{name: "penalty below minimum", distance: 2, penalty: 500, want: 100},
		{name: "negative distance treated as zero", distance: -3, bonus: 30, want: 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Earnings(cfg, tt.distance, tt.bonus, tt.penalty)
			assert.Equal(t, tt.want, got.Final)
		})
	}
}

func TestEarningsBreakdown(t *testing.T) {
	got := Earnings(Config{BaseFee: 80, PerKMRate: 30, MinCharge: 0}, 4.2, 10, 5)
	assert.Equal(t, int64(80), got.BaseFee)
	assert.Equal(t, int64(126), got.DistanceFee)
	assert.Equal(t, int64(10), got.Bonus)
	assert.Equal(t, int64(5), got.Penalty)
	assert.Equal(t, int64(211), got.Final)
	assert.InDelta(t, 4.2, got.DistanceKM, 1e-9)
}

func TestEarningsPartsAddUpToFinal(t *testing.T) {
	cfg := Config{BaseFee: 80, PerKMRate: 37, MinCharge: 100}
	for _, distance := range []float64{0.35, 1.05, 2.5, 4.2, 7.77, 12.345} {
		got := Earnings(cfg, distance, 15, 4)
		if got.Final == cfg.MinCharge {
			continue
		}
		assert.Equal(t, got.BaseFee+got.DistanceFee+got.Bonus-got.Penalty, got.Final, "distance %v", distance)
	}
}

func TestHaversineKM(t *testing.T) {
	assert.InDelta(t, 0, HaversineKM(43.2389, 76.8897, 43.2389, 76.8897), 1e-9)
	// Almaty to Astana is roughly 970 km.
	assert.InDelta(t, 970, HaversineKM(43.2389, 76.8897, 51.1694, 71.4491), 15)
}
