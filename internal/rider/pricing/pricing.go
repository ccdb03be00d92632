package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

const earthRadiusKM = 6371.0

// Config holds the fee formula constants in whole currency units.
type Config struct {
	BaseFee   int64
	PerKMRate int64
	MinCharge int64
}

// Breakdown is the itemised rider fee for one delivery.
type Breakdown struct {
	DistanceKM  float64
	BaseFee     int64
	DistanceFee int64
	Bonus       int64
	Penalty     int64
	Final       int64
}

// Earnings computes round(base + perKm*distance + bonus - penalty), floored at
// the minimum charge. Only the distance fee is fractional, so it is rounded
// (half away from zero) on its own and Final is the sum of the parts unless
// the minimum charge applies.
func Earnings(cfg Config, distanceKM float64, bonus, penalty int64) Breakdown {
	if distanceKM < 0 || math.IsNaN(distanceKM) {
		distanceKM = 0
	}
	dist := decimal.NewFromFloat(distanceKM)
	distanceFee := decimal.NewFromInt(cfg.PerKMRate).Mul(dist).Round(0).IntPart()

	final := cfg.BaseFee + distanceFee + bonus - penalty
	if final < cfg.MinCharge {
		final = cfg.MinCharge
	}

	return Breakdown{
		DistanceKM:  dist.Round(3).InexactFloat64(),
		BaseFee:     cfg.BaseFee,
		DistanceFee: distanceFee,
		Bonus:       bonus,
		Penalty:     penalty,
		Final:       final,
	}
}

// HaversineKM returns the great-circle distance between two points in kilometres.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}
