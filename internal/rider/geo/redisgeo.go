package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/redis/go-redis/v9"
)

const onlineSet = "online"

// NearbyRider is a rider returned from a GEO radius query.
type NearbyRider struct {
	ID   string  `json:"id"`
	Dist float64 `json:"dist_m"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
}

// Logger is the minimal logging contract of the locator.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// RiderLocator keeps online riders in a per-city Redis GEO set.
type RiderLocator struct {
	rdb    *redis.Client
	logger Logger
}

// NewRiderLocator creates a new locator.
func NewRiderLocator(rdb *redis.Client, logger Logger) *RiderLocator {
	return &RiderLocator{rdb: rdb, logger: logger}
}

func redisKey(city string) string {
	return fmt.Sprintf("riders:%s:%s", strings.ToLower(strings.TrimSpace(city)), onlineSet)
}

func memberName(riderID string) string {
	return "rider:" + riderID
}

func parseRiderMember(member string) (string, error) {
	id, ok := strings.CutPrefix(member, "rider:")
	if !ok || id == "" {
		return "", fmt.Errorf("invalid member %q", member)
	}
	return id, nil
}

func validCoords(lon, lat float64) error {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("invalid coords lon=%.8f lat=%.8f", lon, lat)
	}
	if math.Abs(lon) < 1e-4 && math.Abs(lat) < 1e-4 {
		return fmt.Errorf("near-zero coords lon=%.8f lat=%.8f", lon, lat)
	}
	return nil
}

// UpdateRider validates input and stores the rider position.
func (l *RiderLocator) UpdateRider(ctx context.Context, riderID string, lon, lat float64, city string) error {
	if strings.TrimSpace(city) == "" {
		return fmt.Errorf("UpdateRider: empty city")
	}
	if err := validCoords(lon, lat); err != nil {
		return fmt.Errorf("UpdateRider: %w", err)
	}
	loc := &redis.GeoLocation{Name: memberName(riderID), Longitude: lon, Latitude: lat}
	if err := l.rdb.GeoAdd(ctx, redisKey(city), loc).Err(); err != nil {
		return err
	}
	l.logger.Infof("rider geo: GeoAdd OK rider=%s city=%s lon=%.6f lat=%.6f", riderID, city, lon, lat)
	return nil
}

// GoOffline removes the rider from the city set.
func (l *RiderLocator) GoOffline(ctx context.Context, riderID, city string) error {
	return l.rdb.ZRem(ctx, redisKey(city), memberName(riderID)).Err()
}

// Nearby returns online riders within radius sorted by distance.
func (l *RiderLocator) Nearby(ctx context.Context, lon, lat, radiusMeters float64, limit int, city string) ([]NearbyRider, error) {
	res, err := l.rdb.GeoSearchLocation(ctx, redisKey(city), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	riders := make([]NearbyRider, 0, len(res))
	for _, item := range res {
		id, err := parseRiderMember(item.Name)
		if err != nil {
			l.logger.Errorf("rider geo: skip invalid member %s: %v", item.Name, err)
			continue
		}
		riders = append(riders, NearbyRider{ID: id, Dist: item.Dist, Lon: item.Longitude, Lat: item.Latitude})
	}
	return riders, nil
}
