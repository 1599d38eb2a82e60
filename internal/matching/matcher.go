package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
	"github.com/karanvs/go-emergency-dispatch/internal/repository"
)

const earthRadiusKm = 6371.0

// kmPerDegreeLat approximates one degree of latitude; used only for the
// bounding-box prefilter, exact distance is always haversine.
const kmPerDegreeLat = 111.0

// Matcher ranks registered responders by great-circle distance from an
// emergency. Results are recomputed fresh on every call; nothing is
// cached between queries.
type Matcher struct {
	repo repository.ResponderRepository
}

func NewMatcher(repo repository.ResponderRepository) *Matcher {
	return &Matcher{repo: repo}
}

// FindNearby returns available responders within radiusKm of loc, sorted
// ascending by distance with ties broken by responder id. Passing no
// roles matches all roles. Zero matches is an empty slice, not an error.
func (m *Matcher) FindNearby(ctx context.Context, loc models.Location, radiusKm float64, roles ...models.ResponderRole) ([]models.ResponderCandidate, error) {
	responders, err := m.repo.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing responders: %w", err)
	}

	roleSet := make(map[models.ResponderRole]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	latDelta := radiusKm / kmPerDegreeLat
	lonDelta := lonDeltaDegrees(loc.Latitude, radiusKm)

	candidates := make([]models.ResponderCandidate, 0, len(responders))
	for _, r := range responders {
		if len(roleSet) > 0 && !roleSet[r.Role] {
			continue
		}
		// Cheap rectangle cut before the exact distance.
		if math.Abs(r.Location.Latitude-loc.Latitude) > latDelta ||
			math.Abs(r.Location.Longitude-loc.Longitude) > lonDelta {
			continue
		}
		d := Haversine(loc.Latitude, loc.Longitude, r.Location.Latitude, r.Location.Longitude)
		if d > radiusKm {
			continue
		}
		candidates = append(candidates, models.ResponderCandidate{
			Responder:  r,
			DistanceKm: d,
			ETAMinutes: EstimateETA(d),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates, nil
}

// BoundsAround converts a radius query into the bounding box used as a
// storage-level prefilter.
func BoundsAround(lat, lon, radiusKm float64) repository.Bounds {
	latDelta := radiusKm / kmPerDegreeLat
	lonDelta := lonDeltaDegrees(lat, radiusKm)
	return repository.Bounds{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// EstimateETA is a deliberate placeholder cost model (2 min per km),
// not a routing-engine estimate.
func EstimateETA(distanceKm float64) int {
	return int(math.Round(distanceKm * 2))
}

func lonDeltaDegrees(latitude, radiusKm float64) float64 {
	cos := math.Cos(radians(latitude))
	if cos < 1e-6 {
		// Near the poles every longitude is within reach.
		return 180
	}
	return radiusKm / (kmPerDegreeLat * cos)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
