package matching

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

type stubResponderRepo struct {
	responders []models.Responder
	err        error
}

func (s *stubResponderRepo) UpsertResponder(ctx context.Context, r *models.Responder) error {
	return nil
}

func (s *stubResponderRepo) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	return nil, nil
}

func (s *stubResponderRepo) ListAvailable(ctx context.Context) ([]models.Responder, error) {
	return s.responders, s.err
}

func responderAt(id string, role models.ResponderRole, lat, lon float64) models.Responder {
	return models.Responder{
		ID:        id,
		Name:      "Responder " + id,
		Role:      role,
		Location:  models.Location{Latitude: lat, Longitude: lon},
		Available: true,
	}
}

var delhi = models.Location{Latitude: 28.6139, Longitude: 77.2090}

func TestFindNearby_SortedByDistance(t *testing.T) {
	repo := &stubResponderRepo{responders: []models.Responder{
		// ~8 km north of the incident.
		responderAt("r_far", models.RoleHospital, 28.6859, 77.2090),
		// ~2 km north.
		responderAt("r_near", models.RoleVolunteer, 28.6319, 77.2090),
	}}
	m := NewMatcher(repo)

	got, err := m.FindNearby(context.Background(), delhi, 10)
	if err != nil {
		t.Fatalf("FindNearby failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "r_near" || got[1].ID != "r_far" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].DistanceKm >= got[1].DistanceKm {
		t.Errorf("distances not ascending: %f, %f", got[0].DistanceKm, got[1].DistanceKm)
	}
	if math.Abs(got[0].DistanceKm-2.0) > 0.05 {
		t.Errorf("near responder distance %f, want ~2.0", got[0].DistanceKm)
	}
	if got[0].ETAMinutes != 4 || got[1].ETAMinutes != 16 {
		t.Errorf("ETAs %d, %d; want 4, 16", got[0].ETAMinutes, got[1].ETAMinutes)
	}
}

func TestFindNearby_StrictRadiusCut(t *testing.T) {
	repo := &stubResponderRepo{responders: []models.Responder{
		responderAt("r_in", models.RoleVolunteer, 28.6319, 77.2090), // ~2 km
		responderAt("r_out", models.RolePolice, 28.7219, 77.2090),   // ~12 km
	}}
	m := NewMatcher(repo)

	got, err := m.FindNearby(context.Background(), delhi, 10)
	if err != nil {
		t.Fatalf("FindNearby failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r_in" {
		t.Errorf("expected only r_in, got %+v", got)
	}
}

func TestFindNearby_TieBrokenByID(t *testing.T) {
	// Same coordinates, so identical distance.
	repo := &stubResponderRepo{responders: []models.Responder{
		responderAt("r_b", models.RoleVolunteer, 28.6319, 77.2090),
		responderAt("r_a", models.RoleVolunteer, 28.6319, 77.2090),
	}}
	m := NewMatcher(repo)

	got, err := m.FindNearby(context.Background(), delhi, 10)
	if err != nil {
		t.Fatalf("FindNearby failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r_a" || got[1].ID != "r_b" {
		t.Errorf("tie not broken by id: %+v", got)
	}
}

func TestFindNearby_Deterministic(t *testing.T) {
	repo := &stubResponderRepo{responders: []models.Responder{
		responderAt("r3", models.RoleVolunteer, 28.6859, 77.2090),
		responderAt("r1", models.RoleVolunteer, 28.6319, 77.2090),
		responderAt("r2", models.RoleVolunteer, 28.6500, 77.2090),
	}}
	m := NewMatcher(repo)

	first, err := m.FindNearby(context.Background(), delhi, 15)
	if err != nil {
		t.Fatalf("FindNearby failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := m.FindNearby(context.Background(), delhi, 15)
		if err != nil {
			t.Fatalf("FindNearby failed: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("result length changed between calls")
		}
		for j := range again {
			if again[j].ID != first[j].ID {
				t.Fatalf("order changed between calls: %s vs %s", again[j].ID, first[j].ID)
			}
		}
	}
}

func TestFindNearby_RoleFilter(t *testing.T) {
	repo := &stubResponderRepo{responders: []models.Responder{
		responderAt("r_vol", models.RoleVolunteer, 28.6319, 77.2090),
		responderAt("r_hosp", models.RoleHospital, 28.6319, 77.2090),
		responderAt("r_pol", models.RolePolice, 28.6319, 77.2090),
	}}
	m := NewMatcher(repo)

	got, err := m.FindNearby(context.Background(), delhi, 10, models.RoleHospital, models.RolePolice)
	if err != nil {
		t.Fatalf("FindNearby failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	for _, c := range got {
		if c.Role == models.RoleVolunteer {
			t.Errorf("volunteer leaked through role filter: %s", c.ID)
		}
	}
}

func TestFindNearby_NoMatchesIsEmptyNotError(t *testing.T) {
	repo := &stubResponderRepo{responders: []models.Responder{
		responderAt("r_mumbai", models.RoleHospital, 19.0760, 72.8777),
	}}
	m := NewMatcher(repo)

	got, err := m.FindNearby(context.Background(), delhi, 10)
	if err != nil {
		t.Fatalf("expected no error for zero matches, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestFindNearby_RepoErrorSurfaces(t *testing.T) {
	repo := &stubResponderRepo{err: errors.New("db gone")}
	m := NewMatcher(repo)

	if _, err := m.FindNearby(context.Background(), delhi, 10); err == nil {
		t.Fatal("expected repository error to surface")
	}
}

func TestHaversine_KnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		tolerance              float64
	}{
		{"same point", 28.6139, 77.2090, 28.6139, 77.2090, 0, 0.001},
		{"delhi to mumbai", 28.6139, 77.2090, 19.0760, 72.8777, 1153, 10},
		{"one degree of latitude", 0, 0, 1, 0, 111.19, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("Haversine = %f, want %f +/- %f", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestEstimateETA(t *testing.T) {
	tests := []struct {
		distanceKm float64
		want       int
	}{
		{0, 0},
		{2.0, 4},
		{2.6, 5},
		{8.0, 16},
	}
	for _, tt := range tests {
		if got := EstimateETA(tt.distanceKm); got != tt.want {
			t.Errorf("EstimateETA(%f) = %d, want %d", tt.distanceKm, got, tt.want)
		}
	}
}

func TestBoundsAround(t *testing.T) {
	b := BoundsAround(28.6139, 77.2090, 10)
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		t.Fatalf("degenerate bounds: %+v", b)
	}
	// The box must contain every point within the radius; longitude
	// degrees shrink with latitude so the lon delta is wider than lat.
	latDelta := b.MaxLat - 28.6139
	lonDelta := b.MaxLon - 77.2090
	if lonDelta <= latDelta {
		t.Errorf("lon delta %f should exceed lat delta %f at this latitude", lonDelta, latDelta)
	}
}
