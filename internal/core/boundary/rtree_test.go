package boundary

import (
	"testing"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// gridRegions builds an nLat x nLon grid of overlapping envelopes. Cells are
// spaced one degree apart but sized 1.5 degrees, so every query near a cell
// corner has several true candidates.
func gridRegions(nLat, nLon int) []Region {
	regions := make([]Region, 0, nLat*nLon)
	for i := 0; i < nLat; i++ {
		for j := 0; j < nLon; j++ {
			env := domain.Envelope{
				MinLat: float64(i), MaxLat: float64(i) + 1.5,
				MinLon: float64(j), MaxLon: float64(j) + 1.5,
			}
			regions = append(regions, Region{Index: len(regions), Env: env})
		}
	}
	return regions
}

func linearQuery(regions []Region, env domain.Envelope) []int {
	var out []int
	for i, r := range regions {
		if r.Env.Intersects(env) {
			out = append(out, i)
		}
	}
	return out
}

func TestSpatialIndex_MatchesLinearScan(t *testing.T) {
	regions := gridRegions(9, 11) // enough entries for multiple leaves and a parent level
	ix := newSpatialIndex(regions)

	queries := []domain.Envelope{
		{MinLat: 0, MinLon: 0, MaxLat: 0.5, MaxLon: 0.5},
		{MinLat: 3.2, MinLon: 4.1, MaxLat: 5.9, MaxLon: 7.3},
		{MinLat: -10, MinLon: -10, MaxLat: -1, MaxLon: -1},
		{MinLat: -5, MinLon: -5, MaxLat: 25, MaxLon: 25},
		{MinLat: 4.6, MinLon: 4.6, MaxLat: 4.6, MaxLon: 4.6},
		{MinLat: 8.9, MinLon: 10.9, MaxLat: 12, MaxLon: 14},
	}
	for qi, q := range queries {
		got := ix.Query(q)
		want := linearQuery(regions, q)
		if len(got) != len(want) {
			t.Fatalf("query %d: got %d candidates, want %d", qi, len(got), len(want))
		}
		for k := range got {
			if got[k] != want[k] {
				t.Fatalf("query %d: candidate %d is region %d, want %d", qi, k, got[k], want[k])
			}
		}
	}
}

func TestSpatialIndex_QueryPoint(t *testing.T) {
	regions := gridRegions(4, 4)
	ix := newSpatialIndex(regions)

	// A point in the overlap strip of four neighboring cells.
	p := domain.GeoPoint{Lat: 1.25, Lon: 1.25}
	got := ix.QueryPoint(p)
	want := linearQuery(regions, domain.Envelope{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon})

	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for k := range got {
		if got[k] != want[k] {
			t.Errorf("candidate %d is region %d, want %d", k, got[k], want[k])
		}
	}
	if len(got) < 2 {
		t.Errorf("expected overlapping envelopes to produce several candidates, got %d", len(got))
	}
}

func TestSpatialIndex_Empty(t *testing.T) {
	ix := newSpatialIndex(nil)
	if got := ix.Query(domain.Envelope{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}); len(got) != 0 {
		t.Errorf("expected no candidates from empty index, got %v", got)
	}
	if got := ix.QueryPoint(domain.GeoPoint{Lat: 0, Lon: 0}); len(got) != 0 {
		t.Errorf("expected no candidates from empty index, got %v", got)
	}
}

func TestSpatialIndex_SingleEntry(t *testing.T) {
	regions := []Region{{Index: 0, Env: domain.Envelope{MinLat: 10, MinLon: 20, MaxLat: 11, MaxLon: 21}}}
	ix := newSpatialIndex(regions)

	if got := ix.QueryPoint(domain.GeoPoint{Lat: 10.5, Lon: 20.5}); len(got) != 1 || got[0] != 0 {
		t.Errorf("expected [0], got %v", got)
	}
	if got := ix.QueryPoint(domain.GeoPoint{Lat: 0, Lon: 0}); len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}
