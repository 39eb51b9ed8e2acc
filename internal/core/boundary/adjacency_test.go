package boundary_test

import (
	"testing"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/boundary"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

func TestDataset_TrueAdjacent_SharedBorder(t *testing.T) {
	ds := mustCompile(t, twoZoneRecords())

	if !ds.TrueAdjacent(0, 1) || !ds.TrueAdjacent(1, 0) {
		t.Error("expected regions sharing a border to be true-adjacent both ways")
	}
	if got := ds.NeighborRegions(0); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected region 0 neighbors [1], got %v", got)
	}
	if got := ds.NeighborZones("America/Denver"); len(got) != 1 || got[0] != "America/Chicago" {
		t.Errorf("expected Denver neighbor zones [America/Chicago], got %v", got)
	}
}

func TestDataset_TrueAdjacent_StaggeredVertices(t *testing.T) {
	// The east side samples its border at lat 40 as well; vertex chains on
	// the two sides differ but the boundaries still coincide.
	east := domain.Ring{
		{Lat: 39, Lon: -104},
		{Lat: 39, Lon: -102},
		{Lat: 41, Lon: -102},
		{Lat: 41, Lon: -104},
		{Lat: 40, Lon: -104},
	}
	ds := mustCompile(t, []domain.BoundaryRecord{
		{ZoneID: "America/Denver", Polygons: []domain.PolygonRings{{rect(39, -106, 41, -104)}}},
		{ZoneID: "America/Chicago", Polygons: []domain.PolygonRings{{east}}},
	})

	if !ds.TrueAdjacent(0, 1) {
		t.Error("expected staggered vertex chains on a shared border to be true-adjacent")
	}
}

func TestDataset_SameZoneNotAdjacent(t *testing.T) {
	ds := mustCompile(t, []domain.BoundaryRecord{
		{ZoneID: "America/Denver", Polygons: []domain.PolygonRings{
			{rect(39, -106, 41, -104)},
			{rect(39, -104, 41, -102)},
		}},
	})

	if ds.TrueAdjacent(0, 1) {
		t.Error("expected touching polygons of the same zone not to be true-adjacent")
	}
	if pairs := ds.Info().AdjacencyPairs; pairs != 0 {
		t.Errorf("expected 0 adjacency pairs, got %d", pairs)
	}
}

func TestDataset_Adjacency_GapWithinTolerance(t *testing.T) {
	// A 0.01 degree digitization gap is well under the default tolerance.
	ds := mustCompile(t, []domain.BoundaryRecord{
		{ZoneID: "America/Denver", Polygons: []domain.PolygonRings{{rect(39, -106, 41, -104)}}},
		{ZoneID: "America/Chicago", Polygons: []domain.PolygonRings{{rect(39, -103.99, 41, -102)}}},
	})

	if !ds.TrueAdjacent(0, 1) {
		t.Error("expected near-touching borders within tolerance to be true-adjacent")
	}
}

func TestDataset_Adjacency_GapBeyondTolerance(t *testing.T) {
	records := []domain.BoundaryRecord{
		{ZoneID: "America/Denver", Polygons: []domain.PolygonRings{{rect(39, -106, 41, -104)}}},
		{ZoneID: "America/Chicago", Polygons: []domain.PolygonRings{{rect(39, -103.8, 41, -102)}}},
	}

	ds := mustCompile(t, records)
	if ds.TrueAdjacent(0, 1) {
		t.Error("expected 0.2 degree gap to exceed the default tolerance")
	}

	wide, err := boundary.Compile(records, "v1", boundary.CompileOptions{AdjacencyToleranceDeg: 0.3})
	if err != nil {
		t.Fatalf("compile dataset: %v", err)
	}
	if !wide.TrueAdjacent(0, 1) {
		t.Error("expected 0.2 degree gap to be within a 0.3 degree tolerance")
	}
}

func TestDataset_Adjacency_Isolated(t *testing.T) {
	ds := mustCompile(t, []domain.BoundaryRecord{
		{ZoneID: "Pacific/Honolulu", Polygons: []domain.PolygonRings{{rect(19, -158, 21, -156)}}},
		{ZoneID: "America/Anchorage", Polygons: []domain.PolygonRings{{rect(58, -152, 62, -148)}}},
	})

	if got := ds.NeighborRegions(0); len(got) != 0 {
		t.Errorf("expected no neighbors for isolated region, got %v", got)
	}
	if got := ds.NeighborZones("Pacific/Honolulu"); len(got) != 0 {
		t.Errorf("expected no neighbor zones, got %v", got)
	}
	if ds.TrueAdjacent(0, 99) {
		t.Error("expected out-of-range region not to be adjacent")
	}
}
