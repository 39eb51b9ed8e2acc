package boundary

import (
	"math"
	"sort"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// indexFill is the node capacity of the spatial index.
const indexFill = 16

// SpatialIndex is a bounding-box tree over region envelopes, bulk-loaded
// with sort-tile-recursive packing. It is built once per dataset compile and
// read-only afterwards, so lookups need no locking. Queries return candidate
// region indexes in ascending order; callers refine with exact geometry.
type SpatialIndex struct {
	root *indexNode
}

type indexEntry struct {
	env domain.Envelope
	idx int
}

type indexNode struct {
	env      domain.Envelope
	children []*indexNode
	entries  []indexEntry
}

func newSpatialIndex(regions []Region) *SpatialIndex {
	if len(regions) == 0 {
		return &SpatialIndex{}
	}

	entries := make([]indexEntry, len(regions))
	for i, r := range regions {
		entries[i] = indexEntry{env: r.Env, idx: i}
	}

	nodes := packLeaves(entries)
	for len(nodes) > 1 {
		nodes = packNodes(nodes)
	}
	return &SpatialIndex{root: nodes[0]}
}

// packLeaves tiles the entries into vertical slices by envelope center
// longitude, orders each slice by center latitude, and packs runs of
// indexFill entries into leaves.
func packLeaves(entries []indexEntry) []*indexNode {
	sorted := make([]indexEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return centerLon(sorted[i].env) < centerLon(sorted[j].env)
	})

	leafCount := (len(sorted) + indexFill - 1) / indexFill
	sliceSize := int(math.Ceil(math.Sqrt(float64(leafCount)))) * indexFill

	var leaves []*indexNode
	for start := 0; start < len(sorted); start += sliceSize {
		end := start + sliceSize
		if end > len(sorted) {
			end = len(sorted)
		}
		slice := sorted[start:end]
		sort.SliceStable(slice, func(i, j int) bool {
			return centerLat(slice[i].env) < centerLat(slice[j].env)
		})

		for off := 0; off < len(slice); off += indexFill {
			stop := off + indexFill
			if stop > len(slice) {
				stop = len(slice)
			}
			leaf := &indexNode{entries: slice[off:stop]}
			leaf.env = leaf.entries[0].env
			for _, e := range leaf.entries[1:] {
				leaf.env = unionEnvelope(leaf.env, e.env)
			}
			leaves = append(leaves, leaf)
		}
	}
	return leaves
}

// packNodes applies the same tiling one level up.
func packNodes(nodes []*indexNode) []*indexNode {
	sorted := make([]*indexNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return centerLon(sorted[i].env) < centerLon(sorted[j].env)
	})

	parentCount := (len(sorted) + indexFill - 1) / indexFill
	sliceSize := int(math.Ceil(math.Sqrt(float64(parentCount)))) * indexFill

	var parents []*indexNode
	for start := 0; start < len(sorted); start += sliceSize {
		end := start + sliceSize
		if end > len(sorted) {
			end = len(sorted)
		}
		slice := sorted[start:end]
		sort.SliceStable(slice, func(i, j int) bool {
			return centerLat(slice[i].env) < centerLat(slice[j].env)
		})

		for off := 0; off < len(slice); off += indexFill {
			stop := off + indexFill
			if stop > len(slice) {
				stop = len(slice)
			}
			parent := &indexNode{children: slice[off:stop]}
			parent.env = parent.children[0].env
			for _, c := range parent.children[1:] {
				parent.env = unionEnvelope(parent.env, c.env)
			}
			parents = append(parents, parent)
		}
	}
	return parents
}

// Query returns the indexes of all regions whose envelope intersects env,
// in ascending order.
func (ix *SpatialIndex) Query(env domain.Envelope) []int {
	if ix.root == nil {
		return nil
	}
	var out []int
	ix.root.query(env, &out)
	sort.Ints(out)
	return out
}

// QueryPoint returns the indexes of all regions whose envelope contains p.
func (ix *SpatialIndex) QueryPoint(p domain.GeoPoint) []int {
	return ix.Query(domain.Envelope{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon})
}

func (n *indexNode) query(env domain.Envelope, out *[]int) {
	if !n.env.Intersects(env) {
		return
	}
	for _, e := range n.entries {
		if e.env.Intersects(env) {
			*out = append(*out, e.idx)
		}
	}
	for _, c := range n.children {
		c.query(env, out)
	}
}

func unionEnvelope(a, b domain.Envelope) domain.Envelope {
	if b.MinLat < a.MinLat {
		a.MinLat = b.MinLat
	}
	if b.MinLon < a.MinLon {
		a.MinLon = b.MinLon
	}
	if b.MaxLat > a.MaxLat {
		a.MaxLat = b.MaxLat
	}
	if b.MaxLon > a.MaxLon {
		a.MaxLon = b.MaxLon
	}
	return a
}

func centerLat(e domain.Envelope) float64 { return (e.MinLat + e.MaxLat) / 2 }

func centerLon(e domain.Envelope) float64 { return (e.MinLon + e.MaxLon) / 2 }
