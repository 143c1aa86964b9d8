package catalog

import (
	geom "github.com/twpayne/go-geom"

	"landplots/internal/types"
)

// Layers returns the {id, color} pairs the map draws for the selection.
func (c *Catalog) Layers() []types.Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sel := c.selectedLocked()
	layers := make([]types.Layer, 0, len(sel))
	for _, p := range sel {
		layers = append(layers, types.Layer{ID: p.ID, Color: p.Color})
	}
	return layers
}

// Bounds returns the box around every selected vertex, for fitting the map
// view. The second return value is false when there is nothing to frame.
func (c *Catalog) Bounds() (types.Bounds, bool) {
	return BoundsOf(c.Selected())
}

// BoundsOf returns the box around every vertex of parcels.
func BoundsOf(parcels []types.Parcel) (types.Bounds, bool) {
	var flat []float64
	for _, p := range parcels {
		for _, ring := range p.Coordinates {
			for _, pt := range ring {
				flat = append(flat, pt[1], pt[0]) // x=lon, y=lat
			}
		}
	}
	if len(flat) == 0 {
		return types.Bounds{}, false
	}
	b := geom.NewMultiPointFlat(geom.XY, flat).Bounds()
	return types.Bounds{
		MinLat: b.Min(1),
		MinLon: b.Min(0),
		MaxLat: b.Max(1),
		MaxLon: b.Max(0),
	}, true
}

// Containing returns the parcels that contain the point. Rings combine by
// the even-odd rule, so a point inside a hole is outside the parcel while
// separate parts of one parcel each count.
func (c *Catalog) Containing(lat, lon float64) []types.Parcel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.Parcel
	for _, p := range c.parcels {
		b, ok := BoundsOf([]types.Parcel{p})
		if !ok || lat < b.MinLat || lat > b.MaxLat || lon < b.MinLon || lon > b.MaxLon {
			continue // quick bbox reject
		}
		inside := false
		for _, ring := range p.Coordinates {
			if pointInPolygon(lat, lon, ring) {
				inside = !inside
			}
		}
		if inside {
			out = append(out, p)
		}
	}
	return out
}

// pointInPolygon is the ray-casting test. The ring does not need to repeat
// its first point at the end.
func pointInPolygon(lat, lon float64, ring types.Ring) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		yi, xi := ring[i][0], ring[i][1]
		yj, xj := ring[j][0], ring[j][1]
		intersect := ((yi > lat) != (yj > lat)) && (lon < (xj-xi)*(lat-yi)/(yj-yi)+xi)
		if intersect {
			inside = !inside
		}
		j = i
	}
	return inside
}
