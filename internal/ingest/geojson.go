package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"landplots/internal/types"
)

// featureCollection is decoded loosely so that one broken feature does not
// take the whole file down with it.
type featureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type feature struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

// parseGeoJSON keeps the Polygon features of a FeatureCollection. Any other
// top-level type yields no parcels; other geometry types are dropped and
// counted. Malformed top-level JSON is returned as an error.
func (p *Parser) parseGeoJSON(content []byte, fileName string, source types.Source) (Result, error) {
	var res Result
	var fc featureCollection
	if err := json.Unmarshal(content, &fc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON that is not an object carries no features.
			return res, nil
		}
		return res, err
	}
	if fc.Type != "FeatureCollection" {
		p.log.Debug("ingest_geojson_not_collection", zap.String("file", fileName), zap.String("type", fc.Type))
		return res, nil
	}

	batch := p.batchID()
	for index, raw := range fc.Features {
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			res.skip(p.log, fmt.Sprintf("feature %d: %v", index, err), zap.Int("feature", index))
			continue
		}
		if f.Geometry == nil || f.Geometry.Type != "Polygon" {
			gt := "null"
			if f.Geometry != nil {
				gt = f.Geometry.Type
			}
			res.skip(p.log, fmt.Sprintf("feature %d: geometry %s is not a Polygon", index, gt),
				zap.Int("feature", index), zap.String("geometry", gt))
			continue
		}
		g, err := f.Geometry.Decode()
		if err != nil {
			res.skip(p.log, fmt.Sprintf("feature %d: %v", index, err), zap.Int("feature", index))
			continue
		}
		poly, ok := g.(*geom.Polygon)
		if !ok {
			res.skip(p.log, fmt.Sprintf("feature %d: geometry is not a Polygon", index), zap.Int("feature", index))
			continue
		}

		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		res.Parcels = append(res.Parcels, types.Parcel{
			ID:              p.newID(source, batch, index),
			CadastralNumber: orDefault(firstString(props, cadastralKeys...), fmt.Sprintf("%s_%d", fileName, index)),
			Address:         orDefault(firstString(props, addressKeys...), defaultAddress),
			Area:            firstAmount(props, areaKeys...),
			Purpose:         orDefault(firstString(props, purposeKeys...), defaultPurpose),
			Coordinates:     polygonRings(poly),
			Color:           p.color(),
			FileName:        fileName,
			Value:           firstAmount(props, valueKeys...),
			RentIncome:      firstAmount(props, rentKeys...),
		})
	}
	return res, nil
}

// polygonRings converts GeoJSON [lon, lat] positions into [lat, lon] rings.
func polygonRings(poly *geom.Polygon) []types.Ring {
	coords := poly.Coords()
	rings := make([]types.Ring, 0, len(coords))
	for _, c := range coords {
		ring := make(types.Ring, len(c))
		for i, pt := range c {
			ring[i] = [2]float64{pt.Y(), pt.X()}
		}
		rings = append(rings, ring)
	}
	return rings
}
