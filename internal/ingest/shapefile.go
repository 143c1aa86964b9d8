package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"landplots/internal/types"
)

// ParseShapefile reads the polygon layer at path (the sibling .dbf supplies
// attributes). Each polygon part becomes one ring of [lat, lon] points;
// non-polygon shapes are skipped.
func (p *Parser) ParseShapefile(path string, source types.Source) (Result, error) {
	res, err := p.readShapefile(path, filepath.Base(path), source)
	res.Format = FormatShapefile
	for i := range res.Parcels {
		res.Parcels[i].Source = source
	}
	return res, err
}

// parseShapefileContent stages uploaded bytes on disk, since the shapefile
// reader works on paths. A .zip bundle is unpacked and its first .shp used.
func (p *Parser) parseShapefileContent(content []byte, fileName string, source types.Source) (Result, error) {
	dir, err := os.MkdirTemp("", "landplots-shp-")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(dir)

	var shpPath string
	if strings.Contains(strings.ToLower(fileName), ".zip") {
		shpPath, err = unzipShapefile(content, dir)
		if err != nil {
			return Result{}, err
		}
	} else {
		shpPath = filepath.Join(dir, "upload.shp")
		if err := os.WriteFile(shpPath, content, 0o600); err != nil {
			return Result{}, err
		}
	}
	return p.readShapefile(shpPath, fileName, source)
}

func (p *Parser) readShapefile(path, fileName string, source types.Source) (Result, error) {
	var res Result
	r, err := shp.Open(path)
	if err != nil {
		return res, fmt.Errorf("open shapefile %s: %w", fileName, err)
	}
	defer r.Close()

	fields := r.Fields()
	batch := p.batchID()
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			res.skip(p.log, fmt.Sprintf("shape %d: not a polygon", idx), zap.Int("shape", idx))
			continue
		}

		numParts := len(poly.Parts)
		rings := make([]types.Ring, numParts)
		for partIdx := 0; partIdx < numParts; partIdx++ {
			start := poly.Parts[partIdx]
			end := int32(len(poly.Points))
			if partIdx+1 < numParts {
				end = poly.Parts[partIdx+1]
			}
			ring := make(types.Ring, 0, int(end-start))
			for i := start; i < end; i++ {
				pt := poly.Points[i]
				ring = append(ring, [2]float64{pt.Y, pt.X}) // lat, lon
			}
			rings[partIdx] = ring
		}

		// DBF field names are usually upper case; index both spellings.
		attrs := make(map[string]any, len(fields)*2)
		for i, f := range fields {
			name := f.String()
			// DBF values are padded with NULs as well as spaces
			v := strings.Trim(r.ReadAttribute(idx, i), "\x00 ")
			attrs[name] = v
			attrs[strings.ToLower(name)] = v
		}

		res.Parcels = append(res.Parcels, types.Parcel{
			ID:              p.newID(source, batch, idx),
			CadastralNumber: orDefault(firstString(attrs, append(cadastralKeys, "cadnum", "cad_num")...), fmt.Sprintf("%s_%d", fileName, idx)),
			Address:         orDefault(firstString(attrs, addressKeys...), defaultAddress),
			Area:            firstAmount(attrs, areaKeys...),
			Purpose:         orDefault(firstString(attrs, purposeKeys...), defaultPurpose),
			Coordinates:     rings,
			Color:           p.color(),
			FileName:        fileName,
			Value:           firstAmount(attrs, valueKeys...),
			RentIncome:      firstAmount(attrs, append(rentKeys, "rent")...),
		})
	}
	if err := r.Err(); err != nil {
		return res, fmt.Errorf("read shapefile %s: %w", fileName, err)
	}
	return res, nil
}

// unzipShapefile extracts the shapefile members of a zip archive into dir,
// flattening paths, and returns the path of the first .shp.
func unzipShapefile(content []byte, dir string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("read zip: %w", err)
	}
	var shpPath string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		ext := strings.ToLower(filepath.Ext(name))
		switch ext {
		case ".shp", ".shx", ".dbf", ".prj", ".cpg":
		default:
			continue
		}
		dst := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+ext)
		if err := extract(f, dst); err != nil {
			return "", err
		}
		if ext == ".shp" && shpPath == "" {
			shpPath = dst
		}
	}
	if shpPath == "" {
		return "", errors.New("zip archive contains no .shp file")
	}
	return shpPath, nil
}

func extract(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
