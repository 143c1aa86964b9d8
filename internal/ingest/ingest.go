// Package ingest turns raw CSV, GeoJSON, workbook and shapefile content
// into parcels.
package ingest

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"landplots/internal/finance"
	"landplots/internal/logging"
	"landplots/internal/metrics"
	"landplots/internal/types"
)

// Format is the detected input format.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
	FormatXLSX      Format = "xlsx"
	FormatUnknown   Format = "unknown"
)

// Palette is the set of colors handed out to freshly parsed parcels.
var Palette = []string{"#407E6D", "#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FECA57", "#FF9FF3", "#54A0FF"}

// Property aliases, first match wins.
var (
	cadastralKeys = []string{"cadastralNumber", "cadastral_number", "cadastralnumber"}
	addressKeys   = []string{"address", "ADDRESS"}
	areaKeys      = []string{"area", "AREA"}
	purposeKeys   = []string{"purpose", "PURPOSE"}
	valueKeys     = []string{"value", "вартість"}
	rentKeys      = []string{"rentIncome", "rent_income", "rentincome", "орендна_плата"}
)

const (
	defaultAddress = "Адреса не вказана"
	defaultPurpose = "Не визначено"
)

// Result is the outcome of parsing one file.
type Result struct {
	Format   Format
	Parcels  []types.Parcel
	Skipped  int
	Warnings []string
}

// Parser converts file content into parcels. The zero value is not usable;
// call New.
type Parser struct {
	log     *zap.Logger
	batchID func() string
	color   func() string
}

// Option customizes a Parser.
type Option func(*Parser)

// WithBatchID replaces the random batch id generator.
func WithBatchID(fn func() string) Option { return func(p *Parser) { p.batchID = fn } }

// WithColor replaces the random palette pick.
func WithColor(fn func() string) Option { return func(p *Parser) { p.color = fn } }

// New returns a Parser logging through log (nil for silent).
func New(log *zap.Logger, opts ...Option) *Parser {
	p := &Parser{
		log:     logging.OrNop(log).Named("ingest"),
		batchID: func() string { return uuid.NewString()[:8] },
		color:   func() string { return Palette[rand.Intn(len(Palette))] },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Detect sniffs the format from the file name. Sheet data is always CSV.
func Detect(fileName string, source types.Source) Format {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, ".csv") || source == types.SourceGoogleSheets:
		return FormatCSV
	case strings.Contains(name, ".xlsx"):
		return FormatXLSX
	case strings.Contains(name, ".geojson") || strings.Contains(name, ".json"):
		return FormatGeoJSON
	case strings.Contains(name, ".shp") || strings.Contains(name, ".zip"):
		return FormatShapefile
	}
	return FormatUnknown
}

// Process parses content according to the format detected from fileName and
// tags every parcel with source. An error means the file as a whole could
// not be read; individual bad rows or features are only counted in Skipped.
func (p *Parser) Process(content []byte, fileName string, source types.Source) (Result, error) {
	format := Detect(fileName, source)
	var (
		res Result
		err error
	)
	switch format {
	case FormatCSV:
		res = p.parseCSV(string(content), source)
	case FormatGeoJSON:
		res, err = p.parseGeoJSON(content, fileName, source)
	case FormatShapefile:
		res, err = p.parseShapefileContent(content, fileName, source)
	case FormatXLSX:
		res, err = p.parseXLSX(content, source)
	default:
		p.log.Debug("ingest_unknown_format", zap.String("file", fileName))
	}
	res.Format = format
	if err != nil {
		metrics.IngestFailTotal.WithLabelValues(string(format)).Inc()
		p.log.Warn("ingest_file_error", zap.String("file", fileName), zap.Error(err))
		return res, err
	}
	for i := range res.Parcels {
		res.Parcels[i].Source = source
		if res.Parcels[i].FileName == "" && format != FormatCSV {
			res.Parcels[i].FileName = fileName
		}
	}
	metrics.ParcelsParsedTotal.WithLabelValues(string(format)).Add(float64(len(res.Parcels)))
	metrics.RecordsSkippedTotal.WithLabelValues(string(format)).Add(float64(res.Skipped))
	p.log.Debug("ingest_file_ok",
		zap.String("file", fileName),
		zap.String("format", string(format)),
		zap.Int("parcels", len(res.Parcels)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (p *Parser) newID(source types.Source, batch string, index int) string {
	return fmt.Sprintf("%s_%s_%d", source, batch, index)
}

func (r *Result) skip(log *zap.Logger, msg string, fields ...zap.Field) {
	r.Skipped++
	r.Warnings = append(r.Warnings, msg)
	log.Warn("ingest_record_skipped", append(fields, zap.String("reason", msg))...)
}

// firstString returns the first non-empty value among keys.
func firstString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// firstAmount returns the first present alias as a number, 0 when absent.
func firstAmount(props map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return finance.AnyAmount(v)
		}
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
