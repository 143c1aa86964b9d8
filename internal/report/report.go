// Package report renders the selected parcels as a standalone HTML page or
// an Excel workbook.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"landplots/internal/catalog"
	"landplots/internal/finance"
	"landplots/internal/metrics"
	"landplots/internal/types"
)

const (
	FileName    = "land_plots_report.html"
	ContentType = "text/html; charset=utf-8"

	leafletCSS = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	leafletJS  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
)

//go:embed template.html
var pageSource string

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"currency":   finance.FormatCurrency,
	"percent":    finance.FormatPercentage,
	"area":       func(ha float64) string { return fmt.Sprintf("%.4f", ha) },
	"sourceName": catalog.SourceName,
	"sourceIcon": catalog.SourceIcon,
}).Parse(pageSource))

type mapLayer struct {
	ID          string       `json:"id"`
	Color       string       `json:"color"`
	Coordinates []types.Ring `json:"coordinates"`
}

type pageData struct {
	GeneratedAt string
	Summary     catalog.Summary
	Parcels     []types.Parcel
	Layers      []mapLayer
	LeafletCSS  string
	LeafletJS   string
}

// Render writes the HTML report for parcels.
func Render(w io.Writer, parcels []types.Parcel, generatedAt time.Time) error {
	layers := make([]mapLayer, len(parcels))
	for i, p := range parcels {
		layers[i] = mapLayer{ID: p.ID, Color: p.Color, Coordinates: p.Coordinates}
	}
	data := pageData{
		GeneratedAt: generatedAt.Format("02.01.2006 15:04"),
		Summary:     catalog.Summarize(parcels),
		Parcels:     parcels,
		Layers:      layers,
		LeafletCSS:  leafletCSS,
		LeafletJS:   leafletJS,
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("html").Inc()
	return nil
}
