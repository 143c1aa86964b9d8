package types

import (
	"encoding/json"
	"time"

	"landplots/internal/finance"
)

// Source tags where a parcel came from.
type Source string

const (
	SourceTest         Source = "test"
	SourceLocalFile    Source = "local_file"
	SourceGoogleDrive  Source = "google_drive"
	SourceGoogleSheets Source = "google_sheets"
)

// Ring is a sequence of [lat, lon] points. Closure and winding are not checked.
type Ring [][2]float64

// Parcel is a land record with geometry, address and financial figures.
// Profitability is derived from Value and RentIncome on every read; it has no
// backing field so it can never drift from its inputs.
type Parcel struct {
	ID              string  `json:"id"`
	CadastralNumber string  `json:"cadastralNumber"`
	Address         string  `json:"address"`
	Area            float64 `json:"area"`
	Purpose         string  `json:"purpose"`
	Coordinates     []Ring  `json:"coordinates"`
	Color           string  `json:"color"`
	Source          Source  `json:"source"`
	FileName        string  `json:"fileName,omitempty"`

	Value      float64 `json:"value"`
	RentIncome float64 `json:"rentIncome"`
}

// Profitability returns the annualized rental yield in percent.
func (p Parcel) Profitability() float64 {
	return finance.Profitability(p.Value, p.RentIncome)
}

// MarshalJSON adds the derived profitability to the encoded parcel.
func (p Parcel) MarshalJSON() ([]byte, error) {
	type plain Parcel
	return json.Marshal(struct {
		plain
		Profitability float64 `json:"profitability"`
	}{plain(p), p.Profitability()})
}

// DriveFile is one entry of a remote file listing.
type DriveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modifiedTime"`
	MimeType     string    `json:"mimeType"`
}

// GoogleUser is the profile of the signed-in account.
type GoogleUser struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// Layer is what the map collaborator needs to draw a selected parcel.
type Layer struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// Bounds is a [minLat, minLon, maxLat, maxLon] box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}
