package catalog

import "landplots/internal/types"

// Group is the parcels of one provenance, in load order.
type Group struct {
	Source  types.Source   `json:"source"`
	Name    string         `json:"name"`
	Icon    string         `json:"icon"`
	Parcels []types.Parcel `json:"parcels"`
}

// GroupBySource splits parcels by provenance, groups ordered by first
// appearance.
func GroupBySource(parcels []types.Parcel) []Group {
	var groups []Group
	pos := make(map[types.Source]int)
	for _, p := range parcels {
		src := p.Source
		if src == "" {
			src = "unknown"
		}
		i, ok := pos[src]
		if !ok {
			i = len(groups)
			pos[src] = i
			groups = append(groups, Group{Source: src, Name: SourceName(src), Icon: SourceIcon(src)})
		}
		groups[i].Parcels = append(groups[i].Parcels, p)
	}
	return groups
}

// SourceName is the display name of a provenance tag.
func SourceName(s types.Source) string {
	switch s {
	case types.SourceTest:
		return "Тестові дані"
	case types.SourceLocalFile:
		return "Локальні файли"
	case types.SourceGoogleDrive:
		return "Google Drive"
	case types.SourceGoogleSheets:
		return "Google Sheets"
	}
	return string(s)
}

// SourceIcon is the list marker of a provenance tag.
func SourceIcon(s types.Source) string {
	switch s {
	case types.SourceTest:
		return "🧪"
	case types.SourceLocalFile:
		return "📁"
	case types.SourceGoogleDrive:
		return "☁️"
	case types.SourceGoogleSheets:
		return "📊"
	}
	return "📄"
}
