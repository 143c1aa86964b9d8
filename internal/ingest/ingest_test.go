package ingest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"landplots/internal/types"
)

func newTestParser() *Parser {
	return New(nil,
		WithBatchID(func() string { return "b1" }),
		WithColor(func() string { return "#407E6D" }),
	)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, FormatCSV, Detect("plots.CSV", types.SourceLocalFile))
	assert.Equal(t, FormatCSV, Detect("Google Sheets", types.SourceGoogleSheets))
	assert.Equal(t, FormatGeoJSON, Detect("kyiv.geojson", types.SourceGoogleDrive))
	assert.Equal(t, FormatGeoJSON, Detect("kyiv.json", types.SourceLocalFile))
	assert.Equal(t, FormatShapefile, Detect("parcels.zip", types.SourceLocalFile))
	assert.Equal(t, FormatShapefile, Detect("parcels.shp", types.SourceLocalFile))
	assert.Equal(t, FormatXLSX, Detect("Parcels.XLSX", types.SourceLocalFile))
	assert.Equal(t, FormatUnknown, Detect("notes.txt", types.SourceLocalFile))
}

func TestProcess_CSVExample(t *testing.T) {
	input := "cadastral_number,address,area,coordinates\n" +
		`"123","Main St",1.5,"[[0,0],[0,1],[1,1],[1,0],[0,0]]"`

	res, err := newTestParser().Process([]byte(input), "plots.csv", types.SourceLocalFile)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 1)

	p := res.Parcels[0]
	assert.Equal(t, "123", p.CadastralNumber)
	assert.Equal(t, "Main St", p.Address)
	assert.Equal(t, 1.5, p.Area)
	require.Len(t, p.Coordinates, 1)
	assert.Equal(t, types.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}, p.Coordinates[0])
	assert.Equal(t, types.SourceLocalFile, p.Source)
	assert.Equal(t, "local_file_b1_1", p.ID)
	assert.Equal(t, "Не визначено", p.Purpose)
	assert.Zero(t, p.Value)
	assert.Zero(t, p.RentIncome)
	assert.Zero(t, res.Skipped)
}

func TestProcess_CSVSkipsBadRowsOnly(t *testing.T) {
	input := "Cadastral Number,Address,Area,Purpose,Value,Rent Income,Coordinates\n" +
		`"A1","Street 1",1,"Офіс",100000,1000,"[[50.1,30.1],[50.2,30.2],[50.1,30.2]]"` + "\n" +
		`"A2","Street 2",2,"Житло",0,0,` + "\n" +
		`"A3","Street 3",3,"Житло",0,0,"not json"` + "\n" +
		"\n" +
		`"A4","Street 4",4,"Житло",0,0,"[]"` + "\n" +
		`"A5","Street 5",5,"Житло",200000,500,"[[1,2],[3,4],[5,6]]"` + "\n"

	res, err := newTestParser().Process([]byte(input), "batch.csv", types.SourceLocalFile)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 2)
	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, res.Warnings, 3)

	assert.Equal(t, "A1", res.Parcels[0].CadastralNumber)
	assert.Equal(t, "Офіс", res.Parcels[0].Purpose)
	assert.Equal(t, 100000.0, res.Parcels[0].Value)
	assert.Equal(t, 1000.0, res.Parcels[0].RentIncome)
	assert.InDelta(t, 12.0, res.Parcels[0].Profitability(), 1e-9)

	assert.Equal(t, "A5", res.Parcels[1].CadastralNumber)
	assert.Equal(t, 5.0, res.Parcels[1].Area)
}

func TestProcess_CSVUnclosedQuoteStaysOnItsLine(t *testing.T) {
	input := "cadastral_number,address,coordinates\n" +
		`"A1","Street 1","[[0,0],[0,1]` + "\n" +
		`"A2","Street 2","[[1,2],[3,4],[5,6]]"` + "\r\n" +
		`"A3","Street 3","[[1,2],[3,4],[5,6]]"` + "\n"

	res, err := newTestParser().Process([]byte(input), "batch.csv", types.SourceLocalFile)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 2)
	assert.Equal(t, "A2", res.Parcels[0].CadastralNumber)
	assert.Equal(t, "Street 2", res.Parcels[0].Address)
	assert.Equal(t, "A3", res.Parcels[1].CadastralNumber)
	assert.Equal(t, 1, res.Skipped)
}

func TestProcess_CSVLocalizedAliasesAndDefaults(t *testing.T) {
	input := "coordinates,вартість,орендна_плата\n" +
		`"[[1,1],[1,2],[2,2]]","1 800 000","12000"` + "\n"

	res, err := newTestParser().Process([]byte(input), "ua.csv", types.SourceLocalFile)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 1)
	p := res.Parcels[0]
	assert.Equal(t, 1800000.0, p.Value)
	assert.Equal(t, 12000.0, p.RentIncome)
	assert.Equal(t, "CSV_1", p.CadastralNumber)
	assert.Equal(t, "Адреса не вказана", p.Address)
	assert.Equal(t, "#407E6D", p.Color)
}

func TestProcess_CSVHeaderOnlyAndEmpty(t *testing.T) {
	for _, input := range []string{"", "\n\n", "cadastral_number,coordinates\n"} {
		res, err := newTestParser().Process([]byte(input), "empty.csv", types.SourceLocalFile)
		require.NoError(t, err)
		assert.Empty(t, res.Parcels, "input %q", input)
	}
}

const mixedCollection = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[30.5234, 50.4501], [30.5234, 50.4505], [30.5240, 50.4505], [30.5234, 50.4501]]]},
     "properties": {"cadastralNumber": "8000000000:001:0010", "ADDRESS": "вул. Тестова, 1", "AREA": "0.5", "purpose": "Сад", "value": 1000000, "rent_income": 5000}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [30.5, 50.4]},
     "properties": {"cadastralNumber": "point"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[30.5, 50.4], [30.6, 50.5]]},
     "properties": {}},
    {"type": "Feature", "geometry": null, "properties": {}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[1, 2], [3, 4], [5, 6], [1, 2]]]}}
  ]
}`

func TestProcess_GeoJSONKeepsOnlyPolygons(t *testing.T) {
	res, err := newTestParser().Process([]byte(mixedCollection), "kyiv.geojson", types.SourceGoogleDrive)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 2)
	assert.Equal(t, 3, res.Skipped)

	first := res.Parcels[0]
	assert.Equal(t, "8000000000:001:0010", first.CadastralNumber)
	assert.Equal(t, "вул. Тестова, 1", first.Address)
	assert.Equal(t, 0.5, first.Area)
	assert.Equal(t, "Сад", first.Purpose)
	assert.Equal(t, 1000000.0, first.Value)
	assert.Equal(t, 5000.0, first.RentIncome)
	assert.Equal(t, types.SourceGoogleDrive, first.Source)
	assert.Equal(t, "kyiv.geojson", first.FileName)
	// GeoJSON [lon, lat] is stored as [lat, lon].
	assert.Equal(t, [2]float64{50.4501, 30.5234}, first.Coordinates[0][0])

	second := res.Parcels[1]
	assert.Equal(t, "kyiv.geojson_4", second.CadastralNumber)
	assert.Equal(t, "google_drive_b1_4", second.ID)
	assert.Equal(t, [2]float64{2, 1}, second.Coordinates[0][0])
}

func TestProcess_GeoJSONNotACollection(t *testing.T) {
	for _, input := range []string{
		`{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[0,1],[1,1],[0,0]]]}}`,
		`[1, 2, 3]`,
		`{"type": "FeatureCollection"}`,
	} {
		res, err := newTestParser().Process([]byte(input), "x.json", types.SourceLocalFile)
		require.NoError(t, err)
		assert.Empty(t, res.Parcels)
	}
}

func TestProcess_GeoJSONMalformed(t *testing.T) {
	_, err := newTestParser().Process([]byte(`{"type": "FeatureCollection",`), "broken.geojson", types.SourceLocalFile)
	require.Error(t, err)
}

func TestProcess_UnknownFormat(t *testing.T) {
	res, err := newTestParser().Process([]byte("whatever"), "readme.txt", types.SourceLocalFile)
	require.NoError(t, err)
	assert.Equal(t, FormatUnknown, res.Format)
	assert.Empty(t, res.Parcels)
}

// writeTestShapefile writes a one-polygon layer with two parts and returns
// the .shp path.
func writeTestShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "parcels.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 30.1, Y: 50.1}, {X: 30.2, Y: 50.1}, {X: 30.2, Y: 50.2}, {X: 30.1, Y: 50.1}},
		{{X: 31.1, Y: 51.1}, {X: 31.2, Y: 51.1}, {X: 31.2, Y: 51.2}, {X: 31.1, Y: 51.1}},
	}))
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("CADNUM", 30),
		shp.StringField("ADDRESS", 50),
		shp.FloatField("AREA", 12, 4),
		shp.FloatField("VALUE", 14, 2),
	}))
	w.Write(&poly)
	require.NoError(t, w.WriteAttribute(0, 0, "3222486200:03:001:0001"))
	require.NoError(t, w.WriteAttribute(0, 1, "Bila Tserkva"))
	require.NoError(t, w.WriteAttribute(0, 2, 2.5))
	require.NoError(t, w.WriteAttribute(0, 3, 500000.0))
	w.Close()

	// the writer names the attribute table "<base>dbf"
	base := path[:len(path)-len(".shp")]
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestParseShapefile(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir())

	res, err := newTestParser().ParseShapefile(path, types.SourceLocalFile)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 1)

	p := res.Parcels[0]
	assert.Equal(t, "3222486200:03:001:0001", p.CadastralNumber)
	assert.Equal(t, "Bila Tserkva", p.Address)
	assert.InDelta(t, 2.5, p.Area, 1e-9)
	assert.InDelta(t, 500000, p.Value, 1e-6)
	require.Len(t, p.Coordinates, 2)
	assert.Equal(t, [2]float64{50.1, 30.1}, p.Coordinates[0][0])
	assert.Equal(t, [2]float64{51.1, 31.1}, p.Coordinates[1][0])
	assert.Equal(t, "parcels.shp", p.FileName)
}

func TestParseShapefile_Truncated(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir())
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-16))

	_, err = newTestParser().ParseShapefile(path, types.SourceLocalFile)
	assert.Error(t, err)
}

func TestProcess_ShapefileZip(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeTestShapefile(t, dir)
	base := shpPath[:len(shpPath)-len(".shp")]

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(base + ext)
		require.NoError(t, err)
		f, err := zw.Create("layer/parcels" + ext)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	res, err := newTestParser().Process(buf.Bytes(), "parcels.zip", types.SourceLocalFile)
	require.NoError(t, err)
	require.Len(t, res.Parcels, 1)
	assert.Equal(t, "parcels.zip", res.Parcels[0].FileName)
	assert.Equal(t, "3222486200:03:001:0001", res.Parcels[0].CadastralNumber)
	assert.InDelta(t, 500000, res.Parcels[0].Value, 1e-6)
	assert.Equal(t, types.SourceLocalFile, res.Parcels[0].Source)
}

func TestProcess_ZipWithoutShapefile(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, _ = f.Write([]byte("hi"))
	require.NoError(t, zw.Close())

	_, err = newTestParser().Process(buf.Bytes(), "bundle.zip", types.SourceLocalFile)
	require.Error(t, err)
}

func TestProcess_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Cadastral Number", "Address", "Area", "Value", "Rent Income", "Coordinates"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"32:01", "Бровари", 1.25, 100000, 1000, "[[50.5,30.8],[50.6,30.8],[50.6,30.9]]"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"32:02", "Ірпінь", 2}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := newTestParser().Process(buf.Bytes(), "parcels.xlsx", types.SourceLocalFile)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, res.Format)
	require.Len(t, res.Parcels, 1)
	assert.Equal(t, 1, res.Skipped)

	p := res.Parcels[0]
	assert.Equal(t, "32:01", p.CadastralNumber)
	assert.Equal(t, 1.25, p.Area)
	assert.InDelta(t, 12.0, p.Profitability(), 1e-9)
	assert.Equal(t, "parcels.xlsx", p.FileName)
}

func TestProcess_WorkbookCorrupt(t *testing.T) {
	_, err := newTestParser().Process([]byte("not a zip"), "broken.xlsx", types.SourceLocalFile)
	require.Error(t, err)
}
