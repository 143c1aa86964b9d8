package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landplots/internal/database"
	"landplots/internal/report"
	"landplots/internal/session"
	"landplots/internal/types"
)

func newTestServer(t *testing.T, opts ...session.Option) (*httptest.Server, *session.Workspace) {
	t.Helper()
	ws := session.New(nil, nil, opts...)
	srv := httptest.NewServer(New(ws, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, ws
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("content-type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("content-type"))
	assert.Equal(t, "no-store", resp.Header.Get("cache-control"))

	var st session.Status
	decode(t, resp, &st)
	assert.Equal(t, 3, st.Parcels)
	assert.Equal(t, session.ConfigBanner, st.Banner)
}

func TestStatus_SummaryKeys(t *testing.T) {
	srv, ws := newTestServer(t)
	_, _ = ws.Select("plot_001")

	var st struct {
		Summary map[string]any `json:"summary"`
	}
	decode(t, do(t, http.MethodGet, srv.URL+"/api/status", ""), &st)
	for _, k := range []string{"count", "totalArea", "totalValue", "totalRentIncome", "meanProfitability", "stdDevProfitability"} {
		assert.Contains(t, st.Summary, k)
	}
	assert.EqualValues(t, 1, st.Summary["count"])
}

func TestParcels_SearchAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	var found []map[string]any
	decode(t, do(t, http.MethodGet, srv.URL+"/api/parcels?q=%D1%85%D1%80%D0%B5%D1%89%D0%B0%D1%82%D0%B8%D0%BA", ""), &found)
	require.Len(t, found, 1)
	assert.Equal(t, "plot_001", found[0]["id"])
	assert.InDelta(t, 7.2, found[0]["profitability"], 1e-9)

	resp := do(t, http.MethodGet, srv.URL+"/api/parcels/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEditParcel(t *testing.T) {
	srv, ws := newTestServer(t)

	resp := do(t, http.MethodPatch, srv.URL+"/api/parcels/plot_003", `{"field":"value","value":"100000"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodPatch, srv.URL+"/api/parcels/plot_003", `{"field":"rentIncome","value":1000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	decode(t, resp, &got)
	assert.InDelta(t, 12.0, got["profitability"], 1e-9)
	p, _ := ws.Catalog().Get("plot_003")
	assert.Equal(t, 1000.0, p.RentIncome)

	resp = do(t, http.MethodPatch, srv.URL+"/api/parcels/plot_003", `{"field":"area","value":"1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodPatch, srv.URL+"/api/parcels/missing", `{"field":"value","value":"1"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSelectionRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	var sel selectionResponse
	decode(t, do(t, http.MethodPost, srv.URL+"/api/selection/plot_002", ""), &sel)
	require.Len(t, sel.Parcels, 1)
	require.Len(t, sel.Layers, 1)
	require.NotNil(t, sel.Bounds)

	resp := do(t, http.MethodPost, srv.URL+"/api/selection/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	sel = selectionResponse{}
	decode(t, do(t, http.MethodPost, srv.URL+"/api/selection", ""), &sel)
	assert.Len(t, sel.Parcels, 3)
	assert.Equal(t, 3, sel.Summary.Count)

	sel = selectionResponse{}
	decode(t, do(t, http.MethodDelete, srv.URL+"/api/selection/plot_001", ""), &sel)
	assert.Len(t, sel.Parcels, 2)

	sel = selectionResponse{}
	decode(t, do(t, http.MethodDelete, srv.URL+"/api/selection", ""), &sel)
	assert.Empty(t, sel.Parcels)
	assert.Nil(t, sel.Bounds)
}

func TestLocate(t *testing.T) {
	srv, _ := newTestServer(t)

	var found []map[string]any
	decode(t, do(t, http.MethodGet, srv.URL+"/api/locate?lat=50.4492&lon=30.5254", ""), &found)
	require.Len(t, found, 1)
	assert.Equal(t, "plot_002", found[0]["id"])

	resp := do(t, http.MethodGet, srv.URL+"/api/locate?lat=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload(t *testing.T) {
	srv, ws := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "plots.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("cadastral_number,coordinates\n\"A\",\"[[1,2],[3,4],[5,6]]\"\n\"B\",\"bad\"\n"))
	part, err = mw.CreateFormFile("files", "broken.geojson")
	require.NoError(t, err)
	_, _ = part.Write([]byte("{"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Files []loadResponse `json:"files"`
	}
	decode(t, resp, &out)
	require.Len(t, out.Files, 2)
	assert.Equal(t, 1, out.Files[0].Parcels)
	assert.Equal(t, 1, out.Files[0].Skipped)
	assert.Empty(t, out.Files[0].Error)
	assert.NotEmpty(t, out.Files[1].Error)
	assert.Equal(t, 4, ws.Catalog().Len())
}

func TestDrive_NotConfigured(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/drive/connect", "")
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	var e apiError
	decode(t, resp, &e)
	assert.Equal(t, session.ConfigBanner, e.Error)

	resp = do(t, http.MethodPost, srv.URL+"/api/sheets/abc/load", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var files []types.DriveFile
	decode(t, do(t, http.MethodGet, srv.URL+"/api/drive/files", ""), &files)
	assert.Empty(t, files)
}

func TestExport(t *testing.T) {
	srv, ws := newTestServer(t)
	_, _ = ws.Select("plot_001")

	resp := do(t, http.MethodGet, srv.URL+"/api/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, report.ContentType, resp.Header.Get("content-type"))
	assert.Contains(t, resp.Header.Get("content-disposition"), report.FileName)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "8000000000:001:0001")

	resp = do(t, http.MethodGet, srv.URL+"/api/export.xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("content-disposition"), report.WorkbookFileName)
}

type stubArchive struct{}

func (stubArchive) ArchiveSelection(_ context.Context, label string, parcels []types.Parcel) (database.Archive, error) {
	return database.Archive{ID: "a1", Label: label, ParcelCount: len(parcels)}, nil
}

func TestArchive(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/api/archive", `{"label":"x"}`)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	srv, ws := newTestServer(t, session.WithArchiver(stubArchive{}))
	ws.ShowMatches("")
	resp = do(t, http.MethodPost, srv.URL+"/api/archive", `{"label":"травень"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var a database.Archive
	decode(t, resp, &a)
	assert.Equal(t, "травень", a.Label)
	assert.Equal(t, 3, a.ParcelCount)
}

func TestMetricsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/healthz", "").StatusCode)
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/export", "").StatusCode)

	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `landplots_exports_total{format="html"}`)
}

// signOutFails is a configured connector whose sign-out always errors.
type signOutFails struct{}

func (signOutFails) ConfigValid() bool                                    { return true }
func (signOutFails) Initialize(context.Context) bool                      { return true }
func (signOutFails) SignIn(context.Context) (bool, error)                 { return true, nil }
func (signOutFails) SignOut(context.Context) error                        { return errors.New("token revoke failed") }
func (signOutFails) CurrentUser() *types.GoogleUser                       { return nil }
func (signOutFails) DownloadFile(context.Context, string) ([]byte, error) { return nil, nil }
func (signOutFails) FindFiles(context.Context, string) ([]types.DriveFile, error) {
	return nil, nil
}
func (signOutFails) GetSheetData(context.Context, string, string) ([][]string, error) {
	return nil, nil
}

func TestErrorMessageBelongsToFailingCall(t *testing.T) {
	ws := session.New(signOutFails{}, nil)
	srv := httptest.NewServer(New(ws, nil).Handler())
	t.Cleanup(srv.Close)

	_, err := ws.UploadFile("empty.csv", []byte("cadastral_number,coordinates\n"))
	require.NoError(t, err)
	require.NotEmpty(t, ws.Status().Message)

	resp := do(t, http.MethodPost, srv.URL+"/api/drive/disconnect", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var e apiError
	decode(t, resp, &e)
	assert.Equal(t, "token revoke failed", e.Error)
}
