// Package server exposes a Workspace over a JSON HTTP API for a browser map
// front end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"landplots/internal/catalog"
	"landplots/internal/drive"
	"landplots/internal/logging"
	"landplots/internal/metrics"
	"landplots/internal/report"
	"landplots/internal/session"
	"landplots/internal/types"
)

const maxUpload = 32 << 20

// Server routes API calls onto a Workspace.
type Server struct {
	ws  *session.Workspace
	log *zap.Logger
	mux *http.ServeMux
}

// New builds the route table.
func New(ws *session.Workspace, log *zap.Logger) *Server {
	s := &Server{ws: ws, log: logging.OrNop(log).Named("http"), mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	m := s.mux
	m.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	m.Handle("GET /metrics", metrics.Handler())

	m.HandleFunc("GET /api/status", s.handleStatus)
	m.HandleFunc("GET /api/parcels", s.handleParcels)
	m.HandleFunc("GET /api/parcels/{id}", s.handleParcel)
	m.HandleFunc("PATCH /api/parcels/{id}", s.handleEditParcel)
	m.HandleFunc("GET /api/groups", s.handleGroups)
	m.HandleFunc("GET /api/locate", s.handleLocate)

	m.HandleFunc("GET /api/selection", s.handleSelection)
	m.HandleFunc("POST /api/selection", s.handleSelectMatches)
	m.HandleFunc("DELETE /api/selection", s.handleClearSelection)
	m.HandleFunc("POST /api/selection/{id}", s.handleSelect)
	m.HandleFunc("DELETE /api/selection/{id}", s.handleDeselect)

	m.HandleFunc("POST /api/upload", s.handleUpload)
	m.HandleFunc("POST /api/drive/connect", s.handleConnect)
	m.HandleFunc("POST /api/drive/disconnect", s.handleDisconnect)
	m.HandleFunc("GET /api/drive/files", s.handleDriveFiles)
	m.HandleFunc("POST /api/drive/files/{id}/load", s.handleDriveLoad)
	m.HandleFunc("POST /api/sheets/{id}/load", s.handleSheetLoad)

	m.HandleFunc("GET /api/export", s.handleExport)
	m.HandleFunc("GET /api/export.xlsx", s.handleExportWorkbook)
	m.HandleFunc("POST /api/archive", s.handleArchive)
}

// Handler returns the API with request logging applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.log.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("http_listen", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownParcel):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrUnknownField), errors.Is(err, session.ErrEmptySheetID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, drive.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrArchiveDisabled):
		return http.StatusNotImplemented
	}
	return http.StatusBadGateway
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), apiError{Error: session.UserMessage(err)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Status())
}

func (s *Server) handleParcels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Search(r.URL.Query().Get("q")))
}

func (s *Server) handleParcel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ws.Catalog().Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: catalog.ErrUnknownParcel.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type editRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleEditParcel(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	// Accept both "100000" and 100000.
	raw := string(req.Value)
	var str string
	if json.Unmarshal(req.Value, &str) == nil {
		raw = str
	}
	p, err := s.ws.EditFinancial(r.PathValue("id"), req.Field, raw)
	if err != nil {
		writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.GroupBySource(s.ws.Search(r.URL.Query().Get("q"))))
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "lat and lon are required"})
		return
	}
	found := s.ws.Catalog().Containing(lat, lon)
	if found == nil {
		found = []types.Parcel{}
	}
	writeJSON(w, http.StatusOK, found)
}

type selectionResponse struct {
	Parcels []types.Parcel  `json:"parcels"`
	Layers  []types.Layer   `json:"layers"`
	Bounds  *types.Bounds   `json:"bounds,omitempty"`
	Summary catalog.Summary `json:"summary"`
}

func (s *Server) selection() selectionResponse {
	cat := s.ws.Catalog()
	resp := selectionResponse{
		Parcels: cat.Selected(),
		Layers:  cat.Layers(),
	}
	if b, ok := cat.Bounds(); ok {
		resp.Bounds = &b
	}
	resp.Summary = catalog.Summarize(resp.Parcels)
	return resp
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.selection())
}

func (s *Server) handleSelectMatches(w http.ResponseWriter, r *http.Request) {
	s.ws.ShowMatches(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, s.selection())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.ws.Catalog().ClearSelection()
	writeJSON(w, http.StatusOK, s.selection())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ws.Select(r.PathValue("id")); err != nil {
		writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.selection())
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	s.ws.Deselect(r.PathValue("id"))
	writeJSON(w, http.StatusOK, s.selection())
}

type loadResponse struct {
	File     string   `json:"file"`
	Parcels  int      `json:"parcels"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// handleUpload processes every part named "files" in order. One bad file
// does not fail the request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	var results []loadResponse
	for _, fh := range r.MultipartForm.File["files"] {
		out := loadResponse{File: fh.Filename}
		content, err := readPart(fh.Open)
		if err == nil {
			res, perr := s.ws.UploadFile(fh.Filename, content)
			out.Parcels, out.Skipped, out.Warnings, err = len(res.Parcels), res.Skipped, res.Warnings, perr
		}
		if err != nil {
			out.Error = err.Error()
		}
		results = append(results, out)
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": results, "status": s.ws.Status()})
}

func readPart(open func() (multipart.File, error)) ([]byte, error) {
	f, err := open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Connect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ws.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Disconnect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ws.Status())
}

func (s *Server) handleDriveFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.ws.RefreshFiles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if files == nil {
		files = []types.DriveFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDriveLoad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file, ok := s.ws.DriveFile(id)
	if !ok {
		file = types.DriveFile{ID: id, Name: r.URL.Query().Get("name")}
	}
	res, err := s.ws.LoadDriveFile(r.Context(), file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{File: file.Name, Parcels: len(res.Parcels), Skipped: res.Skipped, Warnings: res.Warnings})
}

func (s *Server) handleSheetLoad(w http.ResponseWriter, r *http.Request) {
	res, err := s.ws.LoadSheet(r.Context(), r.PathValue("id"), r.URL.Query().Get("range"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{File: "Google Sheets", Parcels: len(res.Parcels), Skipped: res.Skipped, Warnings: res.Warnings})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", report.ContentType)
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	if err := s.ws.Export(w); err != nil {
		s.log.Error("http_export_failed", zap.Error(err))
	}
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", report.WorkbookContentType)
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", report.WorkbookFileName))
	if err := s.ws.ExportWorkbook(w); err != nil {
		s.log.Error("http_export_failed", zap.Error(err))
	}
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
			return
		}
	}
	a, err := s.ws.Archive(r.Context(), req.Label)
	if err != nil {
		writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
