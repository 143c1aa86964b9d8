// Package session is the handler boundary of the parcel workspace. Every
// user action lands on a Workspace method, and every failure is turned into
// a status message the shell or the browser shows.
package session

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"landplots/internal/catalog"
	"landplots/internal/database"
	"landplots/internal/ingest"
	"landplots/internal/logging"
	"landplots/internal/report"
	"landplots/internal/types"
)

// ConnState is the remote connection state.
type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
	Failed       ConnState = "error"
)

// ConfigBanner is shown for as long as the remote credentials are missing.
const ConfigBanner = "Потрібно налаштувати Google API ключі"

var (
	ErrNotConfigured   = errors.New(ConfigBanner)
	ErrNotConnected    = errors.New("Google Drive не підключено")
	ErrArchiveDisabled = errors.New("архів не налаштовано")
	ErrEmptySheetID    = errors.New("Будь ласка, введіть ID Google Sheets")
)

// Error is a failure the workspace already turned into a user message.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the message recorded for err, or err's own text when
// the workspace recorded none.
func UserMessage(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Message
	}
	return err.Error()
}

// Connector is the remote source the workspace talks to.
type Connector interface {
	ConfigValid() bool
	Initialize(ctx context.Context) bool
	SignIn(ctx context.Context) (bool, error)
	SignOut(ctx context.Context) error
	CurrentUser() *types.GoogleUser
	FindFiles(ctx context.Context, name string) ([]types.DriveFile, error)
	DownloadFile(ctx context.Context, id string) ([]byte, error)
	GetSheetData(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
}

// Archiver saves a selection somewhere durable.
type Archiver interface {
	ArchiveSelection(ctx context.Context, label string, parcels []types.Parcel) (database.Archive, error)
}

// Status is a snapshot of what the user should see.
type Status struct {
	State   ConnState         `json:"state"`
	Banner  string            `json:"banner,omitempty"`
	Message string            `json:"message,omitempty"`
	User    *types.GoogleUser `json:"user,omitempty"`
	Files   []types.DriveFile `json:"files"`
	Parcels int               `json:"parcels"`
	Regions []string          `json:"regions"`
	Summary catalog.Summary   `json:"summary"`
}

// Workspace joins the catalog, the remote source and the parsers.
type Workspace struct {
	cat     *catalog.Catalog
	conn    Connector
	parser  *ingest.Parser
	archive Archiver
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	state   ConnState
	message string
	user    *types.GoogleUser
	files   []types.DriveFile
	query   string
}

// Option customizes a Workspace.
type Option func(*Workspace)

// WithArchiver enables Archive.
func WithArchiver(a Archiver) Option { return func(w *Workspace) { w.archive = a } }

// WithParser replaces the default parser.
func WithParser(p *ingest.Parser) Option { return func(w *Workspace) { w.parser = p } }

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option { return func(w *Workspace) { w.now = now } }

// WithCatalog starts from cat instead of the sample parcels.
func WithCatalog(cat *catalog.Catalog) Option { return func(w *Workspace) { w.cat = cat } }

// New returns a workspace seeded with the sample parcels.
func New(conn Connector, log *zap.Logger, opts ...Option) *Workspace {
	log = logging.OrNop(log)
	w := &Workspace{
		conn:  conn,
		log:   log.Named("session"),
		now:   time.Now,
		state: Disconnected,
	}
	for _, o := range opts {
		o(w)
	}
	if w.cat == nil {
		w.cat = catalog.New(catalog.Fixtures()...)
	}
	if w.parser == nil {
		w.parser = ingest.New(log)
	}
	return w
}

// Catalog exposes the parcel set.
func (w *Workspace) Catalog() *catalog.Catalog { return w.cat }

func (w *Workspace) setMessage(msg string) {
	w.mu.Lock()
	w.message = msg
	w.mu.Unlock()
}

func (w *Workspace) fail(state ConnState, msg string, err error) error {
	w.mu.Lock()
	w.message = msg
	if state != "" {
		w.state = state
	}
	w.mu.Unlock()
	w.log.Warn("session_action_failed", zap.String("message", msg), zap.Error(err))
	return &Error{Message: msg, Err: err}
}

// Status returns what the user should currently see.
func (w *Workspace) Status() Status {
	w.mu.Lock()
	st := Status{
		State:   w.state,
		Message: w.message,
		Files:   append([]types.DriveFile{}, w.files...),
	}
	if w.user != nil {
		u := *w.user
		st.User = &u
	}
	w.mu.Unlock()

	if w.conn == nil || !w.conn.ConfigValid() {
		st.Banner = ConfigBanner
	}
	st.Parcels = w.cat.Len()
	st.Regions = w.cat.LoadedRegions()
	st.Summary = catalog.Summarize(w.cat.Selected())
	return st
}

// Connect initializes the remote source, signs in and lists files.
func (w *Workspace) Connect(ctx context.Context) error {
	if w.conn == nil || !w.conn.ConfigValid() {
		return w.fail(Failed, ConfigBanner, ErrNotConfigured)
	}

	w.mu.Lock()
	w.state = Connecting
	w.message = ""
	w.mu.Unlock()

	if !w.conn.Initialize(ctx) {
		err := errors.New("Не вдалося ініціалізувати Google API")
		return w.fail(Failed, "Помилка підключення: "+err.Error(), err)
	}
	ok, err := w.conn.SignIn(ctx)
	if err == nil && !ok {
		err = errors.New("Не вдалося авторизуватися")
	}
	if err != nil {
		w.mu.Lock()
		w.user = nil
		w.mu.Unlock()
		return w.fail(Failed, "Помилка підключення: "+err.Error(), err)
	}

	user := w.conn.CurrentUser()
	w.mu.Lock()
	w.state = Connected
	w.user = user
	query := w.query
	w.mu.Unlock()
	w.log.Info("session_connected")

	_, err = w.RefreshFiles(ctx, query)
	return err
}

// Disconnect signs out and forgets the file listing.
func (w *Workspace) Disconnect(ctx context.Context) error {
	if w.conn != nil {
		if err := w.conn.SignOut(ctx); err != nil {
			w.log.Warn("session_signout_failed", zap.Error(err))
			return err
		}
	}
	w.mu.Lock()
	w.state = Disconnected
	w.user = nil
	w.files = nil
	w.mu.Unlock()
	return nil
}

func (w *Workspace) connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == Connected
}

// RefreshFiles lists remote parcel files whose name contains query. It does
// nothing while disconnected.
func (w *Workspace) RefreshFiles(ctx context.Context, query string) ([]types.DriveFile, error) {
	w.mu.Lock()
	w.query = query
	w.mu.Unlock()
	if !w.connected() {
		return nil, nil
	}
	files, err := w.conn.FindFiles(ctx, query)
	if err != nil {
		return nil, w.fail("", "Помилка завантаження файлів: "+err.Error(), err)
	}
	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return files, nil
}

// DriveFile looks a listed file up by id.
func (w *Workspace) DriveFile(id string) (types.DriveFile, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		if f.ID == id {
			return f, true
		}
	}
	return types.DriveFile{}, false
}

// LoadDriveFile downloads one remote file and adds its parcels.
func (w *Workspace) LoadDriveFile(ctx context.Context, file types.DriveFile) (ingest.Result, error) {
	if !w.connected() {
		return ingest.Result{}, w.fail("", "Помилка завантаження файлу "+file.Name+": "+ErrNotConnected.Error(), ErrNotConnected)
	}
	content, err := w.conn.DownloadFile(ctx, file.ID)
	if err != nil {
		return ingest.Result{}, w.fail("", fmt.Sprintf("Помилка завантаження файлу %s: %v", file.Name, err), err)
	}
	return w.process(content, file.Name, types.SourceGoogleDrive)
}

// LoadSheet reads a spreadsheet and adds its rows as parcels.
func (w *Workspace) LoadSheet(ctx context.Context, spreadsheetID, rng string) (ingest.Result, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return ingest.Result{}, w.fail("", ErrEmptySheetID.Error(), ErrEmptySheetID)
	}
	if !w.connected() {
		return ingest.Result{}, w.fail("", "Помилка завантаження з Google Sheets: "+ErrNotConnected.Error(), ErrNotConnected)
	}
	rows, err := w.conn.GetSheetData(ctx, spreadsheetID, rng)
	if err != nil {
		return ingest.Result{}, w.fail("", "Помилка завантаження з Google Sheets: "+err.Error(), err)
	}
	if len(rows) == 0 {
		w.setMessage("Google Sheets порожній або недоступний")
		return ingest.Result{}, nil
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return ingest.Result{}, w.fail("", "Помилка завантаження з Google Sheets: "+err.Error(), err)
	}
	return w.process(buf.Bytes(), "Google Sheets", types.SourceGoogleSheets)
}

// LoadLocalFiles reads files from disk one after another. A failing file
// does not stop the rest; the last error is returned.
func (w *Workspace) LoadLocalFiles(paths ...string) (int, error) {
	var (
		added   int
		lastErr error
	)
	for _, path := range paths {
		name := filepath.Base(path)
		var (
			res ingest.Result
			err error
		)
		if strings.EqualFold(filepath.Ext(path), ".shp") {
			// sibling .dbf/.shx are read from disk
			res, err = w.parser.ParseShapefile(path, types.SourceLocalFile)
			if err == nil {
				res, err = w.accept(res, name)
			} else {
				err = w.fail("", fmt.Sprintf("Помилка обробки файлу %s: %v", name, err), err)
			}
		} else {
			var content []byte
			content, err = os.ReadFile(path)
			if err != nil {
				err = w.fail("", fmt.Sprintf("Помилка обробки файлу %s: %v", name, err), err)
			} else {
				res, err = w.process(content, name, types.SourceLocalFile)
			}
		}
		if err != nil {
			lastErr = err
			continue
		}
		added += len(res.Parcels)
	}
	return added, lastErr
}

// UploadFile adds the parcels of an uploaded file.
func (w *Workspace) UploadFile(name string, content []byte) (ingest.Result, error) {
	return w.process(content, name, types.SourceLocalFile)
}

func (w *Workspace) process(content []byte, name string, source types.Source) (ingest.Result, error) {
	res, err := w.parser.Process(content, name, source)
	if err != nil {
		return res, w.fail("", fmt.Sprintf("Помилка обробки файлу %s: %v", name, err), err)
	}
	return w.accept(res, name)
}

func (w *Workspace) accept(res ingest.Result, name string) (ingest.Result, error) {
	if len(res.Parcels) == 0 {
		w.setMessage("Не знайдено валідних ділянок у файлі " + name)
		w.log.Info("session_file_empty", zap.String("file", name), zap.Int("skipped", res.Skipped))
		return res, nil
	}
	added := w.cat.Merge(res.Parcels)
	w.setMessage("")
	w.log.Info("session_file_loaded",
		zap.String("file", name),
		zap.Int("parcels", len(res.Parcels)),
		zap.Int("added", added),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Search returns the parcels matching query.
func (w *Workspace) Search(query string) []types.Parcel { return w.cat.Filter(query) }

// ShowMatches puts every parcel matching query on the map.
func (w *Workspace) ShowMatches(query string) int { return w.cat.SelectFiltered(query) }

// Select puts a parcel on the map.
func (w *Workspace) Select(id string) (bool, error) { return w.cat.Add(id) }

// Deselect takes a parcel off the map.
func (w *Workspace) Deselect(id string) bool { return w.cat.Remove(id) }

// EditFinancial updates the value or rent of a parcel from user input.
func (w *Workspace) EditFinancial(id, field, raw string) (types.Parcel, error) {
	p, err := w.cat.SetFinancial(id, field, raw)
	if err != nil {
		w.log.Debug("session_edit_rejected", zap.String("id", id), zap.String("field", field), zap.Error(err))
	}
	return p, err
}

// Export writes the HTML report of the selection.
func (w *Workspace) Export(out io.Writer) error {
	return report.Render(out, w.cat.Selected(), w.now())
}

// ExportWorkbook writes the selection as an .xlsx workbook.
func (w *Workspace) ExportWorkbook(out io.Writer) error {
	return report.RenderWorkbook(out, w.cat.Selected())
}

// Archive saves the selection through the configured Archiver.
func (w *Workspace) Archive(ctx context.Context, label string) (database.Archive, error) {
	if w.archive == nil {
		return database.Archive{}, ErrArchiveDisabled
	}
	a, err := w.archive.ArchiveSelection(ctx, label, w.cat.Selected())
	if err != nil {
		return a, w.fail("", "Помилка архівування: "+err.Error(), err)
	}
	w.log.Info("session_archived", zap.String("archive_id", a.ID), zap.Int("parcels", a.ParcelCount))
	return a, nil
}
