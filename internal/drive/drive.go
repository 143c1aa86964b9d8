// Package drive adapts Google Drive and Google Sheets as parcel sources.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"landplots/internal/config"
	"landplots/internal/logging"
	"landplots/internal/metrics"
	"landplots/internal/types"
)

var (
	ErrNotInitialized   = errors.New("Google API не ініціалізовано")
	ErrNotAuthenticated = errors.New("Потрібна авторизація")
)

// Query and listing limits.
const (
	FileFilter   = "(mimeType='application/json' or name contains '.geojson' or name contains '.csv' or mimeType='text/csv')"
	PageSize     = 50
	DefaultRange = "Sheet1!A:Z"
	listFields   = "files(id, name, size, modifiedTime, mimeType)"
)

// Scopes requested at sign-in. Both are read-only.
var Scopes = []string{drivev3.DriveReadonlyScope, sheetsv4.SpreadsheetsReadonlyScope}

// Connector is a session against the remote provider. It is safe for
// concurrent use; calls are not retried.
type Connector struct {
	cfg   config.GoogleConfig
	log   *zap.Logger
	auth  Authenticator
	store TokenStore

	// test seams
	httpClient *http.Client
	driveURL   string
	sheetsURL  string

	mu     sync.Mutex
	oauth  *oauth2.Config
	drive  *drivev3.Service
	sheets *sheetsv4.Service
	user   *types.GoogleUser
}

// Option customizes a Connector.
type Option func(*Connector)

// WithAuthenticator replaces the browser loopback flow.
func WithAuthenticator(a Authenticator) Option { return func(c *Connector) { c.auth = a } }

// WithHTTPClient sends every API call through hc instead of an OAuth
// transport built from the session token.
func WithHTTPClient(hc *http.Client) Option { return func(c *Connector) { c.httpClient = hc } }

// WithEndpoints points the Drive and Sheets clients at other base URLs.
func WithEndpoints(driveURL, sheetsURL string) Option {
	return func(c *Connector) {
		c.driveURL = driveURL
		c.sheetsURL = sheetsURL
	}
}

// New returns a Connector for cfg. Nothing is contacted until SignIn.
func New(cfg config.GoogleConfig, log *zap.Logger, opts ...Option) *Connector {
	c := &Connector{
		cfg:   cfg,
		log:   logging.OrNop(log).Named("drive"),
		store: TokenStore{Path: cfg.TokenFile},
	}
	c.auth = LoopbackAuthenticator{Log: c.log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ConfigValid reports whether real credentials are configured.
func (c *Connector) ConfigValid() bool { return c.cfg.Valid() }

// Initialize prepares the OAuth client configuration. It runs once; later
// calls report the first successful outcome. Failures are logged, not
// returned.
func (c *Connector) Initialize(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oauth != nil {
		return true
	}
	if err := ctx.Err(); err != nil {
		c.log.Warn("drive_init_failed", zap.Error(err))
		return false
	}
	if !c.cfg.Valid() {
		c.log.Warn("drive_init_failed", zap.String("reason", "credentials not configured"))
		return false
	}
	c.oauth = &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
	c.log.Debug("drive_init_ok")
	return true
}

// SignIn establishes a session. A cached token is reused when present;
// otherwise the Authenticator is asked for one and the result cached.
func (c *Connector) SignIn(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oauth == nil {
		return false, ErrNotInitialized
	}
	if c.drive != nil {
		return true, nil
	}

	tok, err := c.store.Load()
	if err != nil {
		c.log.Warn("drive_token_cache_unreadable", zap.Error(err))
		tok = nil
	}
	if tok == nil {
		tok, err = c.auth.Token(ctx, c.oauth)
		if err != nil {
			c.log.Warn("drive_signin_failed", zap.Error(err))
			return false, err
		}
		if err := c.store.Save(tok); err != nil {
			c.log.Warn("drive_token_cache_write_failed", zap.Error(err))
		}
	}

	driveOpts, sheetsOpts := c.clientOptions(ctx, tok)
	dsvc, err := drivev3.NewService(ctx, driveOpts...)
	if err != nil {
		return false, fmt.Errorf("create drive client: %w", err)
	}
	ssvc, err := sheetsv4.NewService(ctx, sheetsOpts...)
	if err != nil {
		return false, fmt.Errorf("create sheets client: %w", err)
	}
	c.drive, c.sheets = dsvc, ssvc

	c.user = &types.GoogleUser{}
	about, err := c.drive.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		c.log.Warn("drive_profile_failed", zap.Error(err))
	} else if about.User != nil {
		c.user = &types.GoogleUser{
			Email:    about.User.EmailAddress,
			Name:     about.User.DisplayName,
			ImageURL: about.User.PhotoLink,
		}
	}
	c.log.Info("drive_signin_ok", zap.String("email", c.user.Email))
	return true, nil
}

func (c *Connector) clientOptions(ctx context.Context, tok *oauth2.Token) (driveOpts, sheetsOpts []option.ClientOption) {
	var base []option.ClientOption
	if c.httpClient != nil {
		base = append(base, option.WithHTTPClient(c.httpClient))
	} else {
		base = append(base, option.WithTokenSource(c.oauth.TokenSource(ctx, tok)))
	}
	driveOpts = append(driveOpts, base...)
	sheetsOpts = append(sheetsOpts, base...)
	if c.driveURL != "" {
		driveOpts = append(driveOpts, option.WithEndpoint(c.driveURL))
	}
	if c.sheetsURL != "" {
		sheetsOpts = append(sheetsOpts, option.WithEndpoint(c.sheetsURL))
	}
	return driveOpts, sheetsOpts
}

// SignOut ends the session and forgets the cached token.
func (c *Connector) SignOut(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drive, c.sheets, c.user = nil, nil, nil
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear token cache: %w", err)
	}
	c.log.Info("drive_signout")
	return nil
}

// SignedIn reports whether a session exists.
func (c *Connector) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drive != nil
}

// CurrentUser returns the signed-in profile, or nil when signed out.
func (c *Connector) CurrentUser() *types.GoogleUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Connector) services() (*drivev3.Service, *sheetsv4.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drive == nil {
		return nil, nil, ErrNotAuthenticated
	}
	return c.drive, c.sheets, nil
}

// BuildQuery returns the Drive search expression for an optional name
// fragment.
func BuildQuery(name string) string {
	q := FileFilter
	if name = strings.TrimSpace(name); name != "" {
		name = strings.ReplaceAll(name, `\`, `\\`)
		name = strings.ReplaceAll(name, `'`, `\'`)
		q += " and name contains '" + name + "'"
	}
	return q
}

// FindFiles lists parcel files, newest first, at most PageSize of them.
func (c *Connector) FindFiles(ctx context.Context, name string) ([]types.DriveFile, error) {
	dsvc, _, err := c.services()
	if err != nil {
		return nil, err
	}
	done := observe("list")
	list, err := dsvc.Files.List().
		Q(BuildQuery(name)).
		Fields(listFields).
		OrderBy("modifiedTime desc").
		PageSize(PageSize).
		Context(ctx).
		Do()
	done(err)
	if err != nil {
		c.log.Warn("drive_list_failed", zap.Error(err))
		return nil, fmt.Errorf("list files: %w", err)
	}

	files := make([]types.DriveFile, 0, len(list.Files))
	for _, f := range list.Files {
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		files = append(files, types.DriveFile{
			ID:           f.Id,
			Name:         f.Name,
			Size:         f.Size,
			ModifiedTime: modified,
			MimeType:     f.MimeType,
		})
	}
	c.log.Debug("drive_list_ok", zap.String("query", name), zap.Int("files", len(files)))
	return files, nil
}

// DownloadFile returns the raw content of a file.
func (c *Connector) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	dsvc, _, err := c.services()
	if err != nil {
		return nil, err
	}
	done := observe("download")
	resp, err := dsvc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		done(err)
		c.log.Warn("drive_download_failed", zap.String("file_id", id), zap.Error(err))
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	c.log.Debug("drive_download_ok", zap.String("file_id", id), zap.Int("bytes", len(data)))
	return data, nil
}

// GetSheetData reads a cell range as rows of strings. An empty range means
// DefaultRange.
func (c *Connector) GetSheetData(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	_, ssvc, err := c.services()
	if err != nil {
		return nil, err
	}
	if rng == "" {
		rng = DefaultRange
	}
	done := observe("sheet")
	vr, err := ssvc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	done(err)
	if err != nil {
		c.log.Warn("drive_sheet_failed", zap.String("sheet_id", spreadsheetID), zap.Error(err))
		return nil, fmt.Errorf("read sheet %s: %w", spreadsheetID, err)
	}

	rows := make([][]string, 0, len(vr.Values))
	for _, row := range vr.Values {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell != nil {
				cells[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, cells)
	}
	c.log.Debug("drive_sheet_ok", zap.String("sheet_id", spreadsheetID), zap.Int("rows", len(rows)))
	return rows, nil
}

// observe counts a provider call and returns a func recording its outcome.
func observe(op string) func(error) {
	start := time.Now()
	metrics.DriveRequestsTotal.WithLabelValues(op).Inc()
	return func(err error) {
		metrics.DriveDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.DriveFailTotal.WithLabelValues(op).Inc()
		}
	}
}
