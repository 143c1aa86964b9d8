package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"landplots/internal/config"
)

type fakeProvider struct {
	t         *testing.T
	lastQuery string
	calls     int
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls++
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/drive/v3/about":
		_, _ = w.Write([]byte(`{"user": {"displayName": "Олена", "emailAddress": "olena@example.com", "photoLink": "https://example.com/p.png"}}`))
	case r.URL.Path == "/drive/v3/files":
		q := r.URL.Query()
		f.lastQuery = q.Get("q")
		assert.Equal(f.t, "modifiedTime desc", q.Get("orderBy"))
		assert.Equal(f.t, "50", q.Get("pageSize"))
		_, _ = w.Write([]byte(`{"files": [
			{"id": "f1", "name": "kyiv.geojson", "size": "2048", "modifiedTime": "2024-03-01T10:00:00Z", "mimeType": "application/json"},
			{"id": "f2", "name": "plots.csv", "mimeType": "text/csv"}
		]}`))
	case r.URL.Path == "/drive/v3/files/f2":
		assert.Equal(f.t, "media", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("cadastral_number,coordinates\n"))
	case strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1/values/"):
		assert.Equal(f.t, "/v4/spreadsheets/sheet-1/values/Sheet1!A:Z", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":  "Sheet1!A1:B3",
			"values": [][]any{{"cadastral_number", "area"}, {"80:01", 1.5}, {"80:02"}},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestConnector(t *testing.T) (*Connector, *fakeProvider, string) {
	t.Helper()
	fake := &fakeProvider{t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokenFile := filepath.Join(t.TempDir(), "token.json")
	cfg := config.GoogleConfig{
		APIKey:      "key",
		ClientID:    "client",
		RedirectURL: "http://localhost:0/oauth-callback",
		TokenFile:   tokenFile,
	}
	c := New(cfg, nil,
		WithAuthenticator(StaticToken{Tok: &oauth2.Token{AccessToken: "at", TokenType: "Bearer"}}),
		WithHTTPClient(srv.Client()),
		WithEndpoints(srv.URL+"/drive/v3/", srv.URL+"/"),
	)
	return c, fake, tokenFile
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, FileFilter, BuildQuery(""))
	assert.Equal(t, FileFilter+" and name contains 'kyiv'", BuildQuery(" kyiv "))
	assert.Equal(t, FileFilter+` and name contains 'o\'brien'`, BuildQuery("o'brien"))
}

func TestInitialize_RejectsPlaceholders(t *testing.T) {
	c := New(config.GoogleConfig{APIKey: config.PlaceholderAPIKey, ClientID: config.PlaceholderClientID}, nil)
	assert.False(t, c.ConfigValid())
	assert.False(t, c.Initialize(context.Background()))

	ok, err := c.SignIn(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestGuards_NoNetworkWithoutSession(t *testing.T) {
	c, fake, _ := newTestConnector(t)
	ctx := context.Background()
	require.True(t, c.Initialize(ctx))
	require.True(t, c.Initialize(ctx))

	_, err := c.FindFiles(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.DownloadFile(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.GetSheetData(ctx, "sheet-1", "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, fake.calls)
	assert.Nil(t, c.CurrentUser())
}

func TestSessionLifecycle(t *testing.T) {
	c, fake, tokenFile := newTestConnector(t)
	ctx := context.Background()
	require.True(t, c.Initialize(ctx))

	ok, err := c.SignIn(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, c.SignedIn())
	assert.FileExists(t, tokenFile)

	user := c.CurrentUser()
	require.NotNil(t, user)
	assert.Equal(t, "olena@example.com", user.Email)
	assert.Equal(t, "Олена", user.Name)

	files, err := c.FindFiles(ctx, "kyiv")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, BuildQuery("kyiv"), fake.lastQuery)
	assert.Equal(t, int64(2048), files[0].Size)
	assert.Equal(t, 2024, files[0].ModifiedTime.Year())
	assert.True(t, files[1].ModifiedTime.IsZero())

	data, err := c.DownloadFile(ctx, "f2")
	require.NoError(t, err)
	assert.Equal(t, "cadastral_number,coordinates\n", string(data))

	rows, err := c.GetSheetData(ctx, "sheet-1", "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"cadastral_number", "area"}, {"80:01", "1.5"}, {"80:02"}}, rows)

	_, err = c.DownloadFile(ctx, "missing")
	assert.Error(t, err)

	require.NoError(t, c.SignOut(ctx))
	assert.False(t, c.SignedIn())
	assert.Nil(t, c.CurrentUser())
	_, statErr := os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSignIn_ReusesCachedToken(t *testing.T) {
	c, _, tokenFile := newTestConnector(t)
	require.NoError(t, TokenStore{Path: tokenFile}.Save(&oauth2.Token{AccessToken: "cached"}))
	c.auth = StaticToken{}

	require.True(t, c.Initialize(context.Background()))
	ok, err := c.SignIn(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignIn_AuthenticatorFailure(t *testing.T) {
	c, _, tokenFile := newTestConnector(t)
	c.auth = StaticToken{}

	require.True(t, c.Initialize(context.Background()))
	ok, err := c.SignIn(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, c.SignedIn())
	assert.NoFileExists(t, tokenFile)
}

func TestTokenStore(t *testing.T) {
	s := TokenStore{Path: filepath.Join(t.TempDir(), "nested", "tok.json")}
	tok, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, s.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	tok, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "r", tok.RefreshToken)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	var none TokenStore
	tok, err = none.Load()
	assert.NoError(t, err)
	assert.Nil(t, tok)
}
