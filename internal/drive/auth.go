package drive

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Authenticator produces an OAuth token for cfg, typically by sending the
// user through a consent screen.
type Authenticator interface {
	Token(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// StaticToken is an Authenticator that always hands out the same token.
type StaticToken struct{ Tok *oauth2.Token }

func (s StaticToken) Token(context.Context, *oauth2.Config) (*oauth2.Token, error) {
	if s.Tok == nil {
		return nil, errors.New("no token configured")
	}
	return s.Tok, nil
}

// LoopbackAuthenticator runs the installed-app flow: it opens the consent
// page in a browser and waits on the redirect URL for the authorization code.
type LoopbackAuthenticator struct {
	Log *zap.Logger
	// Open shows the consent URL to the user. Defaults to the system browser.
	Open func(authURL string) error
}

const successPage = `<html>
<head><title>landplots</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1 style="color: #407E6D;">Авторизацію завершено</h1>
<p>Можна закрити цю вкладку.</p>
<script>window.close();</script>
</body>
</html>`

func (a LoopbackAuthenticator) Token(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "Invalid state", http.StatusBadRequest)
			errCh <- errors.New("invalid state received")
		case q.Get("error") != "":
			http.Error(w, "Auth failed: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("auth failed: %s", q.Get("error"))
		case q.Get("code") == "":
			http.Error(w, "No code received", http.StatusBadRequest)
			errCh <- errors.New("no code received")
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(successPage))
			codeCh <- q.Get("code")
		}
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	open := a.Open
	if open == nil {
		open = openBrowser
	}
	if err := open(authURL); err != nil {
		if a.Log != nil {
			a.Log.Warn("drive_browser_open_failed", zap.String("url", authURL), zap.Error(err))
		}
	}

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func openBrowser(u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	case "darwin":
		cmd = exec.Command("open", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	return cmd.Start()
}

// TokenStore keeps the OAuth token on disk between runs. An empty path
// disables caching.
type TokenStore struct {
	Path string
}

// Load returns the cached token, or nil when there is none.
func (s TokenStore) Load() (*oauth2.Token, error) {
	if s.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.Path, err)
	}
	return &tok, nil
}

// Save writes tok with owner-only permissions.
func (s TokenStore) Save(tok *oauth2.Token) error {
	if s.Path == "" || tok == nil {
		return nil
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

// Clear removes the cached token.
func (s TokenStore) Clear() error {
	if s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
