package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jrsteele09/specranking-client/internal/config"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

const clientID = "specranking-cli"

var providerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoginConfig is the configuration a browser login needs.
type LoginConfig interface {
	GetAPIBaseURL() string
	config.OAuthConfig
}

// OpenFunc presents the authorization URL to the user, usually by launching a browser.
type OpenFunc func(authURL string) error

// Flow runs the backend's provider login: the user authenticates in a browser and
// the backend redirects to a loopback listener with the access token.
type Flow struct {
	baseURL       string
	authorizePath string
	callbackAddr  string
	callbackPath  string
	timeout       time.Duration
	stateLength   int
}

func NewFlow(cfg LoginConfig) *Flow {
	return &Flow{
		baseURL:       cfg.GetAPIBaseURL(),
		authorizePath: cfg.GetOAuthAuthorizePath(),
		callbackAddr:  cfg.GetOAuthCallbackAddress(),
		callbackPath:  cfg.GetOAuthCallbackPath(),
		timeout:       cfg.GetOAuthLoginTimeout(),
		stateLength:   cfg.GetOAuthStateLength(),
	}
}

// AuthURL returns the URL that starts a login with provider and redirects to redirectURL.
func (f *Flow) AuthURL(provider, redirectURL, state string) (string, error) {
	if !providerPattern.MatchString(provider) {
		return "", errors.Wrapf(errors.ErrUnknownProvider, "provider %q", provider)
	}
	cfg := xoauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint: xoauth2.Endpoint{
			AuthURL: f.baseURL + strings.ReplaceAll(f.authorizePath, "{provider}", url.PathEscape(provider)),
		},
	}
	return cfg.AuthCodeURL(state, xoauth2.SetAuthURLParam("response_mode", string(QueryResponseMode))), nil
}

// Login waits for the browser login to complete and returns the access token.
func (f *Flow) Login(ctx context.Context, provider string, open OpenFunc) (string, error) {
	if !providerPattern.MatchString(provider) {
		return "", errors.Wrapf(errors.ErrUnknownProvider, "provider %q", provider)
	}

	state, err := generateState(f.stateLength)
	if err != nil {
		return "", errors.Wrapf(err, "generating state")
	}

	listener, err := net.Listen("tcp", f.callbackAddr)
	if err != nil {
		return "", errors.Wrapf(err, "listening for oauth callback on %s", f.callbackAddr)
	}
	redirectURL := "http://" + listener.Addr().String() + f.callbackPath

	authURL, err := f.AuthURL(provider, redirectURL, state)
	if err != nil {
		listener.Close()
		return "", err
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(f.callbackPath, callbackHandler(state, results))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("OAuth callback server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := open(authURL); err != nil {
		log.Warn().Err(err).Str("url", authURL).Msg("Could not open the browser, visit the URL manually")
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	select {
	case result := <-results:
		return result.accessToken, result.err
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrapf(errors.ErrLoginTimeout, "waited %s", f.timeout)
	}
}

func callbackHandler(state string, results chan<- callbackResult) http.HandlerFunc {
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if errorParam := r.FormValue(ParamError); errorParam != "" {
			http.Error(w, fmt.Sprintf("Login failed: %s", errorParam), http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("%w: %s %s", errors.ErrUnauthenticated, errorParam, r.FormValue(ParamErrorDescription))})
			return
		}

		if r.FormValue(ParamState) != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			deliver(callbackResult{err: errors.ErrInvalidState})
			return
		}

		accessToken := strings.TrimSpace(strings.TrimPrefix(r.FormValue(ParamAccessToken), "Bearer "))
		if accessToken == "" {
			http.Error(w, "Missing access token", http.StatusBadRequest)
			deliver(callbackResult{err: errors.ErrMissingBearer})
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Login complete. You can close this window.</body></html>"))
		deliver(callbackResult{accessToken: accessToken})
	}
}

// generateState returns n random bytes encoded as base64url.
func generateState(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
