package session_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/specranking-client/api"
	"github.com/jrsteele09/specranking-client/api/apifake"
	"github.com/jrsteele09/specranking-client/httpclient"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/metrics"
	"github.com/jrsteele09/specranking-client/session"
	"github.com/jrsteele09/specranking-client/token/store/storefake"
	"github.com/jrsteele09/specranking-client/users"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func mintToken(t *testing.T, userID int64, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type fakeTimer struct {
	s  *fakeScheduler
	id int
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.events = append(t.s.events, fmt.Sprintf("stop %d", t.id))
	return true
}

// fakeScheduler records arm/cancel calls and keeps the callbacks for manual firing.
type fakeScheduler struct {
	mu     sync.Mutex
	events []string
	delays []time.Duration
	funcs  []func()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) session.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
	id := len(s.funcs)
	s.events = append(s.events, fmt.Sprintf("schedule %d", id))
	return &fakeTimer{s: s, id: id}
}

func (s *fakeScheduler) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *fakeScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *fakeScheduler) Fire(i int) {
	s.mu.Lock()
	f := s.funcs[i]
	s.mu.Unlock()
	f()
}

type fakeTransport struct {
	mu            sync.Mutex
	authToken     string
	setupCalls    int
	installed     bool
	credentials   httpclient.CredentialsFunc
	refresh       httpclient.RefreshFunc
	onAuthFailure func(generation uint64)
}

func (t *fakeTransport) SetAuthToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authToken = token
}

func (t *fakeTransport) SetupInterceptors(credentials httpclient.CredentialsFunc, refresh httpclient.RefreshFunc, onAuthFailure func(uint64)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setupCalls++
	if t.installed {
		return false
	}
	t.installed = true
	t.credentials = credentials
	t.refresh = refresh
	t.onAuthFailure = onAuthFailure
	return true
}

func (t *fakeTransport) AuthToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authToken
}

type fixture struct {
	api       *apifake.FakeAPI
	transport *fakeTransport
	store     *storefake.FakeTokenStore
	scheduler *fakeScheduler
	metrics   *metrics.Metrics
	manager   *session.Manager
}

func newFixture(t *testing.T, tokenStore *storefake.FakeTokenStore) *fixture {
	t.Helper()
	f := &fixture{
		api:       apifake.NewFakeAPI(),
		transport: &fakeTransport{},
		store:     tokenStore,
		scheduler: &fakeScheduler{},
		metrics:   metrics.New(nil),
	}
	f.api.AddProfile(&users.Profile{ID: 7, Nickname: "kim"})
	f.manager = session.New(f.api, f.transport, f.store,
		session.WithNowFunc(func() time.Time { return testNow }),
		session.WithScheduler(f.scheduler),
		session.WithMetrics(f.metrics),
	)
	return f
}

func TestInitWithoutToken(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())

	state := f.manager.Init(context.Background())
	require.Equal(t, session.Anonymous, state.Phase)
	require.False(t, state.IsLoggedIn)
	require.False(t, state.Loading)
	require.Equal(t, 0, f.api.Calls("GetUser"))
	require.Empty(t, f.scheduler.Events())
}

func TestInitResumesSession(t *testing.T) {
	tok := mintToken(t, 7, testNow.Add(10*time.Minute))
	f := newFixture(t, storefake.NewFakeTokenStoreWith(tok))

	var started int
	f.manager.OnSessionStarted(func(context.Context) { started++ })

	state := f.manager.Init(context.Background())
	require.Equal(t, session.Authenticated, state.Phase)
	require.True(t, state.IsLoggedIn)
	require.False(t, state.Loading)
	require.Equal(t, tok, state.AccessToken)
	require.Equal(t, "kim", state.User.Nickname)
	require.Equal(t, tok, f.transport.AuthToken())
	require.Equal(t, []time.Duration{540 * time.Second}, f.scheduler.Delays())
	require.True(t, state.TimerArmed)
	require.Equal(t, 1, started)
}

func TestInitDiscardsMalformedToken(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStoreWith("not-a-jwt"))

	state := f.manager.Init(context.Background())
	require.Equal(t, session.Anonymous, state.Phase)
	_, ok := f.store.Token()
	require.False(t, ok)
	require.Equal(t, 0, f.api.Calls("GetUser"))
}

func TestInitProfileFailureDiscardsToken(t *testing.T) {
	tok := mintToken(t, 7, testNow.Add(10*time.Minute))
	f := newFixture(t, storefake.NewFakeTokenStoreWith(tok))
	f.api.GetUserErr = errors.ErrRequestFailed

	state := f.manager.Init(context.Background())
	require.Equal(t, session.Anonymous, state.Phase)
	require.False(t, state.IsLoggedIn)
	require.Empty(t, state.AccessToken)
	require.Empty(t, f.transport.AuthToken())
	_, ok := f.store.Token()
	require.False(t, ok)
	require.False(t, state.TimerArmed)
}

func TestInitInstallsInterceptorsOnce(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())

	f.manager.Init(context.Background())
	f.manager.Init(context.Background())
	require.Equal(t, 1, f.transport.setupCalls)
	require.NotNil(t, f.transport.refresh)
}

func TestLoginSupersedesTimer(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()

	require.NoError(t, f.manager.Login(ctx, &users.Profile{ID: 7}, mintToken(t, 7, testNow.Add(10*time.Minute))))
	require.NoError(t, f.manager.Login(ctx, &users.Profile{ID: 7}, mintToken(t, 7, testNow.Add(20*time.Minute))))

	require.Equal(t, []string{"schedule 1", "stop 1", "schedule 2"}, f.scheduler.Events())
	require.Equal(t, []time.Duration{540 * time.Second, 1140 * time.Second}, f.scheduler.Delays())
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	require.ErrorIs(t, f.manager.Login(context.Background(), nil, ""), errors.ErrInvalidToken)
	require.Equal(t, session.Unresolved, f.manager.State().Phase)
}

func TestLoginPersistsBeforeListeners(t *testing.T) {
	tokenStore := storefake.NewFakeTokenStore()
	f := newFixture(t, tokenStore)
	tok := mintToken(t, 7, testNow.Add(10*time.Minute))

	var seenStored string
	var seenState session.State
	f.manager.OnSessionStarted(func(context.Context) {
		seenStored, _ = tokenStore.Token()
		seenState = f.manager.State()
	})

	require.NoError(t, f.manager.Login(context.Background(), &users.Profile{ID: 7}, tok))
	require.Equal(t, tok, seenStored)
	require.True(t, seenState.IsLoggedIn)
	require.Equal(t, session.Authenticated, seenState.Phase)
	require.Equal(t, tok, f.transport.AuthToken())
}

func TestLoginStoreFailure(t *testing.T) {
	tokenStore := storefake.NewFakeTokenStore()
	tokenStore.SetErr = errors.ErrInternal
	f := newFixture(t, tokenStore)

	err := f.manager.Login(context.Background(), nil, mintToken(t, 7, testNow.Add(time.Hour)))
	require.ErrorIs(t, err, errors.ErrInternal)
	require.False(t, f.manager.State().IsLoggedIn)
	require.Empty(t, f.transport.AuthToken())
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	tok := mintToken(t, 7, testNow.Add(10*time.Minute))

	var ended int
	f.manager.OnSessionEnded(func() { ended++ })

	require.NoError(t, f.manager.Login(ctx, &users.Profile{ID: 7}, tok))
	f.manager.Logout(ctx)
	first := f.manager.State()
	f.manager.Logout(ctx)
	second := f.manager.State()

	for _, s := range []session.State{first, second} {
		require.Empty(t, s.AccessToken)
		require.Nil(t, s.User)
		require.False(t, s.IsLoggedIn)
		require.False(t, s.TimerArmed)
		require.Equal(t, session.Anonymous, s.Phase)
	}
	require.Equal(t, []string{tok}, f.api.Revoked())
	require.Equal(t, 2, ended)
	require.Contains(t, f.scheduler.Events(), "stop 1")
	_, ok := f.store.Token()
	require.False(t, ok)
}

func TestLogoutIgnoresRevokeFailure(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	f.api.RevokeErr = errors.ErrTransport
	ctx := context.Background()

	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(time.Hour))))
	f.manager.Logout(ctx)
	require.False(t, f.manager.State().IsLoggedIn)
}

func TestSetToken(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, &users.Profile{ID: 7}, mintToken(t, 7, testNow.Add(10*time.Minute))))

	next := mintToken(t, 7, testNow.Add(30*time.Minute))
	require.NoError(t, f.manager.SetToken(ctx, next))
	state := f.manager.State()
	require.Equal(t, next, state.AccessToken)
	require.True(t, state.IsLoggedIn)
	require.Equal(t, next, f.transport.AuthToken())
	stored, _ := f.store.Token()
	require.Equal(t, next, stored)
	require.Equal(t, []string{"schedule 1", "stop 1", "schedule 2"}, f.scheduler.Events())

	require.NoError(t, f.manager.SetToken(ctx, ""))
	require.False(t, f.manager.State().IsLoggedIn)
	require.Empty(t, f.transport.AuthToken())
}

func TestSetTokenWithoutSession(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	f.manager.Init(context.Background())

	err := f.manager.SetToken(context.Background(), mintToken(t, 7, testNow.Add(time.Hour)))
	require.ErrorIs(t, err, errors.ErrNotLoggedIn)
	require.Empty(t, f.manager.State().AccessToken)
	require.Empty(t, f.transport.AuthToken())
	_, ok := f.store.Token()
	require.False(t, ok)
}

func TestSetTokenWithUndecodableTokenSkipsTimer(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))

	require.NoError(t, f.manager.SetToken(ctx, "opaque"))
	require.Equal(t, "opaque", f.manager.State().AccessToken)
	require.False(t, f.manager.State().TimerArmed)
}

func TestRefreshAuthTokenSuccess(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))

	next := mintToken(t, 7, testNow.Add(time.Hour))
	f.api.SetRefreshTokens(next)

	got, err := f.manager.RefreshAuthToken(ctx)
	require.NoError(t, err)
	require.Equal(t, next, got)
	require.Equal(t, next, f.manager.State().AccessToken)
	require.True(t, f.manager.State().IsLoggedIn)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshSuccess)))
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	for name, refreshErr := range map[string]error{
		"unauthorized":   errors.Wrapf(errors.ErrRefreshFailed, "status 401"),
		"missing header": errors.Wrapf(errors.ErrRefreshFailed, "%v", errors.ErrMissingBearer),
		"transport":      errors.ErrTransport,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, storefake.NewFakeTokenStore())
			ctx := context.Background()
			require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))
			f.api.RefreshErr = refreshErr

			_, err := f.manager.RefreshAuthToken(ctx)
			require.ErrorIs(t, err, errors.ErrRefreshFailed)

			state := f.manager.State()
			require.False(t, state.IsLoggedIn)
			require.Empty(t, state.AccessToken)
			_, ok := f.store.Token()
			require.False(t, ok)
			require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshFailure)))
		})
	}
}

func TestRefreshAfterLogoutIsDiscarded(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))

	f.api.SetRefreshTokens(mintToken(t, 7, testNow.Add(time.Hour)))
	f.api.BeforeRefresh = func() { f.manager.Logout(ctx) }

	_, err := f.manager.RefreshAuthToken(ctx)
	require.ErrorIs(t, err, errors.ErrStaleSession)

	state := f.manager.State()
	require.False(t, state.IsLoggedIn)
	require.Empty(t, state.AccessToken)
	require.Empty(t, f.transport.AuthToken())
	_, ok := f.store.Token()
	require.False(t, ok)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshStale)))
}

func TestRefreshWithoutSessionIsRefused(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	f.api.SetRefreshTokens(mintToken(t, 7, testNow.Add(time.Hour)))

	_, err := f.manager.RefreshAuthToken(ctx)
	require.ErrorIs(t, err, errors.ErrStaleSession)

	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))
	f.manager.Logout(ctx)
	var ended int
	f.manager.OnSessionEnded(func() { ended++ })

	_, err = f.manager.RefreshAuthToken(ctx)
	require.ErrorIs(t, err, errors.ErrStaleSession)

	state := f.manager.State()
	require.Equal(t, session.Anonymous, state.Phase)
	require.Empty(t, state.AccessToken)
	require.False(t, state.TimerArmed)
	require.Empty(t, f.transport.AuthToken())
	_, ok := f.store.Token()
	require.False(t, ok)
	require.Equal(t, 0, f.api.Calls("RefreshToken"))
	require.Equal(t, 0, ended)
}

func TestRefreshForEndedGenerationIsRefused(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	f.manager.Init(ctx)
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))
	_, sentUnder := f.transport.credentials()

	fresh := mintToken(t, 7, testNow.Add(20*time.Minute))
	f.manager.Logout(ctx)
	require.NoError(t, f.manager.Login(ctx, nil, fresh))
	f.api.SetRefreshTokens(mintToken(t, 7, testNow.Add(time.Hour)))

	_, err := f.transport.refresh(ctx, sentUnder)
	require.ErrorIs(t, err, errors.ErrStaleSession)
	require.Equal(t, fresh, f.manager.State().AccessToken)
	require.Equal(t, 0, f.api.Calls("RefreshToken"))
}

func TestAuthFailureOnlyEndsItsOwnSession(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	f.manager.Init(ctx)
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))
	_, first := f.transport.credentials()

	var ended int
	f.manager.OnSessionEnded(func() { ended++ })
	f.manager.Logout(ctx)
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(20*time.Minute))))
	_, second := f.transport.credentials()

	f.transport.onAuthFailure(first)
	require.True(t, f.manager.State().IsLoggedIn)
	require.Equal(t, 1, ended)

	f.transport.onAuthFailure(second)
	require.False(t, f.manager.State().IsLoggedIn)
	require.Equal(t, 2, ended)
}

func TestStaleRefreshFailureKeepsNewSession(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))

	fresh := mintToken(t, 7, testNow.Add(time.Hour))
	f.api.RefreshErr = errors.ErrTransport
	f.api.BeforeRefresh = func() {
		f.manager.Logout(ctx)
		require.NoError(t, f.manager.Login(ctx, nil, fresh))
	}

	_, err := f.manager.RefreshAuthToken(ctx)
	require.ErrorIs(t, err, errors.ErrStaleSession)
	require.True(t, f.manager.State().IsLoggedIn)
	require.Equal(t, fresh, f.manager.State().AccessToken)
}

func TestConcurrentRefreshesShareOneCall(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))

	next := mintToken(t, 7, testNow.Add(time.Hour))
	f.api.SetRefreshTokens(next)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.api.BeforeRefresh = func() {
		once.Do(func() { close(started) })
		<-release
	}

	const callers = 5
	results := make(chan string, callers)
	go func() {
		tok, _ := f.manager.RefreshAuthToken(ctx)
		results <- tok
	}()
	<-started
	for i := 1; i < callers; i++ {
		go func() {
			tok, _ := f.manager.RefreshAuthToken(ctx)
			results <- tok
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		require.Equal(t, next, <-results)
	}
	require.Equal(t, 1, f.api.Calls("RefreshToken"))
}

func TestTimerFiringRefreshes(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))

	next := mintToken(t, 7, testNow.Add(time.Hour))
	f.api.SetRefreshTokens(next)
	f.scheduler.Fire(0)

	require.Equal(t, next, f.manager.State().AccessToken)
	require.Equal(t, []time.Duration{540 * time.Second, 3540 * time.Second}, f.scheduler.Delays())
}

func TestTimerFromEndedSessionIsIgnored(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))
	f.manager.Logout(ctx)

	f.scheduler.Fire(0)
	require.Equal(t, 0, f.api.Calls("RefreshToken"))
}

func TestExpiringTokenRefreshesImmediately(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	next := mintToken(t, 7, testNow.Add(time.Hour))
	f.api.SetRefreshTokens(next)

	require.NoError(t, f.manager.Login(context.Background(), nil, mintToken(t, 7, testNow.Add(30*time.Second))))
	require.Eventually(t, func() bool {
		return f.manager.State().AccessToken == next
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.api.Calls("RefreshToken"))
}

func TestRefreshProfile(t *testing.T) {
	f := newFixture(t, storefake.NewFakeTokenStore())
	ctx := context.Background()

	_, err := f.manager.RefreshProfile(ctx)
	require.ErrorIs(t, err, errors.ErrNotLoggedIn)

	require.NoError(t, f.manager.Login(ctx, nil, mintToken(t, 7, testNow.Add(10*time.Minute))))
	require.True(t, f.manager.State().IsLoggedIn)
	require.Nil(t, f.manager.State().User)

	profile, err := f.manager.RefreshProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, "kim", profile.Nickname)
	require.Equal(t, profile, f.manager.State().User)
}

// An expired 401 is refreshed through the session and the request replayed with the new token.
func TestExpiredRequestRefreshAndReplay(t *testing.T) {
	oldTok := mintToken(t, 7, testNow.Add(10*time.Minute))
	newTok := mintToken(t, 7, testNow.Add(time.Hour))

	var mu sync.Mutex
	var dataAuths []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Authorization", "Bearer "+newTok)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/data", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dataAuths = append(dataAuths, r.Header.Get("Authorization"))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+newTok {
			w.Header().Set(httpclient.HeaderTokenError, httpclient.TokenErrorExpired)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"isSuccess":true}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := httpclient.New(server.URL)
	tokenStore := storefake.NewFakeTokenStore()
	m := session.New(api.New(adapter), adapter, tokenStore,
		session.WithNowFunc(func() time.Time { return testNow }),
		session.WithScheduler(&fakeScheduler{}),
	)
	ctx := context.Background()
	m.Init(ctx)
	require.NoError(t, m.Login(ctx, &users.Profile{ID: 7}, oldTok))

	req, err := adapter.NewRequest(ctx, http.MethodGet, "/api/data", nil)
	require.NoError(t, err)
	resp, err := adapter.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"Bearer " + oldTok, "Bearer " + newTok}, dataAuths)
	require.Equal(t, newTok, m.State().AccessToken)
	stored, _ := tokenStore.Token()
	require.Equal(t, newTok, stored)
}

// A refresh that the backend rejects logs the session out and returns the original 401.
func TestExpiredRequestRefreshFailureLogsOut(t *testing.T) {
	oldTok := mintToken(t, 7, testNow.Add(10*time.Minute))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("DELETE /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(httpclient.HeaderTokenError, httpclient.TokenErrorExpired)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := httpclient.New(server.URL)
	tokenStore := storefake.NewFakeTokenStore()
	m := session.New(api.New(adapter), adapter, tokenStore,
		session.WithNowFunc(func() time.Time { return testNow }),
		session.WithScheduler(&fakeScheduler{}),
	)
	ctx := context.Background()
	m.Init(ctx)
	require.NoError(t, m.Login(ctx, &users.Profile{ID: 7}, oldTok))
	var ended int
	m.OnSessionEnded(func() { ended++ })

	req, err := adapter.NewRequest(ctx, http.MethodGet, "/api/data", nil)
	require.NoError(t, err)
	resp, err := adapter.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, m.State().IsLoggedIn)
	require.Equal(t, 1, ended)
	require.Empty(t, adapter.AuthToken())
	_, ok := tokenStore.Token()
	require.False(t, ok)
}

// A request sent before logout whose expired 401 arrives afterwards must not bring
// the token back.
func TestExpiredResponseAfterLogoutDoesNotResurrectToken(t *testing.T) {
	oldTok := mintToken(t, 7, testNow.Add(10*time.Minute))
	newTok := mintToken(t, 7, testNow.Add(time.Hour))

	var m *session.Manager
	var refreshCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		w.Header().Set("Authorization", "Bearer "+newTok)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/data", func(w http.ResponseWriter, r *http.Request) {
		m.Logout(r.Context())
		w.Header().Set(httpclient.HeaderTokenError, httpclient.TokenErrorExpired)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := httpclient.New(server.URL)
	tokenStore := storefake.NewFakeTokenStore()
	m = session.New(api.New(adapter), adapter, tokenStore,
		session.WithNowFunc(func() time.Time { return testNow }),
		session.WithScheduler(&fakeScheduler{}),
	)
	ctx := context.Background()
	m.Init(ctx)
	require.NoError(t, m.Login(ctx, &users.Profile{ID: 7}, oldTok))

	req, err := adapter.NewRequest(ctx, http.MethodGet, "/api/data", nil)
	require.NoError(t, err)
	resp, err := adapter.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	state := m.State()
	require.Equal(t, session.Anonymous, state.Phase)
	require.Empty(t, state.AccessToken)
	require.False(t, state.TimerArmed)
	require.Empty(t, adapter.AuthToken())
	_, ok := tokenStore.Token()
	require.False(t, ok)
	require.Equal(t, 0, refreshCalls)
}
