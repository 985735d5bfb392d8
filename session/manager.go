package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/specranking-client/httpclient"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/metrics"
	"github.com/jrsteele09/specranking-client/token"
	"github.com/jrsteele09/specranking-client/token/store"
	"github.com/jrsteele09/specranking-client/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshMargin = 60 * time.Second
	defaultRevokeTimeout = 5 * time.Second
)

// API is the slice of the backend the session depends on.
type API interface {
	GetUser(ctx context.Context, id int64) (*users.Profile, error)
	RefreshToken(ctx context.Context) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

// Transport is the HTTP adapter the session keeps in step with the current token.
type Transport interface {
	SetAuthToken(token string)
	SetupInterceptors(credentials httpclient.CredentialsFunc, refresh httpclient.RefreshFunc, onAuthFailure func(generation uint64)) bool
}

// Manager owns the access token lifecycle: acquisition, attachment to outgoing
// requests, renewal before expiry and teardown.
//
// Every session start and end bumps the generation. Asynchronous work (refreshes,
// timer firings, profile fetches) is tagged with the generation it was issued for
// and its result is dropped if the generation has moved on.
type Manager struct {
	api       API
	transport Transport
	store     store.Store
	scheduler Scheduler
	metrics   *metrics.Metrics

	refreshMargin time.Duration
	revokeTimeout time.Duration
	nowFunc       func() time.Time

	installOnce  sync.Once
	refreshGroup singleflight.Group

	// opLock serializes login, token updates and logout, including their storage writes.
	opLock sync.Mutex

	lock        sync.RWMutex
	accessToken string
	user        *users.Profile
	isLoggedIn  bool
	loading     bool
	phase       Phase
	generation  uint64
	timer       Timer
	timerSeq    uint64

	listenerLock sync.RWMutex
	onStarted    []func(ctx context.Context)
	onEnded      []func()
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithScheduler(s Scheduler) ManagerOption {
	return func(m *Manager) {
		m.scheduler = s
	}
}

// WithRefreshMargin sets how long before expiry the token is renewed.
func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshMargin = margin
	}
}

func WithRevokeTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.revokeTimeout = timeout
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func New(api API, transport Transport, tokenStore store.Store, options ...ManagerOption) *Manager {
	m := &Manager{
		api:       api,
		transport: transport,
		store:     tokenStore,
		phase:     Unresolved,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.scheduler == nil {
		m.scheduler = timeScheduler{}
	}
	if m.refreshMargin <= 0 {
		m.refreshMargin = defaultRefreshMargin
	}
	if m.revokeTimeout <= 0 {
		m.revokeTimeout = defaultRevokeTimeout
	}
	if m.metrics == nil {
		m.metrics = metrics.New(nil)
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// OnSessionStarted registers fn to run after every login or successful resume.
func (m *Manager) OnSessionStarted(fn func(ctx context.Context)) {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()
	m.onStarted = append(m.onStarted, fn)
}

// OnSessionEnded registers fn to run after every logout, including forced ones.
func (m *Manager) OnSessionEnded(fn func()) {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()
	m.onEnded = append(m.onEnded, fn)
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return State{
		AccessToken: m.accessToken,
		User:        m.user,
		IsLoggedIn:  m.isLoggedIn,
		Loading:     m.loading,
		Phase:       m.phase,
		Generation:  m.generation,
		TimerArmed:  m.timer != nil,
	}
}

// AccessToken returns the current token, empty when there is none.
func (m *Manager) AccessToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.accessToken
}

// Init resolves the session from the persisted token and installs the adapter's
// interceptors. Failures are recovered locally and end in the Anonymous phase.
func (m *Manager) Init(ctx context.Context) State {
	m.installOnce.Do(func() {
		m.transport.SetupInterceptors(m.credentials, m.refreshFor, m.onAuthFailure)
	})

	m.opLock.Lock()
	if m.State().Phase == Authenticated {
		m.opLock.Unlock()
		return m.State()
	}
	gen := m.currentGeneration()
	persisted, err := m.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			log.Err(err).Msg("Reading persisted token failed")
		}
		m.setAnonymous(gen)
		m.opLock.Unlock()
		return m.State()
	}

	claims, err := token.Decode(persisted)
	if err != nil {
		log.Err(err).Msg("Discarding malformed persisted token")
		m.discardStored(ctx)
		m.setAnonymous(gen)
		m.opLock.Unlock()
		return m.State()
	}

	m.transport.SetAuthToken(persisted)
	m.lock.Lock()
	m.accessToken = persisted
	m.loading = true
	m.phase = Resolving
	m.lock.Unlock()
	m.metrics.SessionPhase.WithLabelValues(Resolving.String()).Inc()
	m.opLock.Unlock()

	profile, err := m.api.GetUser(ctx, claims.UserID)

	m.opLock.Lock()
	if m.currentGeneration() != gen {
		m.opLock.Unlock()
		log.Debug().Msg("Session changed while resolving, dropping profile result")
		return m.State()
	}
	if err != nil {
		log.Err(err).Int64("userId", claims.UserID).Msg("Resolving persisted session failed")
		m.discardStored(ctx)
		m.transport.SetAuthToken("")
		m.lock.Lock()
		m.stopTimerLocked()
		m.accessToken = ""
		m.user = nil
		m.isLoggedIn = false
		m.lock.Unlock()
		m.setAnonymous(gen)
		m.opLock.Unlock()
		return m.State()
	}

	m.lock.Lock()
	m.generation++
	m.user = profile
	m.isLoggedIn = true
	m.loading = false
	m.phase = Authenticated
	m.armLocked(m.accessToken, m.generation)
	m.lock.Unlock()
	m.metrics.SessionPhase.WithLabelValues(Authenticated.String()).Inc()
	m.opLock.Unlock()

	m.emitStarted(ctx)
	return m.State()
}

// Login starts a session from an explicit credential exchange. profile may be nil
// when the caller fetches it separately through RefreshProfile.
func (m *Manager) Login(ctx context.Context, profile *users.Profile, accessToken string) error {
	if accessToken == "" {
		return errors.ErrInvalidToken
	}

	m.opLock.Lock()
	if err := m.store.Set(ctx, accessToken); err != nil {
		m.opLock.Unlock()
		return errors.Wrapf(err, "persisting access token")
	}
	m.transport.SetAuthToken(accessToken)

	m.lock.Lock()
	m.generation++
	m.armLocked(accessToken, m.generation)
	m.accessToken = accessToken
	m.user = profile
	m.isLoggedIn = true
	m.loading = false
	m.phase = Authenticated
	m.lock.Unlock()
	m.metrics.SessionPhase.WithLabelValues(Authenticated.String()).Inc()
	m.opLock.Unlock()

	m.emitStarted(ctx)
	return nil
}

// RefreshProfile fetches the profile of the user the current token belongs to.
func (m *Manager) RefreshProfile(ctx context.Context) (*users.Profile, error) {
	m.lock.RLock()
	accessToken, gen := m.accessToken, m.generation
	m.lock.RUnlock()
	if accessToken == "" {
		return nil, errors.ErrNotLoggedIn
	}

	claims, err := token.Decode(accessToken)
	if err != nil {
		return nil, err
	}
	profile, err := m.api.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.generation != gen {
		return nil, errors.ErrStaleSession
	}
	m.user = profile
	return profile, nil
}

// Logout ends the session. Local state is cleared first, then the token is
// revoked remotely on a best-effort basis. Safe to call when logged out.
func (m *Manager) Logout(ctx context.Context) {
	m.endSession(ctx, 0, false)
}

// SetToken replaces the access token of the live session and re-arms the refresh
// timer. An empty token logs out. Without a session it returns errors.ErrNotLoggedIn.
func (m *Manager) SetToken(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		m.Logout(ctx)
		return nil
	}
	err := m.applyToken(ctx, m.currentGeneration(), accessToken)
	if errors.Is(err, errors.ErrStaleSession) {
		return errors.ErrNotLoggedIn
	}
	return err
}

// applyToken stores accessToken if gen is still the current generation and a
// session is live in it.
func (m *Manager) applyToken(ctx context.Context, gen uint64, accessToken string) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	if !m.liveIn(gen) {
		return errors.ErrStaleSession
	}
	if err := m.store.Set(ctx, accessToken); err != nil {
		log.Err(err).Msg("Persisting refreshed token failed")
	}
	m.transport.SetAuthToken(accessToken)

	m.lock.Lock()
	defer m.lock.Unlock()
	m.armLocked(accessToken, gen)
	m.accessToken = accessToken
	return nil
}

// endSession clears the session. When conditional is set it only acts if gen is
// still current, so a stale failure cannot end a newer session.
func (m *Manager) endSession(ctx context.Context, gen uint64, conditional bool) bool {
	m.opLock.Lock()
	if conditional && m.currentGeneration() != gen {
		m.opLock.Unlock()
		return false
	}

	m.discardStored(ctx)
	m.transport.SetAuthToken("")

	m.lock.Lock()
	revoke := m.accessToken
	m.stopTimerLocked()
	m.generation++
	m.accessToken = ""
	m.user = nil
	m.isLoggedIn = false
	m.loading = false
	m.phase = Anonymous
	m.lock.Unlock()
	m.metrics.SessionPhase.WithLabelValues(Anonymous.String()).Inc()
	m.opLock.Unlock()

	m.emitEnded()

	if revoke != "" {
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.revokeTimeout)
		defer cancel()
		if err := m.api.RevokeToken(revokeCtx, revoke); err != nil {
			log.Warn().Err(err).Msg("Token revocation failed")
		}
	}
	return true
}

// onAuthFailure ends the session a rejected request was sent under. A session
// started since then is left alone.
func (m *Manager) onAuthFailure(gen uint64) {
	if m.endSession(context.Background(), gen, true) {
		log.Info().Uint64("generation", gen).Msg("Authentication failed, logged out")
	}
}

// credentials returns the token and the generation it belongs to as one snapshot.
func (m *Manager) credentials() (string, uint64) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.accessToken, m.generation
}

// liveIn reports whether gen is current and holds a session, either resolved or
// still being resolved by Init.
func (m *Manager) liveIn(gen uint64) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation == gen && m.accessToken != "" && (m.phase == Authenticated || m.phase == Resolving)
}

func (m *Manager) setAnonymous(gen uint64) {
	m.lock.Lock()
	if m.generation != gen {
		m.lock.Unlock()
		return
	}
	m.loading = false
	m.phase = Anonymous
	m.lock.Unlock()
	m.metrics.SessionPhase.WithLabelValues(Anonymous.String()).Inc()
}

func (m *Manager) discardStored(ctx context.Context) {
	if err := m.store.Delete(ctx); err != nil {
		log.Err(err).Msg("Removing persisted token failed")
	}
}

func (m *Manager) currentGeneration() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation
}

func (m *Manager) emitStarted(ctx context.Context) {
	m.listenerLock.RLock()
	listeners := append([]func(context.Context){}, m.onStarted...)
	m.listenerLock.RUnlock()
	for _, fn := range listeners {
		fn(ctx)
	}
}

func (m *Manager) emitEnded() {
	m.listenerLock.RLock()
	listeners := append([]func(){}, m.onEnded...)
	m.listenerLock.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}
