package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/metrics"
	"github.com/jrsteele09/specranking-client/token"
	"github.com/rs/zerolog/log"
)

// RefreshAuthToken exchanges the refresh cookie for a new access token. On success
// the token is applied through the same path as SetToken; on failure the session
// is logged out. Concurrent calls within one session share a single remote call.
//
// A result that arrives after the session has ended or been replaced is dropped
// and reported as errors.ErrStaleSession, as is a call made with no live session.
func (m *Manager) RefreshAuthToken(ctx context.Context) (string, error) {
	return m.refreshFor(ctx, m.currentGeneration())
}

// refreshFor refreshes on behalf of generation gen. The HTTP adapter passes the
// generation an expired request was sent under.

func (m *Manager) refreshFor(ctx context.Context, gen uint64) (string, error) {
	v, err, shared := m.refreshGroup.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx), gen)
	})
	if shared {
		log.Debug().Uint64("generation", gen).Msg("Joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, gen uint64) (string, error) {
	if !m.liveIn(gen) {
		m.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshStale).Inc()
		log.Debug().Uint64("generation", gen).Msg("No live session to refresh")
		return "", errors.ErrStaleSession
	}

	newToken, err := m.api.RefreshToken(ctx)
	if err == nil && newToken == "" {
		err = errors.ErrMissingBearer
	}

	if err != nil {
		if !m.endSession(ctx, gen, true) {
			m.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshStale).Inc()
			return "", errors.ErrStaleSession
		}
		m.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshFailure).Inc()
		log.Err(err).Msg("Token refresh failed, session ended")
		return "", fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}

	if err := m.applyToken(ctx, gen, newToken); err != nil {
		m.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshStale).Inc()
		log.Debug().Uint64("generation", gen).Msg("Dropping refreshed token for ended session")
		return "", err
	}
	m.metrics.TokenRefreshes.WithLabelValues(metrics.RefreshSuccess).Inc()
	return newToken, nil
}

// armLocked replaces any pending refresh timer with one that fires refreshMargin
// before accessToken expires. Must be called with m.lock held.
func (m *Manager) armLocked(accessToken string, gen uint64) {
	m.stopTimerLocked()

	claims, err := token.Decode(accessToken)
	if err != nil {
		log.Err(err).Msg("Cannot schedule token refresh")
		return
	}

	seq := m.timerSeq
	fire := func() { m.onTimer(gen, seq) }

	delay := claims.ExpiresIn(m.nowFunc()) - m.refreshMargin
	if delay <= 0 {
		go fire()
		return
	}
	m.timer = m.scheduler.AfterFunc(delay, fire)
}

// stopTimerLocked cancels the pending timer. Bumping timerSeq also disarms a
// firing that already started but has not taken the lock yet.
func (m *Manager) stopTimerLocked() {
	m.timerSeq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) onTimer(gen, seq uint64) {
	m.lock.Lock()
	if m.generation != gen || m.timerSeq != seq {
		m.lock.Unlock()
		return
	}
	m.timer = nil
	m.lock.Unlock()

	if _, err := m.refreshFor(context.Background(), gen); err != nil && !errors.Is(err, errors.ErrStaleSession) {
		log.Err(err).Msg("Scheduled token refresh failed")
	}
}
