package config

import "time"

type SessionConfig interface {
	GetRefreshMargin() time.Duration
	GetTokenStorageKey() string
	GetRevokeTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetRefreshMargin is how long before expiry the access token is silently renewed
func (Session) GetRefreshMargin() time.Duration {
	return GetEnvDuration("REFRESH_MARGIN", 60*time.Second)
}

func (Session) GetTokenStorageKey() string {
	return GetEnv("TOKEN_STORAGE_KEY", "accessToken")
}

func (Session) GetRevokeTimeout() time.Duration {
	return GetEnvDuration("REVOKE_TIMEOUT", 5*time.Second)
}
