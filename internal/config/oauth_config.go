package config

import "time"

type OAuthConfig interface {
	GetOAuthAuthorizePath() string
	GetOAuthCallbackAddress() string
	GetOAuthCallbackPath() string
	GetOAuthLoginTimeout() time.Duration
	GetOAuthStateLength() int
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetOAuthAuthorizePath is the backend path that starts a provider login; "{provider}" is substituted.
func (OAuth) GetOAuthAuthorizePath() string {
	return GetEnv("OAUTH_AUTHORIZE_PATH", "/oauth2/authorization/{provider}")
}

func (OAuth) GetOAuthCallbackAddress() string {
	return GetEnv("OAUTH_CALLBACK_ADDRESS", "127.0.0.1:8089")
}

func (OAuth) GetOAuthCallbackPath() string {
	return GetEnv("OAUTH_CALLBACK_PATH", "/oauth/callback")
}

func (OAuth) GetOAuthLoginTimeout() time.Duration {
	return GetEnvDuration("OAUTH_LOGIN_TIMEOUT", 2*time.Minute)
}

func (OAuth) GetOAuthStateLength() int {
	return 32 // 32 bytes = 256 bits
}
