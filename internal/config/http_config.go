package config

import "time"

type HTTPConfig interface {
	GetRequestTimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
}

type HTTP struct{}

var _ HTTPConfig = HTTP{}

func (HTTP) GetRequestTimeout() time.Duration {
	return GetEnvDuration("REQUEST_TIMEOUT", 15*time.Second)
}

// GetRateLimit is the sustained requests per second, zero disables limiting
func (HTTP) GetRateLimit() float64 {
	return GetEnvFloat("RATE_LIMIT", 0)
}

func (HTTP) GetRateBurst() int {
	return GetEnvInt("RATE_BURST", 10)
}
