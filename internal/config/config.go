package config

type Config interface {
	EnvConfig
	HTTPConfig
	SessionConfig
	StoreConfig
	BookmarkConfig
	OAuthConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetAPIBaseURL() string
	GetDataFolder() string
	GetLogLevel() string
	GetPrettyLogs() bool
}

type mainConfig struct {
	EnvVars
	HTTP
	Session
	Store
	Bookmarks
	OAuth
}

func New() Config {
	return mainConfig{}
}
