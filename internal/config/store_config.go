package config

import "path/filepath"

type StoreConfig interface {
	GetTokenStoreBackend() string
	GetTokenFilePath() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetTokenEncryptionKey() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetTokenStoreBackend is one of "file", "sqlite" or "redis"
func (Store) GetTokenStoreBackend() string {
	return GetEnv("TOKEN_STORE", "file")
}

func (Store) GetTokenFilePath() string {
	return GetEnv("TOKEN_FILE", filepath.Join(EnvVars{}.GetDataFolder(), "session.token"))
}

func (Store) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", filepath.Join(EnvVars{}.GetDataFolder(), "specranking.db"))
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Store) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

// GetTokenEncryptionKey returns a hex encoded 32 byte key; empty stores the token unsealed
func (Store) GetTokenEncryptionKey() string {
	return GetEnv("TOKEN_ENCRYPTION_KEY", "")
}
