package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix     = "SPECRANKING"
	appNameVar    = "APP_NAME"
	apiBaseURLVar = "API_BASE_URL"
	folderEnvVar  = "DATA_FOLDER"
	logLevelVar   = "LOG_LEVEL"
	prettyLogsVar = "PRETTY_LOGS"
)

var v = newViper()

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFile merges a config file (yaml, json, toml) into the environment lookup.
// Environment variables keep precedence over file values.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config.LoadFile %s: %w", path, err)
	}
	return nil
}

// Set overrides a single value, typically from a bound command line flag.
func Set(key string, value any) {
	v.Set(key, value)
}

// BindPFlag makes a command line flag override key once the flag has been set.
func BindPFlag(key string, flag *pflag.Flag) error {
	return v.BindPFlag(key, flag)
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "SpecRanking")
}

// GetAPIBaseURL returns the base URL of the SpecRanking REST backend (e.g., "https://api.specranking.net")
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLVar, "http://localhost:8080"), "/")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetPrettyLogs reports whether logs are written in the human readable console format.
func (EnvVars) GetPrettyLogs() bool {
	return GetEnvBool(prettyLogsVar, true)
}

func (EnvVars) GetEnv() string {
	return GetEnv("ENV", "DEV")
}

func GetEnv(envVar, defaultValue string) string {
	value := v.GetString(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func GetEnvFloat(envVar string, defaultValue float64) float64 {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func GetEnvBool(envVar string, defaultValue bool) bool {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
