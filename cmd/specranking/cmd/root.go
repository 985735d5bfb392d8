package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/specranking-client/app"
	"github.com/jrsteele09/specranking-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var verbose = false
var configFile = ""

var (
	rootCmd = &cobra.Command{
		Use:           "specranking",
		Short:         "SpecRanking command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if err := config.LoadFile(configFile); err != nil {
				return err
			}
			setupLogging(config.New())
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringVarP(&configFile, "config-file", "f", "", "config file (yaml, json or toml)")
	flags.String("api", "", "SpecRanking API base URL")
	flags.String("token-store", "", "token store backend: file, sqlite or redis")
	flags.String("data-folder", "", "folder for the token file and sqlite database")

	for key, name := range map[string]string{
		"API_BASE_URL": "api",
		"TOKEN_STORE":  "token-store",
		"DATA_FOLDER":  "data-folder",
	} {
		cobra.CheckErr(config.BindPFlag(key, flags.Lookup(name)))
	}
}

func setupLogging(cfg config.EnvConfig) {
	logLevel, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || cfg.GetLogLevel() == "" {
		logLevel = zerolog.InfoLevel
	}
	if verbose {
		logLevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if cfg.GetPrettyLogs() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

// withApp builds the client, resumes any persisted session and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, config.New())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Err(err).Msg("Closing token store failed")
		}
	}()

	a.Session.Init(ctx)
	return fn(ctx, a)
}
