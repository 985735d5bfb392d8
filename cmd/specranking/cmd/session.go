package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/jrsteele09/specranking-client/app"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/internal/utils"
	"github.com/jrsteele09/specranking-client/token"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultProvider = "google"

var loginToken = ""

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, refreshCmd)
	loginCmd.Flags().StringVar(&loginToken, "token", "", "log in with an existing access token instead of the browser")
}

var loginCmd = &cobra.Command{
	Use:   "login [provider]",
	Short: "Log in through the browser with an OAuth provider",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := defaultProvider
		if len(args) == 1 {
			provider = args[0]
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			accessToken := loginToken
			if accessToken == "" {
				var err error
				accessToken, err = a.Login.Login(ctx, provider, func(authURL string) error {
					fmt.Fprintf(cmd.ErrOrStderr(), "Opening %s\n", authURL)
					return openBrowser(authURL)
				})
				if err != nil {
					return err
				}
			}

			if err := a.Session.Login(ctx, nil, accessToken); err != nil {
				return err
			}
			profile, err := a.Session.RefreshProfile(ctx)
			if err != nil {
				log.Err(err).Msg("Fetching profile after login failed")
				fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", profile.DisplayName())
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and revoke the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			a.Session.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			state := a.Session.State()
			if !state.IsLoggedIn || state.User == nil {
				return errors.ErrNotLoggedIn
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:      %s (id %d)\n", state.User.DisplayName(), state.User.ID)
			if state.User.JobField != "" {
				fmt.Fprintf(out, "Job field: %s\n", state.User.JobField)
			}
			if state.User.HasSpec {
				fmt.Fprintf(out, "Spec:      %d\n", utils.Value(state.User.ActiveSpecID))
			}
			printExpiry(cmd, state.AccessToken)
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Session.State().IsLoggedIn {
				return errors.ErrNotLoggedIn
			}
			accessToken, err := a.Session.RefreshAuthToken(ctx)
			if err != nil {
				return err
			}
			printExpiry(cmd, accessToken)
			return nil
		})
	},
}

func printExpiry(cmd *cobra.Command, accessToken string) {
	claims, err := token.Decode(accessToken)
	if err != nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Expires:   %s (in %s)\n",
		claims.ExpiresAt.Local().Format(time.DateTime), claims.ExpiresIn(time.Now()).Round(time.Second))
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
