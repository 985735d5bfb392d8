package cmd

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/jrsteele09/specranking-client/api"
	"github.com/jrsteele09/specranking-client/app"
	"github.com/jrsteele09/specranking-client/internal/config"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(bookmarksCmd)
	bookmarksCmd.AddCommand(bookmarksListCmd, bookmarksAddCmd, bookmarksRemoveCmd, bookmarksToggleCmd)
}

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Manage bookmarked specs",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var bookmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarked specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBookmarks(cmd, func(ctx context.Context, a *app.App) error {
			page, err := a.API.ListBookmarks(ctx, "", config.New().GetBookmarkPageLimit())
			if err != nil {
				return userError(err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BOOKMARK\tSPEC\tNICKNAME\tJOB FIELD\tSCORE")
			for _, b := range page.Bookmarks {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%.1f\n", b.ID, b.Spec.ID, b.Spec.Nickname, b.Spec.JobField, b.Spec.Score)
			}
			return w.Flush()
		})
	},
}

var bookmarksAddCmd = &cobra.Command{
	Use:   "add <specId>",
	Short: "Bookmark a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := parseSpecID(args[0])
		if err != nil {
			return err
		}
		return withBookmarks(cmd, func(ctx context.Context, a *app.App) error {
			id, err := a.Bookmarks.AddBookmark(ctx, specID)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked spec %d (bookmark %d)\n", specID, id)
			return nil
		})
	},
}

var bookmarksRemoveCmd = &cobra.Command{
	Use:   "remove <specId>",
	Short: "Remove the bookmark on a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := parseSpecID(args[0])
		if err != nil {
			return err
		}
		return withBookmarks(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Bookmarks.RemoveBookmark(ctx, specID); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed bookmark on spec %d\n", specID)
			return nil
		})
	},
}

var bookmarksToggleCmd = &cobra.Command{
	Use:   "toggle <specId>",
	Short: "Bookmark a spec, or remove its bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := parseSpecID(args[0])
		if err != nil {
			return err
		}
		return withBookmarks(cmd, func(ctx context.Context, a *app.App) error {
			bookmarked, id, err := a.Bookmarks.ToggleBookmark(ctx, specID)
			if err != nil {
				return userError(err)
			}
			if bookmarked {
				fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked spec %d (bookmark %d)\n", specID, id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed bookmark on spec %d\n", specID)
			}
			return nil
		})
	},
}

// withBookmarks runs fn for a logged in user; the bookmark index is loaded by the session start.
func withBookmarks(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if !a.Session.State().IsLoggedIn {
			return errors.ErrNotLoggedIn
		}
		return fn(ctx, a)
	})
}

func parseSpecID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid spec id %q", arg)
	}
	return id, nil
}

func userError(err error) error {
	return fmt.Errorf("%s (%w)", api.DisplayMessage(err), err)
}
