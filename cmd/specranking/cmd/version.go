package cmd

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/specranking-client/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		displayAppname(config.New().GetAppName())
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
	},
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
