package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pop-os/popopt/pkg/popopt"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of this popopt build",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(popopt.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
