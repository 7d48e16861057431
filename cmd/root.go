package cmd

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/pop-os/popopt/pkg/popopt"
)

var (
	workspace string
	microarch string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "popopt",
	Short: "Rebuilds Debian source packages optimised for CPU micro-architectures",
	Long: color.Render(`<light_yellow>popopt rebuilds Debian source packages</> with compiler flags for a particular CPU micro-architecture.
  Workspace:  the workspace is the root of all operations. It is marked with a WORKSPACE.yaml file which configures
              the distribution, the machine architectures and where build trees and the pool live.
  Package:    every YAML file in the package directory names a source package and the patches applied to it.
  Microarch:  every file in the microarch directory describes a micro-architecture profile. A profile's level is
              embedded in the version of every package built for it.

<white>Configuration</>
popopt is configured through the WORKSPACE.yaml file and environment variables:
  <light_blue>POPOPT_WORKSPACE_ROOT</>  Contains the path where to look for a WORKSPACE.yaml file. Can also be set using --workspace.
       <light_blue>POPOPT_BUILD_DIR</>  Overrides the directory builds happen in. Expect heavy I/O in this location.
        <light_blue>POPOPT_POOL_DIR</>  Overrides the directory binary packages are collected in.
`),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	workspaceRoot := os.Getenv(popopt.EnvvarWorkspaceRoot)
	if workspaceRoot == "" {
		workspaceRoot = "."
	}

	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", workspaceRoot, "Workspace root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enables verbose logging")
}

// addMicroarchFlag registers the flag selecting the profile a command works on
func addMicroarchFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&microarch, "microarch", "m", "", "micro-architecture profile to build for")
}

func getWorkspace() (popopt.Workspace, error) {
	return popopt.LoadWorkspace(workspace)
}

// getProfile loads the profile selected with --microarch
func getProfile(ws popopt.Workspace) (*popopt.Microarch, error) {
	profiles, err := ws.Microarchs()
	if err != nil {
		return nil, err
	}
	if microarch == "" {
		names := make([]string, len(profiles))
		for i, p := range profiles {
			names[i] = p.Name
		}
		return nil, xerrors.Errorf("--microarch is required, choose one of %v", names)
	}
	return popopt.FindMicroarch(profiles, microarch)
}

// getPackages loads the workspace packages named in args, or all of them if args is empty
func getPackages(ws popopt.Workspace, args []string) ([]*popopt.PackageSpec, error) {
	pkgs, err := ws.Packages()
	if err != nil {
		return nil, err
	}
	return popopt.SelectPackages(pkgs, args)
}
