package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pop-os/popopt/pkg/popopt"
)

// poolCmd represents the pool command
var poolCmd = &cobra.Command{
	Use:   "pool [package...]",
	Short: "Links the committed build outputs into the pool without building anything",
	Run: func(cmd *cobra.Command, args []string) {
		ws, err := getWorkspace()
		if err != nil {
			log.Fatal(err)
		}
		profile, err := getProfile(ws)
		if err != nil {
			log.Fatal(err)
		}
		pkgs, err := getPackages(ws, args)
		if err != nil {
			log.Fatal(err)
		}

		total, err := linkCommitted(&ws, profile, pkgs)
		if err != nil {
			log.Fatal(err)
		}
		log.WithField("linked", total).WithField("pool", ws.PackagePoolDir(profile)).Info("pool is up to date")
	},
}

func linkCommitted(ws *popopt.Workspace, profile popopt.ArchitectureProfile, pkgs []*popopt.PackageSpec) (int, error) {
	var (
		poolDir = ws.PackagePoolDir(profile)
		total   int
	)
	for _, pkg := range pkgs {
		files, err := popopt.CommittedArtifacts(ws, profile, pkg)
		if err != nil {
			return total, err
		}
		if len(files) == 0 {
			log.WithField("package", pkg.Name).Debug("nothing built yet")
			continue
		}
		linked, err := popopt.Aggregate(pkg.Name, files, poolDir)
		total += linked
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func init() {
	rootCmd.AddCommand(poolCmd)
	addMicroarchFlag(poolCmd)
}
