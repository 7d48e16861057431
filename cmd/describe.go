package cmd

import (
	"fmt"

	"github.com/disiqueira/gotree"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pop-os/popopt/pkg/popopt"
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe [package...]",
	Short: "Describes the versions and stages found in the build directory",
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

		tree, err := describeTree(&ws, profile, pkgs)
		if err != nil {
			log.Fatal(err)
		}
		_, err = fmt.Println(tree.Print())
		if err != nil {
			log.Fatal(err)
		}
	},
}

func describeTree(ws *popopt.Workspace, profile popopt.ArchitectureProfile, pkgs []*popopt.PackageSpec) (gotree.Tree, error) {
	tree := gotree.New(fmt.Sprintf("%s/%s", ws.Distribution, profile.MicroarchName()))
	for _, pkg := range pkgs {
		versions, err := popopt.DescribePackage(ws, profile, pkg)
		if err != nil {
			return nil, err
		}

		n := tree.Add(pkg.Name)
		if len(versions) == 0 {
			n.Add("never built")
			continue
		}
		for _, v := range versions {
			vn := n.Add(v.Version)
			for _, s := range v.Stages {
				vn.Add(fmt.Sprintf("%s: %s", s.Name, s.State))
			}
		}
	}
	return tree, nil
}

func init() {
	rootCmd.AddCommand(describeCmd)
	addMicroarchFlag(describeCmd)
}
