package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/pop-os/popopt/pkg/popopt"
	"github.com/pop-os/popopt/pkg/prettyprint"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [package...]",
	Short: "Builds packages for a micro-architecture and links them into the pool",
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

		intr := &popopt.Interrupt{}
		stop := popopt.NotifyInterrupt(intr)
		defer stop()

		opts, err := getBuildOpts(cmd, intr)
		if err != nil {
			log.Fatal(err)
		}
		builder, err := popopt.NewBuilder(ws, profile, opts...)
		if err != nil {
			log.Fatal(err)
		}

		if dryrun, _ := cmd.Flags().GetBool("dry-run"); dryrun {
			plan, err := builder.Plan(pkgs)
			if err != nil {
				log.Fatal(err)
			}
			err = prettyprint.Write(os.Stdout, plan, prettyprint.TemplateFormat, planTemplate)
			if err != nil {
				log.Fatal(err)
			}
			return
		}

		_, err = builder.Build(pkgs)
		if intr.Acknowledged() {
			log.Warn("build was interrupted, stages left partial need --retry")
		}
		if err != nil {
			// the reporter already printed the details
			os.Exit(1)
		}
	},
}

const planTemplate = `{{ range . }}{{ $pkg := .Package.Name }}{{ range .Versions }}{{ $v := .Version }}{{ range .Stages }}{{ $pkg }}	{{ $v }}	{{ .Name }}	{{ .State }}
{{ end }}{{ end }}{{ end }}`

func init() {
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	addMicroarchFlag(cmd)
	cmd.Flags().Bool("rebuild", false, "discard and redo stages which are already complete")
	cmd.Flags().Bool("retry", false, "discard and redo stages left partial by an interrupted or failed build")
	cmd.Flags().Int64("max-concurrent-builds", 0, "limit the number of sbuild processes running at the same time (0 means no limit)")
	cmd.Flags().Bool("dry-run", false, "don't build but show the state of every stage that would be built")
	cmd.Flags().StringSlice("reporter", []string{"console"}, "how build progress is reported: console (stdout), log (JSON on stderr) or none. Can be given more than once")
}

func getBuildOpts(cmd *cobra.Command, intr *popopt.Interrupt) ([]popopt.BuildOption, error) {
	rebuild, err := cmd.Flags().GetBool("rebuild")
	if err != nil {
		return nil, err
	}
	retry, err := cmd.Flags().GetBool("retry")
	if err != nil {
		return nil, err
	}
	maxBuilds, err := cmd.Flags().GetInt64("max-concurrent-builds")
	if err != nil {
		return nil, err
	}
	reporter, err := getReporter(cmd)
	if err != nil {
		return nil, err
	}

	return []popopt.BuildOption{
		popopt.WithReporter(reporter),
		popopt.WithInterrupt(intr),
		popopt.WithRebuild(rebuild),
		popopt.WithRetry(retry),
		popopt.WithMaxConcurrentBuilds(maxBuilds),
	}, nil
}

// getReporter combines the reporters selected with --reporter
func getReporter(cmd *cobra.Command) (popopt.Reporter, error) {
	names, err := cmd.Flags().GetStringSlice("reporter")
	if err != nil {
		return nil, err
	}

	var (
		res  popopt.CompositeReporter
		seen = make(map[string]struct{})
	)
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case "console":
			res = append(res, popopt.NewConsoleReporter(os.Stdout))
		case "log":
			logger := log.New()
			logger.Out = os.Stderr
			logger.Formatter = &log.JSONFormatter{}
			if verbose {
				logger.Level = log.DebugLevel
			}
			res = append(res, popopt.NewLogReporter(logger))
		case "none":
		default:
			return nil, xerrors.Errorf("unknown reporter: %s", name)
		}
	}

	switch len(res) {
	case 0:
		return popopt.NoopReporter{}, nil
	case 1:
		return res[0], nil
	default:
		return res, nil
	}
}
