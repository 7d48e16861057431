package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pop-os/popopt/pkg/prettyprint"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collects all packages in a workspace",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ws, err := getWorkspace()
		if err != nil {
			log.Fatal(err)
		}
		pkgs, err := ws.Packages()
		if err != nil {
			log.Fatal(err)
		}

		w, err := getWriterFromFlags(cmd)
		if err != nil {
			log.Fatal(err)
		}
		if w.FormatString == "" && w.Format == prettyprint.TemplateFormat {
			w.FormatString = `{{ range . }}{{ .Name }}	{{ len .Patches }} patches
{{ end }}`
		}
		err = w.Write(pkgs)
		if err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	addFormatFlags(collectCmd)
}

func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", string(prettyprint.TemplateFormat), "the output format (template, json or yaml)")
	cmd.Flags().StringP("format-string", "t", "", "format string to use, e.g. the template")
}

func getWriterFromFlags(cmd *cobra.Command) (*prettyprint.Writer, error) {
	format, _ := cmd.Flags().GetString("format")
	formatString, _ := cmd.Flags().GetString("format-string")

	f, err := prettyprint.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return &prettyprint.Writer{
		Out:          os.Stdout,
		Format:       f,
		FormatString: formatString,
	}, nil
}
