package cmd

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pop-os/popopt/pkg/popopt"
	"github.com/pop-os/popopt/pkg/prettyprint"
)

type microarchDescription struct {
	Name        string   `json:"name" yaml:"name"`
	Level       int      `json:"level" yaml:"level"`
	Wiki        string   `json:"wiki,omitempty" yaml:"wiki,omitempty"`
	CFlags      string   `json:"cflags" yaml:"cflags"`
	RustFlags   string   `json:"rustflags" yaml:"rustflags"`
	Environment string   `json:"environment" yaml:"environment"`
	Supported   bool     `json:"supported" yaml:"supported"`
	Missing     []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// microarchsCmd represents the microarchs command
var microarchsCmd = &cobra.Command{
	Use:   "microarchs",
	Short: "Lists the micro-architecture profiles of the workspace and whether this machine supports them",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ws, err := getWorkspace()
		if err != nil {
			log.Fatal(err)
		}
		profiles, err := ws.Microarchs()
		if err != nil {
			log.Fatal(err)
		}

		cpu, err := popopt.CPUFeatures()
		if err != nil {
			log.WithError(err).Warn("cannot read CPU features, assuming none are supported")
		}

		res, err := describeMicroarchs(ws, profiles, cpu)
		if err != nil {
			log.Fatal(err)
		}

		w, err := getWriterFromFlags(cmd)
		if err != nil {
			log.Fatal(err)
		}
		if w.FormatString == "" && w.Format == prettyprint.TemplateFormat {
			w.FormatString = `{{ range . }}{{ .Name }}	level {{ .Level }}	{{ .CFlags }}	{{ if .Supported }}supported{{ else }}missing {{ join .Missing " " }}{{ end }}
{{ end }}`
		}
		err = w.Write(res)
		if err != nil {
			log.Fatal(err)
		}
	},
}

func describeMicroarchs(ws popopt.Workspace, profiles []*popopt.Microarch, cpu []string) ([]microarchDescription, error) {
	res := make([]microarchDescription, 0, len(profiles))
	for _, m := range profiles {
		hash, err := popopt.NewBuildEnvironment(m, ws.VendorTag).Hash()
		if err != nil {
			return nil, err
		}
		missing := m.CheckFeatures(cpu)
		res = append(res, microarchDescription{
			Name:        m.Name,
			Level:       m.Level,
			Wiki:        m.Wiki,
			CFlags:      strings.Join(m.CFlags(), " "),
			RustFlags:   strings.Join(m.RustFlags(), " "),
			Environment: hash,
			Supported:   len(missing) == 0,
			Missing:     missing,
		})
	}
	return res, nil
}

func init() {
	rootCmd.AddCommand(microarchsCmd)
	addFormatFlags(microarchsCmd)
}
