package prettyprint

import (
	"encoding/json"
	"io"
	"strings"
	"text/tabwriter"
	"text/template"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Format is an output format for pretty printing
type Format string

const (
	// TemplateFormat produces text/template-based output
	TemplateFormat Format = "template"
	// JSONFormat produces JSON output
	JSONFormat Format = "json"
	// YAMLFormat produces YAML output
	YAMLFormat Format = "yaml"
)

// Formats lists all supported formats
func Formats() []Format {
	return []Format{TemplateFormat, JSONFormat, YAMLFormat}
}

// ParseFormat validates a format given on the command line
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", xerrors.Errorf("unknown format: %s (supported: %s, %s, %s)", s, TemplateFormat, JSONFormat, YAMLFormat)
}

// Writer preconfigures the write function
type Writer struct {
	Out          io.Writer
	Format       Format
	FormatString string
}

// Write prints the input in the preconfigured way
func (w *Writer) Write(in interface{}) error {
	return Write(w.Out, in, w.Format, w.FormatString)
}

// Write prints an input value using the format to the writer
func Write(out io.Writer, in interface{}, format Format, formatString string) error {
	switch format {
	case TemplateFormat:
		return writeTemplate(out, in, formatString)
	case JSONFormat:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(in)
	case YAMLFormat:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		err := enc.Encode(in)
		if err != nil {
			return err
		}
		return enc.Close()
	default:
		return xerrors.Errorf("unknown format: %s", format)
	}
}

var templateFuncs = template.FuncMap{
	"join": func(elems []string, sep string) string {
		return strings.Join(elems, sep)
	},
}

func writeTemplate(out io.Writer, in interface{}, tplc string) error {
	tpl, err := template.New("template").Funcs(templateFuncs).Parse(tplc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	return tpl.Execute(w, in)
}
