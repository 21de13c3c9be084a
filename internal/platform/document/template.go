// Package document renders the clinic report: a text/template produces a
// small markdown document, which a Converter turns into a PDF inside a
// per-request Workspace.
package document

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed templates/report.md.tmpl
var defaultTemplate string

// ReportData is the value the report template is executed with.
type ReportData struct {
	DateField    string
	SummaryField string
	Columns      []string
	RawDataField [][]string
}

var funcs = template.FuncMap{
	"row": func(cells []string) string {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = EscapeCell(c)
		}
		return "| " + strings.Join(escaped, " | ") + " |"
	},
	"separator": func(cells []string) string {
		return "|" + strings.Repeat(" --- |", len(cells))
	},
}

// Template renders ReportData to markup.
type Template struct {
	tmpl *template.Template
}

// LoadTemplate parses the template at path, or the embedded default when path
// is empty.
func LoadTemplate(path string) (*Template, error) {
	src := defaultTemplate
	name := "report"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read report template: %w", err)
		}
		src, name = string(b), path
	}
	return ParseTemplate(name, src)
}

func ParseTemplate(name, src string) (*Template, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Template{tmpl: t}, nil
}

// Render executes the template. SummaryField is free text, so it is escaped
// before it reaches the markup.
func (t *Template) Render(data ReportData) ([]byte, error) {
	data.SummaryField = EscapeText(data.SummaryField)
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute report template: %w", err)
	}
	return buf.Bytes(), nil
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

// EscapeCell makes text safe inside a pipe-table cell.
func EscapeCell(s string) string {
	return cellEscaper.Replace(s)
}
