package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/Masterminds/sprig/v3"
)

const htmlTemplatePath = "templates/report.html"

//go:embed templates/report.html
var templateFS embed.FS

var htmlReportTemplate = template.Must(
	template.New("report.html").Funcs(htmlFuncs()).ParseFS(templateFS, htmlTemplatePath),
)

func htmlFuncs() template.FuncMap {
	funcs := sprig.FuncMap()
	funcs["timestamp"] = timestampLabel
	return funcs
}

func renderHTML(w io.Writer, r Report) error {
	if err := htmlReportTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
