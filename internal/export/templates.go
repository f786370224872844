package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"lower":       strings.ToLower,
	"formatDate":  func(t time.Time, layout string) string { return t.Format(layout) },
	"percent":     formatPercent,
	"indent":      func(level int) int { return level * 24 },
	"humanStatus": func(s string) string { return strings.ReplaceAll(s, "_", " ") },
}).ParseFS(templateFS, "templates/report.html"))

func formatPercent(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", value)
}

// RenderReportHTML renders the hierarchy report template.
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
