package export

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/analytics"
)

//go:embed templates/report.html
var templateFS embed.FS

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	// cssColor lets the fixed badge palette through the CSS sanitizer.
	"cssColor": func(value string) template.CSS {
		if !hexColor.MatchString(value) {
			return template.CSS("#9ca3af")
		}
		return template.CSS(value)
	},
}).ParseFS(templateFS, "templates/report.html"))

// ReportItem is a recent item as listed in the report.
type ReportItem struct {
	Title     string
	Category  string
	Priority  string
	Status    string
	CreatedAt time.Time
}

type ReportData struct {
	Title       string
	GeneratedAt time.Time
	Snapshot    analytics.Snapshot
	Recent      []ReportItem
}

func NewReportData(snapshot analytics.Snapshot, generatedAt time.Time) ReportData {
	recent := make([]ReportItem, 0, len(snapshot.Recent))
	for _, item := range snapshot.Recent {
		recent = append(recent, ReportItem{
			Title:     item.Title,
			Category:  item.Category.Label(),
			Priority:  item.Priority.Label(),
			Status:    item.Status.Label(),
			CreatedAt: item.CreatedAt,
		})
	}
	return ReportData{
		Title:       "Feedback analytics",
		GeneratedAt: generatedAt,
		Snapshot:    snapshot,
		Recent:      recent,
	}
}

func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
