package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var minutesTemplate = template.Must(template.New("minutes").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"join": strings.Join,
}).Parse(minutesTemplateHTML))

// RenderMinutesHTML renders the minutes document to the HTML that both
// exporters consume.
func RenderMinutesHTML(doc MinutesDocument) (string, error) {
	var buf bytes.Buffer
	if err := minutesTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const minutesTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
    th, td { border: 1px solid #999; padding: 0.4rem 0.6rem; text-align: left; }
    th { background: #eee; }
    .history { font-size: 0.85em; color: #444; }
  </style>
</head>
<body>
  <h1>Minutes: {{.Title}}</h1>
  <div class="meta">Issue {{.IssueID}} | Status: {{.Status | lower}} | Recorded by {{.RecordedBy}} on {{formatDate .RecordedAt "Jan 2, 2006"}}</div>
  {{if .Rationale}}<p>{{.Rationale}}</p>{{end}}
  {{if .Tally}}
  <h2>Vote Tally</h2>
  <table>
    <tr><th>Position</th><th>Votes</th><th>Weighted</th><th>Directors</th></tr>
    {{range .Tally}}<tr><td>{{.VoteType}}</td><td>{{.Count}}</td><td>{{.WeightedCount}}</td><td>{{join .Directors ", "}}</td></tr>
    {{end}}
  </table>
  {{end}}
  {{if .History}}
  <h2>Revision History</h2>
  <div class="history">
    {{range .History}}<p>{{.Hash}} {{.Message}} ({{.Author}}, {{formatDate .CreatedAt "Jan 2, 2006 15:04"}})</p>
    {{end}}
  </div>
  {{end}}
</body>
</html>`
