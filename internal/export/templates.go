package export

import (
	"bytes"
	"html/template"
	"time"
)

var planTemplate = template.Must(template.New("plan").Parse(planTemplateHTML))

// TemplateData holds data for plan template rendering
type TemplateData struct {
	Plan        PlanInfo
	Sections    []SectionInfo
	GeneratedAt time.Time
}

// RenderPlanHTML renders the business plan template with provided data
func RenderPlanHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const planTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Plan.IdeaName}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .answer { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; white-space: pre-wrap; }
    .question { font-weight: bold; margin-top: 1rem; }
    .tasks li.done { text-decoration: line-through; color: #666; }
  </style>
</head>
<body>
  <h1>{{.Plan.IdeaName}}</h1>
  <div class="meta">{{if .Plan.Owner}}{{.Plan.Owner}} | {{end}}{{printf "%.0f" .Plan.Progress}}% complete | {{.GeneratedAt.Format "Jan 2, 2006"}}</div>
  {{if .Plan.IdeaFoundation}}<p><strong>Foundation:</strong> {{.Plan.IdeaFoundation}}</p>{{end}}
  {{if .Plan.ProblemStatement}}<p><strong>Problem:</strong> {{.Plan.ProblemStatement}}</p>{{end}}
  {{if .Plan.UniqueSolution}}<p><strong>Solution:</strong> {{.Plan.UniqueSolution}}</p>{{end}}
  {{if .Plan.TargetLocation}}<p><strong>Location:</strong> {{.Plan.TargetLocation}}</p>{{end}}
  {{range .Sections}}
  <h2>{{.StageName}} ({{printf "%.0f" .Progress}}%)</h2>
  {{range .Answers}}
  <div class="question">{{.Question}}</div>
  <div class="answer">{{.Answer}}</div>
  {{end}}
  {{if .Tasks}}
  <h3>Tasks</h3>
  <ul class="tasks">
    {{range .Tasks}}<li{{if .Completed}} class="done"{{end}}>{{.Description}}</li>{{end}}
  </ul>
  {{end}}
  {{end}}
</body>
</html>`
