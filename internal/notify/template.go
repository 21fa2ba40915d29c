package notify

import "html/template"

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.5; color: #222; }
.header { background: #1f3a5f; color: #fff; padding: 16px; border-radius: 6px 6px 0 0; }
.content { border: 1px solid #ddd; border-top: none; padding: 16px; }
.summary { background: #f4f7fb; border-left: 4px solid #1f3a5f; padding: 12px; margin: 12px 0; }
.missing { background: #fff6e5; border-left: 4px solid #e0a100; padding: 12px; margin: 12px 0; }
table.fin { border-collapse: collapse; margin: 12px 0; }
table.fin th, table.fin td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
.button { display: inline-block; background: #1f3a5f; color: #fff; padding: 10px 18px; border-radius: 4px; text-decoration: none; }
.meta { color: #666; font-size: 12px; }
</style>
</head>
<body>
<div class="header"><h2>{{.Company}}</h2></div>
<div class="content">
<p><strong>{{.Title}}</strong></p>
<p class="meta">Published {{.Published}}{{if .Keywords}} · Matched: {{.Keywords}}{{end}}</p>
{{if .Summary}}
<div class="summary">
<strong>Filing summary</strong>
<p>{{.Summary.Text}}</p>
{{if .Summary.OrderValue}}<p>Order value: {{.Summary.OrderValue}}</p>{{end}}
{{if .Summary.Client}}<p>Client: {{.Summary.Client}}</p>{{end}}
{{if .Summary.Timeline}}<p>Timeline: {{.Summary.Timeline}}</p>{{end}}
{{if .Summary.Sector}}<p>Sector: {{.Summary.Sector}}</p>{{end}}
</div>
{{else}}
<div class="missing">
<strong>Summary unavailable</strong>
{{if .Annotations}}<ul>{{range .Annotations}}<li>{{.}}</li>{{end}}</ul>{{end}}
</div>
{{end}}
{{if .Description}}<div>{{.Description}}</div>{{end}}
{{with .Financials}}
<table class="fin">
<tr><th>Fiscal Year</th><th>Revenue (₹ crore)</th><th>Order Book (₹ crore)</th><th>Order Book/Revenue</th></tr>
<tr><td>{{.FiscalYear}}</td><td>{{.Revenue}}</td><td>{{.OrderBook}}</td><td>{{.Ratio}}</td></tr>
{{if .HasProvisional}}<tr><td>{{.ProvisionalYear}} (provisional)</td><td>{{.ProvisionalRevenue}}</td><td>{{.ProvisionalOrderBook}}</td><td></td></tr>{{end}}
</table>
{{end}}
{{if .Link}}<p><a class="button" href="{{.Link}}">{{if .IsPDF}}Open filing (PDF){{else}}Open announcement{{end}}</a></p>{{end}}
</div>
</body>
</html>`))
