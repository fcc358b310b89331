package reporter

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Natural Gas Market Report - {{.GeneratedAt.Format "2006-01-02"}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #333;
            padding: 20px;
            line-height: 1.6;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1);
            overflow: hidden;
        }
        .header {
            background: linear-gradient(135deg, #0b6e4f 0%, #08415c 100%);
            color: white;
            padding: 40px;
        }
        .section {
            padding: 30px 40px;
            border-top: 1px solid #e8eaed;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 8px 12px;
            border-bottom: 1px solid #e8eaed;
        }
        th {
            background: #f8f9fa;
            font-size: 0.85em;
            text-transform: uppercase;
        }
        .badge {
            padding: 2px 10px;
            border-radius: 12px;
            font-size: 0.85em;
            font-weight: 600;
        }
        .badge-fresh { background: #e6f4ea; color: #137333; }
        .badge-stale { background: #fef7e0; color: #b06000; }
        .badge-missing { background: #fce8e6; color: #c5221f; }
        .alert {
            background: #fce8e6;
            border-left: 4px solid #c5221f;
            padding: 8px 12px;
            margin: 6px 0;
        }
        .warning {
            color: #b06000;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Natural Gas Market Report</h1>
            <p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}} | <strong>Alerts:</strong> {{.AlertCount}}</p>
        </div>

        <div class="section">
            <h2>Datasets</h2>
            <table>
                <thead><tr><th>Dataset</th><th>State</th><th>Refreshed</th><th>Series</th></tr></thead>
                <tbody>
                    {{range .Datasets}}
                    <tr>
                        <td><strong>{{.Name}}</strong></td>
                        <td>{{if not .Loaded}}<span class="badge badge-missing">not loaded</span>{{else if .Stale}}<span class="badge badge-stale">stale</span>{{else}}<span class="badge badge-fresh">fresh</span>{{end}}</td>
                        <td>{{if .Loaded}}{{.RefreshedAt.Format "2006-01-02 15:04"}}{{else}}-{{end}}</td>
                        <td>{{.SeriesCount}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        <div class="section">
            <h2>Storage vs Seasonal History</h2>
            <table>
                <thead><tr><th>Series</th><th>Week</th><th>Value</th><th>Percentile</th><th>Z-Score</th><th>Range</th></tr></thead>
                <tbody>
                    {{range .Storage}}{{if .Latest}}
                    <tr>
                        <td><strong>{{.Series}}</strong></td>
                        <td>{{.Latest.Period.Format "2006-01-02"}}</td>
                        <td>{{printf "%.0f" .Latest.CurrentValue}}</td>
                        <td>{{printf "%.0f" .Latest.Percentile}}</td>
                        <td>{{opt .Latest.ZScore}}</td>
                        <td>{{printf "%.0f" .Latest.HistoricalMin}} - {{printf "%.0f" .Latest.HistoricalMax}}</td>
                    </tr>
                    {{end}}{{end}}
                </tbody>
            </table>
            {{range .Storage}}
                {{range .Anomalies.HighValue}}<div class="alert">{{.Message}}</div>{{end}}
                {{range .Anomalies.LowValue}}<div class="alert">{{.Message}}</div>{{end}}
                {{range .Anomalies.RapidChange}}<div class="alert">{{.Message}}</div>{{end}}
            {{end}}
        </div>

        <div class="section">
            <h2>LNG Terminal Utilization</h2>
            <table>
                <thead><tr><th>Facility</th><th>Month</th><th>Bcf/d</th><th>Capacity</th><th>Utilization</th><th>Operator</th></tr></thead>
                <tbody>
                    {{range .Utilization}}
                    <tr>
                        <td><strong>{{.Facility}}</strong> <small>{{.Location}}</small></td>
                        <td>{{.Period.Format "2006-01"}}</td>
                        <td>{{printf "%.2f" .DailyRate}}</td>
                        <td>{{printf "%.2f" .Capacity}}</td>
                        <td>{{printf "%.1f" .UtilizationPercent}}%</td>
                        <td>{{.Operator}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
            {{range .UtilizationAlerts}}<div class="alert">{{.Message}}</div>{{end}}
        </div>

        {{if .GrowthSeries}}
        <div class="section">
            <h2>Growth - {{.GrowthSeries}}</h2>
            <table>
                <thead><tr><th>Month</th><th>Value</th><th>YoY</th><th>MoM</th><th>MA3</th><th>MA12</th></tr></thead>
                <tbody>
                    {{range .Growth}}
                    <tr>
                        <td>{{.Period.Format "2006-01"}}</td>
                        <td>{{printf "%.0f" .Value}}</td>
                        <td>{{pct .YoYGrowthPercent}}</td>
                        <td>{{pct .MoMGrowthPercent}}</td>
                        <td>{{opt .MovingAvg3}}</td>
                        <td>{{opt .MovingAvg12}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Warnings}}
        <div class="section">
            <h2>Warnings</h2>
            {{range .Warnings}}<p class="warning">{{.}}</p>{{end}}
        </div>
        {{end}}
    </div>
</body>
</html>
`

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"opt": func(v *float64) string {
			if v == nil {
				return "n/a"
			}
			return strings.TrimSuffix(fmt.Sprintf("%.2f", *v), ".00")
		},
		"pct": formatPct,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}
