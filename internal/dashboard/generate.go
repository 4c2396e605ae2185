// Package dashboard renders a Grafana dashboard over the GreptimeDB tables
// written by a sweep.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Panel is one bar chart of a result column against the node count.
type Panel struct {
	Title  string
	Column string
	Unit   string
}

// Params are the values substituted into the dashboard templates.
type Params struct {
	Title        string
	ResultsTable string
	FlowsTable   string
	Panels       []Panel
}

// DefaultParams charts the three result series plus the 95th percentile delay.
func DefaultParams() Params {
	return Params{
		Title:        "Mesh sweep results",
		ResultsTable: "sweep_results",
		FlowsTable:   "flow_stats",
		Panels: []Panel{
			{Title: "Average throughput", Column: "avg_throughput_kbps", Unit: "Kbits"},
			{Title: "Average delay", Column: "avg_delay_ms", Unit: "ms"},
			{Title: "Average packet loss ratio", Column: "avg_loss_ratio", Unit: "percentunit"},
			{Title: "95th percentile delay", Column: "delay_p95_ms", Unit: "ms"},
		},
	}
}

var funcMap = template.FuncMap{
	"env": func(key string) (string, error) {
		v := os.Getenv(key)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", key)
		}
		return v, nil
	},
	"inc": func(i int) int { return i + 1 },
	"col": func(i int) int { return (i % 2) * 12 },
	"row": func(i int) int { return (i / 2) * 9 },
}

// Render executes every embedded template with p and writes the dashboards
// to outDir.
func Render(outDir string, p Params) error {
	names, err := templateNames()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, name := range names {
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, "templates/"+name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func templateNames() ([]string, error) {
	entries, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
