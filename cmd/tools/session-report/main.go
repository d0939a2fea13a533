// session-report renders a recorded sonar session from the telemetry database
// to a standalone HTML page: the distance timeline against the learned
// baseline and thresholds, plus the danger intensity trace.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/reef-data/sonar.report/internal/sonar"
	"github.com/reef-data/sonar.report/internal/sonardb"
)

var (
	dbFile    = flag.String("db", "sonar_data.db", "Path to the telemetry database")
	sessionID = flag.String("session", "", "Session to render (defaults to the latest)")
	outFile   = flag.String("out", "session-report.html", "Output HTML file")
)

func main() {
	flag.Parse()

	db, err := sonardb.NewSonarDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	id := *sessionID
	if id == "" {
		latest, err := db.LatestSession()
		if err != nil {
			log.Fatalf("failed to find a session: %v", err)
		}
		id = latest.ID
	}

	recs, err := db.SessionCycles(id)
	if err != nil {
		log.Fatalf("failed to load cycles: %v", err)
	}
	if len(recs) == 0 {
		log.Fatalf("session %s has no recorded cycles", id)
	}

	page := components.NewPage()
	page.AddCharts(distanceChart(id, recs), intensityChart(recs))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (%d cycles, session %s)", *outFile, len(recs), id)
}

func distanceChart(sessionID string, recs []sonar.CycleRecord) *charts.Line {
	xs := make([]string, 0, len(recs))
	filtered := make([]opts.LineData, 0, len(recs))
	baseline := make([]opts.LineData, 0, len(recs))
	enter := make([]opts.LineData, 0, len(recs))
	exit := make([]opts.LineData, 0, len(recs))

	var invalid, entered, exited int
	for _, r := range recs {
		xs = append(xs, fmt.Sprintf("%d", r.TimeMs))
		filtered = append(filtered, opts.LineData{Value: r.FilteredCM})
		baseline = append(baseline, opts.LineData{Value: r.BaselineCM})
		enter = append(enter, opts.LineData{Value: r.EnterCM})
		exit = append(exit, opts.LineData{Value: r.ExitCM})
		if !r.Valid {
			invalid++
		}
		switch r.Event {
		case sonar.EventEntered:
			entered++
		case sonar.EventExited:
			exited++
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sonar Session Report", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Filtered distance vs thresholds",
			Subtitle: fmt.Sprintf("session=%s cycles=%d invalid=%d entered=%d exited=%d", sessionID, len(recs), invalid, entered, exited),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (ms)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance (cm)"}),
	)

	line.SetXAxis(xs).
		AddSeries("filtered", filtered).
		AddSeries("baseline", baseline).
		AddSeries("enter", enter).
		AddSeries("exit", exit)
	return line
}

func intensityChart(recs []sonar.CycleRecord) *charts.Line {
	xs := make([]string, 0, len(recs))
	intensity := make([]opts.LineData, 0, len(recs))
	for _, r := range recs {
		xs = append(xs, fmt.Sprintf("%d", r.TimeMs))
		intensity = append(intensity, opts.LineData{Value: r.Intensity})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Danger intensity"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (ms)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "intensity", Min: 0, Max: 1}),
	)
	line.SetXAxis(xs).AddSeries("intensity", intensity)
	return line
}
