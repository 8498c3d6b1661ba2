// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Pipeline by stage, per-type counts, stale records and open tasks
package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
	"github.com/harperreed/sfcrm/scrape"
)

// StaleAfter is how long since lastUpdated before a record needs attention.
const StaleAfter = 30 * 24 * time.Hour

// Salesforce's default opportunity stages, in pipeline order.
var standardStages = []string{
	"Prospecting",
	"Qualification",
	"Needs Analysis",
	"Value Proposition",
	"Id. Decision Makers",
	"Perception Analysis",
	"Proposal/Price Quote",
	"Negotiation/Review",
	"Closed Won",
	"Closed Lost",
}

type DashboardStats struct {
	PipelineByStage map[string]PipelineStageStats
	Buckets         []query.BucketSummary

	StaleRecords []StaleRecord
	OpenTasks    int
}

type PipelineStageStats struct {
	Stage  string
	Count  int
	Amount float64
}

type StaleRecord struct {
	ObjectType models.ObjectType
	ID         string
	Name       string
	DaysSince  int // -1 when lastUpdated is missing or unreadable
}

// GenerateDashboardStats summarizes active records in root as of now.
func GenerateDashboardStats(root models.Root, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{
		PipelineByStage: make(map[string]PipelineStageStats),
		Buckets:         query.Summary(root),
	}

	for _, t := range models.ObjectTypes {
		entries, err := query.Entries(root, t)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s records: %w", t, err)
		}
		for _, e := range query.Active(entries) {
			switch t {
			case models.TypeOpportunity:
				stage := e.Record.Text(models.FieldStage)
				if stage == "" {
					stage = "unknown"
				}
				pstats := stats.PipelineByStage[stage]
				pstats.Stage = stage
				pstats.Count++
				pstats.Amount += amountOf(e.Record)
				stats.PipelineByStage[stage] = pstats
			case models.TypeTask:
				if !strings.EqualFold(e.Record.Text(models.FieldStatus), "completed") {
					stats.OpenTasks++
				}
			}

			updated, ok := models.ParseTime(e.Record.LastUpdated())
			if !ok {
				stats.StaleRecords = append(stats.StaleRecords, StaleRecord{ObjectType: t, ID: e.ID, Name: e.Record.Name(), DaysSince: -1})
				continue
			}
			if age := now.Sub(updated); age > StaleAfter {
				stats.StaleRecords = append(stats.StaleRecords, StaleRecord{
					ObjectType: t,
					ID:         e.ID,
					Name:       e.Record.Name(),
					DaysSince:  int(age.Hours() / 24),
				})
			}
		}
	}

	return stats, nil
}

func amountOf(r models.Record) float64 {
	v := r.Get(models.FieldAmount)
	switch v.Kind() {
	case models.KindNumber:
		return v.Num()
	case models.KindString:
		return scrape.ParseAmount(v.Str()).Num()
	}
	return 0
}

// Stages orders pipeline stages: standard stages first, the rest by name.
func Stages(pipeline map[string]PipelineStageStats) []string {
	rank := make(map[string]int, len(standardStages))
	for i, s := range standardStages {
		rank[s] = i
	}
	out := make([]string, 0, len(pipeline))
	for s := range pipeline {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i] < out[j]
	})
	return out
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  SFCRM DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PIPELINE OVERVIEW\n")
	if len(stats.PipelineByStage) == 0 {
		out.WriteString("  no open opportunities\n")
	}
	renderPipeline(&out, stats.PipelineByStage)
	out.WriteString("\n")

	out.WriteString("RECORDS\n")
	for _, b := range stats.Buckets {
		sync := "never synced"
		if b.LastSync != nil {
			sync = "synced " + b.LastSync.Local().Format("2006-01-02 15:04")
		}
		out.WriteString(fmt.Sprintf("  %-12s %4d active / %4d total  (%s)\n", b.ObjectType, b.Active, b.Count, sync))
	}
	out.WriteString("\n")

	if len(stats.StaleRecords) > 0 || stats.OpenTasks > 0 {
		out.WriteString("NEEDS ATTENTION\n")
		if stats.OpenTasks > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d open tasks\n", stats.OpenTasks))
		}
		if len(stats.StaleRecords) > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d records - not seen in %d+ days\n", len(stats.StaleRecords), int(StaleAfter.Hours()/24)))
		}
	}

	return out.String()
}

func renderPipeline(out *strings.Builder, pipeline map[string]PipelineStageStats) {
	maxCount := 0
	for _, pstats := range pipeline {
		if pstats.Count > maxCount {
			maxCount = pstats.Count
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, stage := range Stages(pipeline) {
		pstats := pipeline[stage]

		// 0-10 blocks
		barLength := (pstats.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)

		out.WriteString(fmt.Sprintf("  %-20s %s  %2d ($%.0fK)\n",
			stage, bar, pstats.Count, pstats.Amount/1000))
	}
}
