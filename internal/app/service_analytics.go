package app

import (
	"context"
	"math"
	"time"

	"realtycrm/api/internal/lead"
)

type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type Analytics struct {
	TotalLeads       int           `json:"totalLeads"`
	NewLeadsToday    int           `json:"newLeadsToday"`
	HotLeads         int           `json:"hotLeads"`
	ClosedWon        int           `json:"closedWon"`
	ClosedLost       int           `json:"closedLost"`
	ConversionRate   float64       `json:"conversionRate"`
	LeadsBySource    []SourceCount `json:"leadsBySource"`
	LeadsByStage     []StageCount  `json:"leadsByStage"`
	PendingFollowUps int           `json:"pendingFollowUps"`
	ScheduledVisits  int           `json:"scheduledVisits"`
	AverageScore     *float64      `json:"averageScore"`
}

func (s *Service) Analytics(ctx context.Context, caller Caller) (Analytics, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := s.store.LeadStats(ctx, caller.CompanyID, today)
	if err != nil {
		return Analytics{}, err
	}

	byStage := make(map[string]int, len(stats.ByStage))
	for _, c := range stats.ByStage {
		byStage[c.Key] = c.Count
	}
	out := Analytics{
		TotalLeads:       stats.Total,
		NewLeadsToday:    stats.CreatedToday,
		HotLeads:         stats.HotLeads,
		ClosedWon:        byStage[string(lead.StageClosedWon)],
		ClosedLost:       byStage[string(lead.StageClosedLost)],
		LeadsBySource:    make([]SourceCount, 0, len(stats.BySource)),
		LeadsByStage:     make([]StageCount, 0, len(lead.Stages())),
		PendingFollowUps: stats.PendingFollowUp,
		ScheduledVisits:  stats.ScheduledVisits,
	}
	if stats.Total > 0 {
		out.ConversionRate = round1(float64(out.ClosedWon) / float64(stats.Total) * 100)
	}
	for _, stage := range lead.Stages() {
		out.LeadsByStage = append(out.LeadsByStage, StageCount{Stage: string(stage), Count: byStage[string(stage)]})
	}
	for _, c := range stats.BySource {
		out.LeadsBySource = append(out.LeadsBySource, SourceCount{Source: c.Key, Count: c.Count})
	}
	if stats.AverageScore != nil {
		avg := round1(*stats.AverageScore)
		out.AverageScore = &avg
	}
	return out, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
