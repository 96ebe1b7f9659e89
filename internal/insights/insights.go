// Package insights derives plain-language observations from saved sessions.
package insights

import (
	"fmt"
	"math"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

type Level string

const (
	LevelGood     Level = "good"
	LevelNeutral  Level = "neutral"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

const (
	KindTrend       = "trend"
	KindAverage     = "average"
	KindBestTime    = "best_time"
	KindNetwork     = "network"
	KindConsistency = "consistency"
)

const trendBand = 5

// Insight is one observation about connection history.
type Insight struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       Level  `json:"level"`
}

// Period aggregates the sessions that started in one part of the day.
type Period struct {
	Name         string   `json:"name"`
	HourRange    string   `json:"hour_range"`
	AvgLatency   *float64 `json:"avg_latency_ms,omitempty"`
	AvgScore     int      `json:"avg_score"`
	SessionCount int      `json:"session_count"`
}

var periods = []struct {
	name      string
	hourRange string
	from, to  int
}{
	{"Morning", "6am - 12pm", 6, 11},
	{"Afternoon", "12pm - 6pm", 12, 17},
	{"Evening", "6pm - 12am", 18, 23},
	{"Night", "12am - 6am", 0, 5},
}

// Generate returns insights in a fixed order: trend, average, best time,
// network comparison, consistency. Insights without enough data are omitted.
func Generate(sessions []types.Session, now time.Time) []Insight {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Insight, 0, 5)
	for _, fn := range []func() (Insight, bool){
		func() (Insight, bool) { return scoreTrend(sessions, now) },
		func() (Insight, bool) { return overallAverage(sessions) },
		func() (Insight, bool) { return bestTimeOfDay(sessions, now.Location()) },
		func() (Insight, bool) { return compareNetworks(sessions) },
		func() (Insight, bool) { return consistency(sessions) },
	} {
		if in, ok := fn(); ok {
			out = append(out, in)
		}
	}
	return out
}

// TimeOfDay buckets sessions by the local hour of their start time.
func TimeOfDay(sessions []types.Session, loc *time.Location) []Period {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		var (
			latencies []float64
			scores    []int
			count     int
		)
		for i := range sessions {
			hour := sessions[i].StartTime.In(loc).Hour()
			if hour < p.from || hour > p.to {
				continue
			}
			count++
			if avg := sessions[i].Stats().Avg; avg != nil {
				latencies = append(latencies, *avg)
			}
			if sessions[i].QualityScore != nil {
				scores = append(scores, *sessions[i].QualityScore)
			}
		}
		period := Period{Name: p.name, HourRange: p.hourRange, SessionCount: count}
		if len(latencies) > 0 {
			avg := mean(latencies)
			period.AvgLatency = &avg
		}
		if len(scores) > 0 {
			period.AvgScore = intMean(scores)
		}
		out = append(out, period)
	}
	return out
}

func scoreTrend(sessions []types.Session, now time.Time) (Insight, bool) {
	oneWeekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	var thisWeek, lastWeek []int
	for i := range sessions {
		s := &sessions[i]
		if s.QualityScore == nil {
			continue
		}
		switch {
		case !s.StartTime.Before(oneWeekAgo):
			thisWeek = append(thisWeek, *s.QualityScore)
		case !s.StartTime.Before(twoWeeksAgo):
			lastWeek = append(lastWeek, *s.QualityScore)
		}
	}
	if len(thisWeek) == 0 {
		return Insight{}, false
	}

	current := intMean(thisWeek)
	if len(lastWeek) == 0 {
		level := LevelWarning
		switch {
		case current >= 80:
			level = LevelGood
		case current >= 60:
			level = LevelNeutral
		}
		return Insight{
			Kind:        KindTrend,
			Title:       fmt.Sprintf("Average Score: %d", current),
			Description: fmt.Sprintf("Based on %d sessions this week", len(thisWeek)),
			Level:       level,
		}, true
	}

	previous := intMean(lastWeek)
	diff := current - previous
	switch {
	case diff > trendBand:
		return Insight{
			Kind:        KindTrend,
			Title:       fmt.Sprintf("Improving by %d Points", diff),
			Description: fmt.Sprintf("Your connection quality improved from %d to %d this week", previous, current),
			Level:       LevelGood,
		}, true
	case diff < -trendBand:
		return Insight{
			Kind:        KindTrend,
			Title:       fmt.Sprintf("Declining by %d Points", -diff),
			Description: fmt.Sprintf("Your connection quality dropped from %d to %d this week", previous, current),
			Level:       LevelCritical,
		}, true
	default:
		return Insight{
			Kind:        KindTrend,
			Title:       fmt.Sprintf("Stable at %d Points", current),
			Description: "Your connection quality has been consistent this week",
			Level:       LevelNeutral,
		}, true
	}
}

func overallAverage(sessions []types.Session) (Insight, bool) {
	var latencies, losses []float64
	for i := range sessions {
		stats := sessions[i].Stats()
		if stats.Avg != nil {
			latencies = append(latencies, *stats.Avg)
		}
		losses = append(losses, stats.PacketLoss)
	}
	if len(latencies) == 0 {
		return Insight{}, false
	}
	avg := mean(latencies)
	level := LevelWarning
	switch {
	case avg < 50:
		level = LevelGood
	case avg < 100:
		level = LevelNeutral
	}
	return Insight{
		Kind:        KindAverage,
		Title:       fmt.Sprintf("Average Ping: %dms", int(avg)),
		Description: fmt.Sprintf("Across %d sessions with %.1f%% average packet loss", len(sessions), mean(losses)),
		Level:       level,
	}, true
}

func bestTimeOfDay(sessions []types.Session, loc *time.Location) (Insight, bool) {
	var (
		best     Period
		withData int
	)
	for _, p := range TimeOfDay(sessions, loc) {
		if p.SessionCount == 0 || p.AvgScore == 0 {
			continue
		}
		if withData == 0 || p.AvgScore > best.AvgScore {
			best = p
		}
		withData++
	}
	if withData < 2 {
		return Insight{}, false
	}
	return Insight{
		Kind:        KindBestTime,
		Title:       fmt.Sprintf("Best Time: %s", best.Name),
		Description: fmt.Sprintf("Your connection performs best during %s (score: %d)", best.HourRange, best.AvgScore),
		Level:       LevelGood,
	}, true
}

func compareNetworks(sessions []types.Session) (Insight, bool) {
	var wifi, cellular []float64
	for i := range sessions {
		avg := sessions[i].Stats().Avg
		if avg == nil {
			continue
		}
		switch sessions[i].NetworkType {
		case types.NetworkWiFi:
			wifi = append(wifi, *avg)
		case types.NetworkCellular:
			cellular = append(cellular, *avg)
		}
	}
	if len(wifi) == 0 || len(cellular) == 0 {
		return Insight{}, false
	}
	wifiAvg, cellAvg := mean(wifi), mean(cellular)
	if wifiAvg < cellAvg {
		return Insight{
			Kind:        KindNetwork,
			Title:       fmt.Sprintf("WiFi is %dms Faster", int(cellAvg-wifiAvg)),
			Description: fmt.Sprintf("WiFi averages %dms vs Cellular at %dms", int(wifiAvg), int(cellAvg)),
			Level:       LevelNeutral,
		}, true
	}
	return Insight{
		Kind:        KindNetwork,
		Title:       fmt.Sprintf("Cellular is %dms Faster", int(wifiAvg-cellAvg)),
		Description: fmt.Sprintf("Cellular averages %dms vs WiFi at %dms", int(cellAvg), int(wifiAvg)),
		Level:       LevelNeutral,
	}, true
}

func consistency(sessions []types.Session) (Insight, bool) {
	var scores []float64
	for i := range sessions {
		if sessions[i].QualityScore != nil {
			scores = append(scores, float64(*sessions[i].QualityScore))
		}
	}
	if len(scores) < 3 {
		return Insight{}, false
	}
	avg := mean(scores)
	var variance float64
	for _, s := range scores {
		variance += (s - avg) * (s - avg)
	}
	stdDev := math.Sqrt(variance / float64(len(scores)))

	switch {
	case stdDev < 10:
		return Insight{
			Kind:        KindConsistency,
			Title:       "Very Consistent Connection",
			Description: fmt.Sprintf("Your quality score only varies by %d points between sessions", int(stdDev)),
			Level:       LevelGood,
		}, true
	case stdDev < 20:
		return Insight{
			Kind:        KindConsistency,
			Title:       "Moderately Consistent",
			Description: fmt.Sprintf("Your quality varies by about %d points between sessions", int(stdDev)),
			Level:       LevelNeutral,
		}, true
	default:
		return Insight{
			Kind:        KindConsistency,
			Title:       "Inconsistent Connection",
			Description: fmt.Sprintf("Your quality varies widely (%d point swings), consider investigating", int(stdDev)),
			Level:       LevelWarning,
		}, true
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// intMean truncates like integer division.
func intMean(values []int) int {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum / len(values)
}
