package scoring

import (
	"strings"
	"time"

	"github.com/luxcrm/relay/internal/domain"
)

// triggerKeywords mark subjects that demand near-term attention. Each match
// within the trigger window adds five points.
var triggerKeywords = []string{"urgent", "asap", "deadline", "follow-up", "action required", "time-sensitive"}

const triggerWindowDays = 14

// TriggerScore scans recent subjects for urgency keywords.
func TriggerScore(rows []*domain.Interaction, now time.Time) float64 {
	score := 0.0
	for _, row := range rows {
		if now.Sub(row.Timestamp) > time.Duration(triggerWindowDays)*24*time.Hour {
			continue
		}
		subject := strings.ToLower(row.Subject)
		for _, kw := range triggerKeywords {
			if strings.Contains(subject, kw) {
				score += 5
			}
		}
	}
	return score
}

// OpenLoops counts threads whose latest message came from the contact and
// has not been answered. Rows must be ordered newest-first.
func OpenLoops(rows []*domain.Interaction) int {
	latest := map[string]string{}
	for _, row := range rows {
		thread := row.ThreadID
		if thread == "" {
			thread = row.ID.String()
		}
		if _, ok := latest[thread]; !ok {
			latest[thread] = row.Direction
		}
	}
	open := 0
	for _, direction := range latest {
		if direction == domain.DirectionIn {
			open++
		}
	}
	return open
}

// HeuristicWarmthDelta leans on conversational balance: a contact we write
// to more than we hear from reads as warm outreach, the reverse as inbound
// demand.
func HeuristicWarmthDelta(rows []*domain.Interaction) float64 {
	outbound, inbound := 0, 0
	for _, row := range rows {
		switch row.Direction {
		case domain.DirectionOut:
			outbound++
		case domain.DirectionIn:
			inbound++
		}
	}
	total := outbound + inbound
	if total == 0 {
		return 0
	}
	return float64(outbound-inbound) / float64(total) * 5
}

// HeuristicDepthCount counts distinct threads.
func HeuristicDepthCount(rows []*domain.Interaction) int {
	threads := map[string]struct{}{}
	for _, row := range rows {
		thread := row.ThreadID
		if thread == "" {
			thread = row.ID.String()
		}
		threads[thread] = struct{}{}
	}
	return len(threads)
}

// CountsWithin returns interaction counts inside 30 and 90 day windows.
func CountsWithin(rows []*domain.Interaction, now time.Time) (count30, count90 int) {
	for _, row := range rows {
		age := now.Sub(row.Timestamp)
		if age < 0 {
			age = 0
		}
		if age <= 30*24*time.Hour {
			count30++
		}
		if age <= 90*24*time.Hour {
			count90++
		}
	}
	return count30, count90
}
