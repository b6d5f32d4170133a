// Package conflict checks a candidate time window against a user's existing
// commitments: draft matches they created or were approved into, open matches
// they created or joined, and confirmed venue bookings.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"courtside/internal/domain"
	"courtside/internal/repo"
)

// Store supplies the commitment intervals the validator scans.
type Store interface {
	ListDraftCommitments(ctx context.Context, userID, excludeID string) ([]repo.Commitment, error)
	ListOpenMatchCommitments(ctx context.Context, userID, excludeID string) ([]repo.Commitment, error)
	ListBookingCommitments(ctx context.Context, userID, excludeID string) ([]repo.Commitment, error)
}

var severityRank = map[string]int{
	domain.SeverityLow:      0,
	domain.SeverityMedium:   1,
	domain.SeverityHigh:     2,
	domain.SeverityCritical: 3,
}

// Validate scans all three commitment sources and returns every overlap with
// the candidate window, strongest severity first. Intervals are half-open, so
// back-to-back commitments (one ending exactly when the other starts) do not
// conflict. excludeID drops the entity the check is being run for.
func Validate(ctx context.Context, store Store, userID string, startsAt, endsAt time.Time, excludeID string) (domain.ConflictReport, error) {
	var report domain.ConflictReport

	var all []repo.Commitment
	for _, list := range []func(context.Context, string, string) ([]repo.Commitment, error){
		store.ListDraftCommitments,
		store.ListOpenMatchCommitments,
		store.ListBookingCommitments,
	} {
		cs, err := list(ctx, userID, excludeID)
		if err != nil {
			return report, err
		}
		all = append(all, cs...)
	}

	duration := endsAt.Sub(startsAt)
	for _, c := range all {
		if !startsAt.Before(c.EndsAt) || !endsAt.After(c.StartsAt) {
			continue
		}
		overlap := overlapOf(startsAt, endsAt, c.StartsAt, c.EndsAt)
		pct := float64(overlap) / float64(duration)
		report.Conflicts = append(report.Conflicts, domain.ConflictEntry{
			SourceType:     c.SourceType,
			SourceID:       c.SourceID,
			Label:          c.Label,
			Location:       c.Location,
			StartsAt:       c.StartsAt.UTC().Format(time.RFC3339),
			EndsAt:         c.EndsAt.UTC().Format(time.RFC3339),
			Severity:       severityFor(pct),
			OverlapPercent: pct,
		})
	}
	if len(report.Conflicts) == 0 {
		return report, nil
	}

	sort.SliceStable(report.Conflicts, func(i, j int) bool {
		a, b := report.Conflicts[i], report.Conflicts[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] > severityRank[b.Severity]
		}
		return a.OverlapPercent > b.OverlapPercent
	})

	report.SourceCounts = make(map[string]int)
	for _, c := range report.Conflicts {
		report.SourceCounts[c.SourceType]++
	}
	report.Recommendations = recommend(report.Conflicts)
	return report, nil
}

func overlapOf(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	return end.Sub(start)
}

// severityFor grades the overlap by its share of the candidate window.
// Thresholds are inclusive: exactly half the window is HIGH.
func severityFor(pct float64) string {
	switch {
	case pct >= 0.8:
		return domain.SeverityCritical
	case pct >= 0.5:
		return domain.SeverityHigh
	case pct >= 0.2:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func recommend(conflicts []domain.ConflictEntry) []string {
	worst := conflicts[0]
	var recs []string
	switch worst.Severity {
	case domain.SeverityCritical:
		recs = append(recs, "the window is almost entirely taken; pick a different time")
	case domain.SeverityHigh:
		recs = append(recs, fmt.Sprintf("more than half the window overlaps a %s; consider rescheduling", sourceNoun(worst.SourceType)))
	case domain.SeverityMedium:
		recs = append(recs, fmt.Sprintf("partial overlap with a %s; expect a late arrival or early exit", sourceNoun(worst.SourceType)))
	default:
		recs = append(recs, "overlaps are minor; joining is likely fine")
	}
	if len(conflicts) > 1 {
		recs = append(recs, fmt.Sprintf("%d commitments overlap this window in total", len(conflicts)))
	}
	return recs
}

func sourceNoun(sourceType string) string {
	switch sourceType {
	case domain.ConflictSourceDraftMatch:
		return "draft match"
	case domain.ConflictSourceOpenMatch:
		return "confirmed match"
	case domain.ConflictSourceBooking:
		return "venue booking"
	default:
		return "commitment"
	}
}
