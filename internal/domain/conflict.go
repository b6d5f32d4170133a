package domain

// Conflict sources, in the order the validator scans them.
const (
	ConflictSourceDraftMatch = "DRAFT_MATCH"
	ConflictSourceOpenMatch  = "OPEN_MATCH"
	ConflictSourceBooking    = "BOOKING"
)

// Conflict severities, ordered weakest to strongest.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// ConflictEntry describes one overlapping commitment. Ephemeral; never stored.
type ConflictEntry struct {
	SourceType     string  `json:"source_type" enum:"DRAFT_MATCH,OPEN_MATCH,BOOKING"`
	SourceID       string  `json:"source_id"`
	Label          string  `json:"label,omitempty"`
	Location       string  `json:"location,omitempty"`
	StartsAt       string  `json:"starts_at" format:"date-time"`
	EndsAt         string  `json:"ends_at" format:"date-time"`
	Severity       string  `json:"severity" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	OverlapPercent float64 `json:"overlap_percent"`
}

// ConflictReport aggregates conflicts for one candidate window. The caller
// decides whether to block or merely warn.
type ConflictReport struct {
	Conflicts       []ConflictEntry `json:"conflicts"`
	SourceCounts    map[string]int  `json:"source_counts,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// HasConflicts reports whether any overlap was found.
func (r ConflictReport) HasConflicts() bool { return len(r.Conflicts) > 0 }
