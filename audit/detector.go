package audit

import (
	"fmt"
	"strings"

	"github.com/crewmind-ai/crewmind/types"
)

// ConflictDetector decides whether two same-topic records contradict each
// other. The heuristic is pluggable; the contract only fixes that detection
// is symmetric and side-effect free.
type ConflictDetector interface {
	Detect(a, b *types.MemoryRecord) (reason string, conflict bool)
}

// StatusMarkerDetector flags pairs where one record asserts completion or
// success and the other asserts failure or rollback of the same subject.
type StatusMarkerDetector struct {
	// PositiveMarkers assert completion. Zero value uses defaults.
	PositiveMarkers []string

	// NegativeMarkers assert failure. Zero value uses defaults.
	NegativeMarkers []string
}

var (
	defaultPositiveMarkers = []string{
		"resolved", "completed", "succeeded", "success", "fixed", "done", "deployed",
	}
	defaultNegativeMarkers = []string{
		"failed", "failure", "rolled back", "rollback", "broken", "aborted", "reverted",
	}
)

// Detect reports a conflict when the two contents carry opposite status
// markers.
func (d *StatusMarkerDetector) Detect(a, b *types.MemoryRecord) (string, bool) {
	positive := d.PositiveMarkers
	if len(positive) == 0 {
		positive = defaultPositiveMarkers
	}
	negative := d.NegativeMarkers
	if len(negative) == 0 {
		negative = defaultNegativeMarkers
	}

	posA, negA := markersIn(a.Content, positive), markersIn(a.Content, negative)
	posB, negB := markersIn(b.Content, positive), markersIn(b.Content, negative)

	switch {
	case posA != "" && negA == "" && negB != "" && posB == "":
		return fmt.Sprintf("opposite status markers: %q vs %q", posA, negB), true
	case posB != "" && negB == "" && negA != "" && posA == "":
		return fmt.Sprintf("opposite status markers: %q vs %q", posB, negA), true
	}
	return "", false
}

// markersIn returns the first marker found in content, lowercased matching.
func markersIn(content string, markers []string) string {
	lower := strings.ToLower(content)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}
