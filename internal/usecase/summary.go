package usecase

import (
	"fmt"
	"strings"
	"time"

	"ReelRelay/internal/domain"
)

// FormatSummary renders a run summary as a short chat message.
func FormatSummary(summary domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ReelRelay run %s\n", shortID(summary.RunID))
	fmt.Fprintf(&b, "Processed: %d | Uploaded: %d | Failed: %d\n",
		summary.Processed, summary.Succeeded, summary.Failed)
	if !summary.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	}
	for _, itemErr := range summary.Errors {
		fmt.Fprintf(&b, "- %s: %s\n", itemErr.ID, itemErr.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
