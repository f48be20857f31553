package pipeline

import (
	"fmt"
	"strings"

	"github.com/dmfontes/callscribe/pkg/models"
)

// FormatTranscript renders one line per segment, optionally prefixed with a
// [MM:SS] timestamp and a [Speaker N] tag. Speaker numbering is 1-based;
// a negative label renders as [?].
func FormatTranscript(segments []models.Segment, speakers []int, withTimestamps, withSpeakers bool) string {
	lines := make([]string, 0, len(segments))
	for i, seg := range segments {
		var parts []string

		if withTimestamps {
			parts = append(parts, formatTimestamp(seg.Start))
		}
		if withSpeakers && i < len(speakers) {
			if speakers[i] >= 0 {
				parts = append(parts, fmt.Sprintf("[Speaker %d]", speakers[i]+1))
			} else {
				parts = append(parts, "[?]")
			}
		}

		parts = append(parts, strings.TrimSpace(seg.Text))
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}

func formatTimestamp(seconds float64) string {
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("[%02d:%02d]", m, s)
}
