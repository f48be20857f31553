package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmfontes/callscribe/pkg/models"
)

func TestFormatTranscript(t *testing.T) {
	segments := []models.Segment{
		{Start: 0, End: 3.5, Text: " hello "},
		{Start: 65.2, End: 70, Text: "goodbye"},
	}

	tests := []struct {
		name       string
		speakers   []int
		timestamps bool
		diarized   bool
		want       string
	}{
		{
			name: "plain",
			want: "hello\ngoodbye",
		},
		{
			name:       "timestamps only",
			timestamps: true,
			want:       "[00:00] hello\n[01:05] goodbye",
		},
		{
			name:     "speakers only",
			speakers: []int{0, 1},
			diarized: true,
			want:     "[Speaker 1] hello\n[Speaker 2] goodbye",
		},
		{
			name:       "both",
			speakers:   []int{1, 1},
			timestamps: true,
			diarized:   true,
			want:       "[00:00] [Speaker 2] hello\n[01:05] [Speaker 2] goodbye",
		},
		{
			name:     "unknown speaker",
			speakers: []int{-1, 0},
			diarized: true,
			want:     "[?] hello\n[Speaker 1] goodbye",
		},
		{
			name:     "missing labels fall back to bare text",
			speakers: []int{0},
			diarized: true,
			want:     "[Speaker 1] hello\ngoodbye",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTranscript(segments, tt.speakers, tt.timestamps, tt.diarized)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "[00:00]", formatTimestamp(0))
	assert.Equal(t, "[00:59]", formatTimestamp(59.9))
	assert.Equal(t, "[02:05]", formatTimestamp(125))
	assert.Equal(t, "[60:00]", formatTimestamp(3600))
}
