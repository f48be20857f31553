package models

// Segment is one timestamped span of transcribed speech. Segments are
// per-job working data: produced by transcription, consumed by diarization
// and formatting within the same pipeline run, never persisted.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
