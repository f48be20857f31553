package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dmfontes/callscribe/pkg/models"
)

// WhisperCLI runs a whisper-compatible binary that writes a JSON transcript
// per input file into an output directory.
type WhisperCLI struct {
	binary string
	model  string
}

func NewWhisperCLI(binary, model string) *WhisperCLI {
	return &WhisperCLI{binary: binary, model: model}
}

type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string, onProgress func(int)) (*Transcription, error) {
	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.binary,
		audioPath,
		"--model", w.model,
		"--output_dir", outDir,
		"--output_format", "json",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", w.binary, err, stderr.String())
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	segments := make([]models.Segment, len(out.Segments))
	var duration float64
	for i, seg := range out.Segments {
		segments[i] = models.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
		if seg.End > duration {
			duration = seg.End
		}
	}

	reportSegmentProgress(segments, duration, onProgress)

	return &Transcription{
		Segments: segments,
		Language: out.Language,
		Duration: duration,
	}, nil
}

// reportSegmentProgress maps segment end times onto a 0-99 percentage.
// The orchestrator owns the final 100. The CLI only writes its JSON at
// process exit, so the ramp is replayed once the transcript is parsed
// rather than streamed while the model decodes.
func reportSegmentProgress(segments []models.Segment, duration float64, onProgress func(int)) {
	if onProgress == nil {
		return
	}
	if duration <= 0 {
		duration = 1
	}
	for _, seg := range segments {
		pct := int(seg.End / duration * 100)
		if pct > 99 {
			pct = 99
		}
		onProgress(pct)
	}
}
