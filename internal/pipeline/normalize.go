package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/google/uuid"
)

// FFmpegNormalizer resamples uploads to 16 kHz mono WAV with EBU R128
// loudness normalization, the input format the speech model expects.
type FFmpegNormalizer struct {
	binary string
}

func NewFFmpegNormalizer(binary string) *FFmpegNormalizer {
	return &FFmpegNormalizer{binary: binary}
}

// Normalize writes a normalized copy next to the input and returns its path.
// The caller owns cleanup of the returned file.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	outputPath := fmt.Sprintf("%s_norm_%s.wav", inputPath, uuid.New().String()[:6])

	cmd := exec.CommandContext(ctx, n.binary,
		"-y", "-i", inputPath,
		"-ar", "16000",
		"-ac", "1",
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w: %s", n.binary, err, stderr.String())
	}
	return outputPath, nil
}
