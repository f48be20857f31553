package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Embedder extracts one speaker embedding per audio span.
type Embedder interface {
	Embed(ctx context.Context, audioPath string, spans []Span) ([][]float64, error)
}

// ExecEmbedder shells out to an embedding CLI. The spans are written to the
// process as a JSON array on stdin; the process answers with a JSON array of
// float vectors on stdout, one per span, in order.
type ExecEmbedder struct {
	binary string
}

// NewExecEmbedder wraps the given embedding binary.
func NewExecEmbedder(binary string) *ExecEmbedder {
	return &ExecEmbedder{binary: binary}
}

func (e *ExecEmbedder) Embed(ctx context.Context, audioPath string, spans []Span) ([][]float64, error) {
	input, err := json.Marshal(spans)
	if err != nil {
		return nil, fmt.Errorf("encode spans: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary, "--input", audioPath, "--output-format", "json")
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", e.binary, err, stderr.String())
	}

	var embeddings [][]float64
	if err := json.Unmarshal(stdout.Bytes(), &embeddings); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	return embeddings, nil
}
