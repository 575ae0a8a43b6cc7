package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileWriter stores run outcomes as a JSON document per run.
type FileWriter struct {
	dir      string
	instance string
}

var _ ports.ResultsWriter = (*FileWriter)(nil)

// NewFileWriter writes into dir; instance becomes part of the file name.
func NewFileWriter(dir, instance string) *FileWriter {
	if dir == "" {
		dir = "."
	}
	return &FileWriter{dir: dir, instance: unsafeName.ReplaceAllString(instance, "_")}
}

// WriteResults writes upload_results_{instance}_{runID}.json and returns its path.
func (w *FileWriter) WriteResults(_ context.Context, runID string, outcomes []domain.UploadOutcome) (string, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	payload, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	name := "upload_results_" + runID + ".json"
	if w.instance != "" {
		name = "upload_results_" + w.instance + "_" + runID + ".json"
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}
