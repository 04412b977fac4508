// Package report persists batch results to an append-only CSV log and
// renders the final run report.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/llmbench/llmbench/internal/bench"
)

// Sink receives one record per completed batch.
type Sink interface {
	Append(bench.BatchResult) error
}

var csvHeader = []string{
	"engine", "prompt_type", "max_tokens",
	"successful_requests", "total_requests",
	"avg_response_time", "min_response_time", "max_response_time",
	"avg_tokens", "avg_tokens_per_second", "std_dev_response_time",
}

// CSVWriter appends batch results to a CSV file. Appends are serialized and
// flushed record by record, so rows written before an interrupt survive it.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates the result log at path, overwriting any previous
// file, and writes the header row.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create result log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// Append writes one batch result. Times are reported in seconds with three
// fixed decimals, token counts as integers. A fully failed batch writes
// zero values for every aggregate field.
func (w *CSVWriter) Append(r bench.BatchResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	record := []string{
		r.Engine,
		r.PromptType,
		fmt.Sprintf("%d", r.MaxTokens),
		fmt.Sprintf("%d", r.Successful),
		fmt.Sprintf("%d", r.Total),
		fmt.Sprintf("%.3f", r.AvgElapsed),
		fmt.Sprintf("%.3f", r.MinElapsed),
		fmt.Sprintf("%.3f", r.MaxElapsed),
		fmt.Sprintf("%d", r.AvgTokens),
		fmt.Sprintf("%.3f", r.AvgTokensPerSecond),
		fmt.Sprintf("%.3f", r.StdDevElapsed),
	}

	if err := w.writer.Write(record); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the underlying file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.file.Close()
}
