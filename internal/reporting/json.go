package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/observability"
	"github.com/xkilldash9x/storefront-cli/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonRun struct {
	*results.Run
	Summary results.Summary `json:"summary"`
}

type jsonDocument struct {
	Runs []jsonRun `json:"runs"`
}

// JSONReporter buffers runs and encodes them as one document on Close.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
	doc    jsonDocument
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		doc:    jsonDocument{Runs: []jsonRun{}},
	}
}

func (r *JSONReporter) Write(run *results.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Runs = append(r.doc.Runs, jsonRun{Run: run, Summary: results.Summarize(run)})
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	var encodeErr error
	if err := encoder.Encode(r.doc); err != nil {
		r.logger.Error("Failed to encode JSON report.", zap.Error(err))
		encodeErr = fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return finish(r.writer, encodeErr)
}
