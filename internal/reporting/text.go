package reporting

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/xkilldash9x/storefront-cli/internal/results"
)

// TextReporter prints a table per run as soon as it is written.
type TextReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(run *results.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.writer, "Run %s (%s)\n", run.ID, run.Duration().Round(time.Millisecond))
	tw := tabwriter.NewWriter(r.writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tDURATION\tDEGRADED\tDETAIL")
	for _, o := range run.Outcomes {
		detail := o.Error
		if o.Screenshot != "" {
			detail += " [" + o.Screenshot + "]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", o.Scenario, o.Status, o.Duration.Round(time.Millisecond), o.Degraded, detail)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	_, err := fmt.Fprintln(r.writer, results.Summarize(run))
	return err
}

func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return finish(r.writer, nil)
}
