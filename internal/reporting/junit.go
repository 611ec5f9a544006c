package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/observability"
	"github.com/xkilldash9x/storefront-cli/internal/results"
)

// SuiteName names the JUnit test suite of each run.
const SuiteName = "storefront"

// JUnitReporter renders each run as a <testsuite> for CI dashboards.
type JUnitReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
	doc    *etree.Document
	suites *etree.Element
}

func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return &JUnitReporter{
		writer: writer,
		logger: observability.GetLogger().Named("junit_reporter"),
		doc:    doc,
		suites: doc.CreateElement("testsuites"),
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (r *JUnitReporter) Write(run *results.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := results.Summarize(run)
	suite := r.suites.CreateElement("testsuite")
	suite.CreateAttr("name", SuiteName)
	suite.CreateAttr("id", run.ID)
	suite.CreateAttr("tests", strconv.Itoa(sum.Total))
	suite.CreateAttr("failures", strconv.Itoa(sum.Failed))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("time", seconds(run.Duration()))
	suite.CreateAttr("timestamp", run.StartedAt.UTC().Format(time.RFC3339))

	for _, o := range run.Outcomes {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", o.Scenario)
		tc.CreateAttr("classname", SuiteName)
		tc.CreateAttr("time", seconds(o.Duration))
		if !o.Passed() {
			failure := tc.CreateElement("failure")
			failure.CreateAttr("message", o.Error)
			failure.CreateAttr("type", "AssertionError")
			failure.SetText(o.Error)
		}
		props := tc.CreateElement("properties")
		prop := props.CreateElement("property")
		prop.CreateAttr("name", "degraded")
		prop.CreateAttr("value", strconv.FormatInt(o.Degraded, 10))
		if o.Screenshot != "" {
			tc.CreateElement("system-out").SetText("screenshot: " + o.Screenshot)
		}
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.Indent(2)
	var encodeErr error
	if _, err := r.doc.WriteTo(r.writer); err != nil {
		r.logger.Error("Failed to write JUnit report.", zap.Error(err))
		encodeErr = fmt.Errorf("failed to write JUnit output: %w", err)
	}
	return finish(r.writer, encodeErr)
}
