// Package mocks holds testify mocks for the interfaces the runner and the
// command layer depend on.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/storefront-cli/internal/reporting"
	"github.com/xkilldash9x/storefront-cli/internal/results"
)

// -- Screenshot Saver Mock --

// MockScreenshotSaver mocks the runner's failure capture sink.
type MockScreenshotSaver struct {
	mock.Mock
}

func (m *MockScreenshotSaver) SaveScreenshot(scenario string, png []byte) (string, error) {
	args := m.Called(scenario, png)
	return args.String(0), args.Error(1)
}

// -- Reporter Mock --

// MockReporter mocks reporting.Reporter.
type MockReporter struct {
	mock.Mock
}

var _ reporting.Reporter = (*MockReporter)(nil)

func (m *MockReporter) Write(run *results.Run) error {
	args := m.Called(run)
	return args.Error(0)
}

func (m *MockReporter) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Run Store Mock --

// MockRunStore mocks the persistence of finished runs.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) SaveRun(ctx context.Context, run *results.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}
