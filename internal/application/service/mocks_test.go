package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/event"
	"github.com/garyjia/expense-router/internal/domain/routing"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/memory"
)

// mockLogger for testing
type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockTxManager for testing
type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// mockPublisher records published events
type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, evts ...*event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evts...)
}

func (m *mockPublisher) Types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}

func (m *mockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// mockConverter converts with fixed rates into USD
type mockConverter struct {
	rates map[string]float64
}

func (m *mockConverter) Convert(amount float64, currency string) (float64, error) {
	if currency == "" {
		currency = "USD"
	}
	rate, ok := m.rates[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("unsupported currency %s", currency)
	}
	return amount * rate, nil
}

func (m *mockConverter) ReportingCurrency() string { return "USD" }

func newMockConverter() *mockConverter {
	return &mockConverter{rates: map[string]float64{"USD": 1, "EUR": 1.5}}
}

// mockReportWriter records the last report it rendered
type mockReportWriter struct {
	report    *port.ExpenseReport
	writeFunc func(ctx context.Context, w io.Writer, report *port.ExpenseReport) error
}

func (m *mockReportWriter) Write(ctx context.Context, w io.Writer, report *port.ExpenseReport) error {
	m.report = report
	if m.writeFunc != nil {
		return m.writeFunc(ctx, w, report)
	}
	_, err := fmt.Fprintf(w, "rows=%d", len(report.Rows))
	return err
}

func (m *mockReportWriter) ContentType() string { return "text/plain" }
func (m *mockReportWriter) Extension() string   { return ".txt" }

// mockStorage keeps saved files in memory
type mockStorage struct {
	files    map[string][]byte
	saveFunc func(ctx context.Context, path string, content []byte) error
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, path, content)
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = bytes.Clone(content)
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, port.ErrNotFound
	}
	return content, nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/reports/" + relativePath
}

// demoRepos returns repositories loaded with the demo organisation
func demoRepos(t *testing.T) port.Repositories {
	t.Helper()
	repos := memory.NewStore().Repositories()
	if err := memory.DemoDataset().Load(context.Background(), repos); err != nil {
		t.Fatalf("load demo dataset: %v", err)
	}
	return repos
}

func newRouter(t *testing.T) *routing.Router {
	t.Helper()
	router, err := routing.NewRouter(routing.DefaultRules())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router
}
