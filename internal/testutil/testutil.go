// Package testutil provides test doubles shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/stretchr/testify/mock"
)

// MockPage is a mock implementation of page.Page
type MockPage struct {
	mock.Mock

	mu      sync.Mutex
	exposed map[string]page.ExposedFunc
}

var _ page.Page = (*MockPage)(nil)

// Evaluate mocks page evaluation
func (m *MockPage) Evaluate(ctx context.Context, fn string, args ...any) ([]byte, error) {
	ret := m.Called(ctx, fn, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]byte), ret.Error(1)
}

// ExposeFunction mocks exposing a host function and remembers it for Fire
func (m *MockPage) ExposeFunction(ctx context.Context, name string, fn page.ExposedFunc) error {
	if err := m.Called(ctx, name, fn).Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exposed == nil {
		m.exposed = make(map[string]page.ExposedFunc)
	}
	m.exposed[name] = fn
	return nil
}

// RemoveExposedFunction mocks removing a host function
func (m *MockPage) RemoveExposedFunction(ctx context.Context, name string) error {
	if err := m.Called(ctx, name).Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.exposed, name)
	return nil
}

// Goto mocks navigation
func (m *MockPage) Goto(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

// URL mocks the current document URL
func (m *MockPage) URL() string {
	return m.Called().String(0)
}

// Close mocks closing the page
func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Exposed lists the names currently exposed
func (m *MockPage) Exposed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.exposed))
	for name := range m.exposed {
		names = append(names, name)
	}
	return names
}

// Fire calls an exposed function as the page would. It reports false when
// name is not exposed.
func (m *MockPage) Fire(name string, args ...string) bool {
	m.mu.Lock()
	fn, ok := m.exposed[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		raw[i] = json.RawMessage(arg)
	}
	fn(raw)
	return true
}

// NewMockPage creates a MockPage whose calls all succeed unless a test
// overrides them. Evaluate answers true.
func NewMockPage(t *testing.T) *MockPage {
	t.Helper()
	m := &MockPage{}
	m.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Return([]byte("true"), nil).Maybe()
	m.On("ExposeFunction", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("RemoveExposedFunction", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Goto", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("URL").Return("about:blank").Maybe()
	m.On("Close", mock.Anything).Return(nil).Maybe()
	return m
}
