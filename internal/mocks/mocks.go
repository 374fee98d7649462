// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"regexp"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/cookiebot/internal/browser"
	"github.com/xkilldash9x/cookiebot/internal/credential"
)

// -- Browser Mocks --

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) NewSession(ctx context.Context) (browser.Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(browser.Session)
	return s, args.Error(1)
}

// MockSession mocks browser.Session. Selectors and URLs are passed through
// to the recorded call so expectations can match on them.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockSession) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockSession) Submit(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockSession) WaitVisible(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockSession) WaitURL(ctx context.Context, pattern *regexp.Regexp) error {
	return m.Called(ctx, pattern.String()).Error(0)
}

func (m *MockSession) WaitIdle(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) Cookies(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	jar, _ := args.Get(0).(map[string]string)
	return jar, args.Error(1)
}

func (m *MockSession) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	buf, _ := args.Get(0).([]byte)
	return buf, args.Error(1)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

// -- Pipeline Mocks --

// MockAcquirer mocks a single login attempt.
type MockAcquirer struct {
	mock.Mock
}

func (m *MockAcquirer) Acquire(ctx context.Context) (credential.Pair, error) {
	args := m.Called(ctx)
	return args.Get(0).(credential.Pair), args.Error(1)
}

// MockCycleRunner mocks a bounded retry cycle.
type MockCycleRunner struct {
	mock.Mock
}

func (m *MockCycleRunner) RunCycle(ctx context.Context) (credential.Pair, error) {
	args := m.Called(ctx)
	return args.Get(0).(credential.Pair), args.Error(1)
}

// MockPublisher mocks credential publication.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, pair credential.Pair) error {
	return m.Called(ctx, pair).Error(0)
}

// MockMonitor mocks the health loop.
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) Run(ctx context.Context, pair credential.Pair) error {
	return m.Called(ctx, pair).Error(0)
}

// MockRestarter mocks the dependent-service restart.
type MockRestarter struct {
	mock.Mock
}

func (m *MockRestarter) Restart(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
