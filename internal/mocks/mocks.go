// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/browser"
	"github.com/xkilldash9x/selfheal/internal/suggest"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Suggestion Mocks --

// MockService mocks suggest.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) Suggest(ctx context.Context, req suggest.Request) (suggest.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(suggest.Response), args.Error(1)
}

func (m *MockService) Classify(ctx context.Context, message string) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}

func (m *MockService) Choose(ctx context.Context, threshold float64, top []schemas.Candidate) (suggest.Choice, error) {
	args := m.Called(ctx, threshold, top)
	return args.Get(0).(suggest.Choice), args.Error(1)
}

// MockSource mocks suggest.Source.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Name() string {
	return m.Called().String(0)
}

func (m *MockSource) Suggest(ctx context.Context, fc schemas.FailureContext, dom string) (*suggest.Suggestion, error) {
	args := m.Called(ctx, fc, dom)
	s, _ := args.Get(0).(*suggest.Suggestion)
	return s, args.Error(1)
}

// -- Browser Mocks --

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) FindElement(ctx context.Context, strategy schemas.Strategy, selector string) (browser.Element, error) {
	args := m.Called(ctx, strategy, selector)
	el, _ := args.Get(0).(browser.Element)
	return el, args.Error(1)
}

func (m *MockDriver) PageSource(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) SaveScreenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) Close() error {
	return m.Called().Error(0)
}

// MockElement mocks browser.Element.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SendKeys(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
