// Package mocks provides mock implementations of engine interfaces for
// testing.
package mocks

import (
	"context"
	"time"

	"github.com/beaconops/flock/pkg/session"
	"github.com/stretchr/testify/mock"
)

// MockSurface is a mock implementation of the session.Surface interface.
type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)

	return args.Error(0)
}

func (m *MockSurface) Run(ctx context.Context, script string, timeout time.Duration) (session.ScriptResult, error) {
	args := m.Called(ctx, script, timeout)

	result, _ := args.Get(0).(session.ScriptResult)

	return result, args.Error(1)
}

// MockSessionManager is a mock implementation of the session.Manager
// interface. WithSurface invokes fn with the configured surface so tests
// exercise the real callback path.
type MockSessionManager struct {
	mock.Mock

	Surface *MockSurface
}

func (m *MockSessionManager) HasAuthSignal(ctx context.Context, accountID string) (bool, error) {
	args := m.Called(ctx, accountID)

	return args.Bool(0), args.Error(1)
}

func (m *MockSessionManager) WithSurface(ctx context.Context, accountID string, fn func(session.Surface) error) error {
	args := m.Called(ctx, accountID, fn)

	if err := args.Error(0); err != nil {
		return err
	}

	if m.Surface != nil {
		return fn(m.Surface)
	}

	return nil
}
