// Package mocks provides test doubles for the provider capability.
package mocks

import (
	"context"

	provider "github.com/sells-group/journal-harness/internal/provider"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Chat provides a mock function with given fields: ctx, req
func (_m *MockClient) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Chat")
	}

	var r0 *provider.ChatResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, provider.ChatRequest) (*provider.ChatResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, provider.ChatRequest) *provider.ChatResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*provider.ChatResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, provider.ChatRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
