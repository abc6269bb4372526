// Package mocks provides test doubles for the anthropic client.
package mocks

import (
	"context"

	anthropic "github.com/sells-group/claims-cli/pkg/anthropic"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreateMessage provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateMessage")
	}

	var r0 *anthropic.MessageResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*anthropic.MessageResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// StreamMessage provides a mock function with given fields: ctx, req, onText.
// When the first return value is a *MessageResponse, its text is replayed to
// onText block by block.
func (_m *MockClient) StreamMessage(ctx context.Context, req anthropic.MessageRequest, onText func(string)) (*anthropic.MessageResponse, error) {
	ret := _m.Called(ctx, req, onText)

	if len(ret) == 0 {
		panic("no return value specified for StreamMessage")
	}

	if rf, ok := ret.Get(0).(func(context.Context, anthropic.MessageRequest, func(string)) (*anthropic.MessageResponse, error)); ok {
		return rf(ctx, req, onText)
	}

	var r0 *anthropic.MessageResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*anthropic.MessageResponse)
		if onText != nil {
			for _, b := range r0.Content {
				onText(b.Text)
			}
		}
	}
	return r0, ret.Error(1)
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
