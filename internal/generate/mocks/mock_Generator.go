// Package mocks provides test doubles for the generate package.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	generate "github.com/sells-group/claims-cli/internal/generate"
)

// MockGenerator is a mock type for the Generator interface.
type MockGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, model, prompt
func (_m *MockGenerator) Generate(ctx context.Context, model string, prompt string) (*generate.Generation, error) {
	ret := _m.Called(ctx, model, prompt)

	if len(ret) == 0 {
		panic("no return value specified for Generate")
	}

	var r0 *generate.Generation
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*generate.Generation, error)); ok {
		return rf(ctx, model, prompt)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*generate.Generation)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockGenerator creates a new instance of MockGenerator. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGenerator {
	m := &MockGenerator{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
