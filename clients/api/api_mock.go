package api

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

// Ensure MockClient implements ClientInterface
var _ ClientInterface = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Get(ctx context.Context, path string, out any) error {
	args := m.Called(ctx, path, out)
	return args.Error(0)
}

func (m *MockClient) Delete(ctx context.Context, path string, out any) error {
	args := m.Called(ctx, path, out)
	return args.Error(0)
}

func (m *MockClient) Post(ctx context.Context, path string, body any, out any) error {
	args := m.Called(ctx, path, body, out)
	return args.Error(0)
}

func (m *MockClient) Put(ctx context.Context, path string, body any, out any) error {
	args := m.Called(ctx, path, body, out)
	return args.Error(0)
}

func (m *MockClient) PatchJSON(ctx context.Context, path string, fields map[string]any, out any) error {
	args := m.Called(ctx, path, fields, out)
	return args.Error(0)
}
