package fetch

import (
	"net/http"

	"github.com/stretchr/testify/mock"
)

type MockDoer struct {
	mock.Mock
}

// Ensure MockDoer implements Doer
var _ Doer = (*MockDoer)(nil)

func NewMockDoer() *MockDoer {
	return &MockDoer{}
}

func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}
