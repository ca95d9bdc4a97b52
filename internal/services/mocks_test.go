package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/coinearn/backend/internal/models"
)

type MockDeltaApplier struct {
	mock.Mock
}

func (m *MockDeltaApplier) ApplyDelta(ctx context.Context, d models.Delta) (int64, Outcome, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(int64), args.Get(1).(Outcome), args.Error(2)
}
