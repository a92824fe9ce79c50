package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docverify/internal/analyzer"
	"docverify/internal/model"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, p analyzer.Payload) (*model.Verdict, error) {
	args := m.Called(ctx, p)
	if f, ok := args.Get(0).(func(context.Context, analyzer.Payload) (*model.Verdict, error)); ok {
		return f(ctx, p)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Verdict), args.Error(1)
}
