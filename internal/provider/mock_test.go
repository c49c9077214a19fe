package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/pkg/brightlocal"
)

type mockBrightLocal struct {
	mock.Mock
}

func (m *mockBrightLocal) AddReport(ctx context.Context, req brightlocal.AddReportRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockBrightLocal) RunReport(ctx context.Context, reportID string) error {
	args := m.Called(ctx, reportID)
	return args.Error(0)
}

func (m *mockBrightLocal) GetReport(ctx context.Context, reportID string) (*brightlocal.Report, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*brightlocal.Report), args.Error(1)
}

func (m *mockBrightLocal) GetResults(ctx context.Context, reportID string) (*brightlocal.Results, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*brightlocal.Results), args.Error(1)
}

func (m *mockBrightLocal) DeleteReport(ctx context.Context, reportID string) error {
	args := m.Called(ctx, reportID)
	return args.Error(0)
}

type mockReportClient struct {
	mock.Mock
}

func (m *mockReportClient) SubmitReport(ctx context.Context, rec model.AuthoritativeRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockReportClient) StartReport(ctx context.Context, reportID string) error {
	args := m.Called(ctx, reportID)
	return args.Error(0)
}

func (m *mockReportClient) GetReportStatus(ctx context.Context, reportID string) (string, error) {
	args := m.Called(ctx, reportID)
	return args.String(0), args.Error(1)
}

func (m *mockReportClient) GetReportListings(ctx context.Context, reportID string) ([]model.ProviderListing, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProviderListing), args.Error(1)
}

func (m *mockReportClient) DeleteReport(ctx context.Context, reportID string) error {
	args := m.Called(ctx, reportID)
	return args.Error(0)
}
