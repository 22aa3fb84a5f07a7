// Package mocks provides test doubles for the leadsapi client.
package mocks

import (
	"context"
	"io"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/leadgen-cli/internal/model"
	leadsapi "github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

var _ leadsapi.Client = (*MockClient)(nil)

func ret0[T any](ret mock.Arguments) *T {
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).(*T)
}

// ExtractURLs provides a mock function with given fields: ctx, req
func (_m *MockClient) ExtractURLs(ctx context.Context, req leadsapi.ExtractRequest) (*leadsapi.JobStarted, error) {
	ret := _m.Called(ctx, req)
	return ret0[leadsapi.JobStarted](ret), ret.Error(1)
}

// GetJob provides a mock function with given fields: ctx, id
func (_m *MockClient) GetJob(ctx context.Context, id string) (*model.Job, error) {
	ret := _m.Called(ctx, id)
	return ret0[model.Job](ret), ret.Error(1)
}

// EnrichContacts provides a mock function with given fields: ctx, inputFilename
func (_m *MockClient) EnrichContacts(ctx context.Context, inputFilename string) (*leadsapi.JobStarted, error) {
	ret := _m.Called(ctx, inputFilename)
	return ret0[leadsapi.JobStarted](ret), ret.Error(1)
}

// RankSEO provides a mock function with given fields: ctx, inputFilename
func (_m *MockClient) RankSEO(ctx context.Context, inputFilename string) (*leadsapi.JobStarted, error) {
	ret := _m.Called(ctx, inputFilename)
	return ret0[leadsapi.JobStarted](ret), ret.Error(1)
}

// RankCSVFile provides a mock function with given fields: ctx, filename, body
func (_m *MockClient) RankCSVFile(ctx context.Context, filename string, body io.Reader) (*leadsapi.RankResponse, error) {
	ret := _m.Called(ctx, filename, body)
	return ret0[leadsapi.RankResponse](ret), ret.Error(1)
}

// Download provides a mock function with given fields: ctx, jobID
func (_m *MockClient) Download(ctx context.Context, jobID string) ([]byte, error) {
	ret := _m.Called(ctx, jobID)
	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// ListFiles provides a mock function with given fields: ctx
func (_m *MockClient) ListFiles(ctx context.Context) (*leadsapi.FileList, error) {
	ret := _m.Called(ctx)
	return ret0[leadsapi.FileList](ret), ret.Error(1)
}

// UploadAuditFile provides a mock function with given fields: ctx, filename, body
func (_m *MockClient) UploadAuditFile(ctx context.Context, filename string, body io.Reader) (*leadsapi.UploadResponse, error) {
	ret := _m.Called(ctx, filename, body)
	return ret0[leadsapi.UploadResponse](ret), ret.Error(1)
}

// RunAudit provides a mock function with given fields: ctx, inputFilename, limit
func (_m *MockClient) RunAudit(ctx context.Context, inputFilename string, limit int) (*leadsapi.JobStarted, error) {
	ret := _m.Called(ctx, inputFilename, limit)
	return ret0[leadsapi.JobStarted](ret), ret.Error(1)
}

// GetAuditJob provides a mock function with given fields: ctx, id
func (_m *MockClient) GetAuditJob(ctx context.Context, id string) (*model.Job, error) {
	ret := _m.Called(ctx, id)
	return ret0[model.Job](ret), ret.Error(1)
}

// DownloadAudit provides a mock function with given fields: ctx, jobID
func (_m *MockClient) DownloadAudit(ctx context.Context, jobID string) ([]byte, error) {
	ret := _m.Called(ctx, jobID)
	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// Register provides a mock function with given fields: ctx, req
func (_m *MockClient) Register(ctx context.Context, req leadsapi.RegisterRequest) (*leadsapi.User, error) {
	ret := _m.Called(ctx, req)
	return ret0[leadsapi.User](ret), ret.Error(1)
}

// Login provides a mock function with given fields: ctx, email, password
func (_m *MockClient) Login(ctx context.Context, email string, password string) (*leadsapi.TokenPair, error) {
	ret := _m.Called(ctx, email, password)
	return ret0[leadsapi.TokenPair](ret), ret.Error(1)
}

// Refresh provides a mock function with given fields: ctx, refreshToken
func (_m *MockClient) Refresh(ctx context.Context, refreshToken string) (*leadsapi.TokenPair, error) {
	ret := _m.Called(ctx, refreshToken)
	return ret0[leadsapi.TokenPair](ret), ret.Error(1)
}

// Me provides a mock function with given fields: ctx
func (_m *MockClient) Me(ctx context.Context) (*leadsapi.User, error) {
	ret := _m.Called(ctx)
	return ret0[leadsapi.User](ret), ret.Error(1)
}

// Ask provides a mock function with given fields: ctx, req
func (_m *MockClient) Ask(ctx context.Context, req leadsapi.ChatRequest) (*leadsapi.ChatResponse, error) {
	ret := _m.Called(ctx, req)
	return ret0[leadsapi.ChatResponse](ret), ret.Error(1)
}

// Health provides a mock function with given fields: ctx
func (_m *MockClient) Health(ctx context.Context) (*leadsapi.HealthStatus, error) {
	ret := _m.Called(ctx)
	return ret0[leadsapi.HealthStatus](ret), ret.Error(1)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
