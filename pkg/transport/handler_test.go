package transport

import (
	"context"
	"testing"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/tools"
)

func TestAnalysisCreatorFuncAdapter(t *testing.T) {
	var received *api.AnalyzeRequest
	fn := AnalysisCreatorFunc(func(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error {
		received = req
		return nil
	})

	req := &api.AnalyzeRequest{Question: "total sales?"}
	if err := fn.CreateAnalysis(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received != req {
		t.Error("expected the request to be passed through")
	}
}

func TestAnalysisCreatorFuncReturnsError(t *testing.T) {
	fn := AnalysisCreatorFunc(func(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error {
		return api.NewServerError("test error")
	})

	err := fn.CreateAnalysis(context.Background(), &api.AnalyzeRequest{}, nil)
	apiErr, ok := err.(*api.APIError)
	if !ok {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("expected error type %q, got %q", api.ErrorTypeServerError, apiErr.Type)
	}
}

func TestInterfaceSatisfaction(t *testing.T) {
	var _ AnalysisCreator = AnalysisCreatorFunc(nil)
	var _ AnalysisStore = (*mockStore)(nil)
	var _ ToolLister = mockLister{}
}

type mockStore struct{}

func (m *mockStore) SaveAnalysis(_ context.Context, _ *api.Analysis) error          { return nil }
func (m *mockStore) GetAnalysis(_ context.Context, _ string) (*api.Analysis, error) { return nil, nil }
func (m *mockStore) DeleteAnalysis(_ context.Context, _ string) error               { return nil }
func (m *mockStore) ListAnalyses(_ context.Context, _ ListOptions) (*AnalysisList, error) {
	return nil, nil
}
func (m *mockStore) HealthCheck(_ context.Context) error { return nil }
func (m *mockStore) Close() error                        { return nil }

type mockLister struct{}

func (mockLister) ListTools() []tools.Descriptor { return nil }
