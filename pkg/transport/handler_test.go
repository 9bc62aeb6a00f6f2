package transport

import (
	"context"
	"testing"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

func TestResponseCreatorFuncAdapter(t *testing.T) {
	called := false
	var receivedReq *api.CreateResponseRequest

	fn := ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
		called = true
		receivedReq = req
		return nil
	})

	// Verify it satisfies the interface.
	var _ ResponseCreator = fn

	req := &api.CreateResponseRequest{Model: "test-model"}
	err := fn.CreateResponse(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected function to be called")
	}
	if receivedReq.Model != "test-model" {
		t.Errorf("expected model %q, got %q", "test-model", receivedReq.Model)
	}
}

func TestResponseCreatorFuncReturnsError(t *testing.T) {
	fn := ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
		return api.NewServerError("test error")
	})

	err := fn.CreateResponse(context.Background(), &api.CreateResponseRequest{}, nil)
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	apiErr, ok := err.(*api.APIError)
	if !ok {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("expected error type %q, got %q", api.ErrorTypeServerError, apiErr.Type)
	}
}
