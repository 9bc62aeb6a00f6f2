package api

import "testing"

func TestValidateRequest(t *testing.T) {
	cfg := DefaultValidationConfig()

	cases := []struct {
		name      string
		req       CreateResponseRequest
		wantParam string // "" means valid
	}{
		{
			name: "valid minimal",
			req:  CreateResponseRequest{Model: "sonnet", Input: "hi"},
		},
		{
			name:      "missing model",
			req:       CreateResponseRequest{Input: "hi"},
			wantParam: "model",
		},
		{
			name:      "missing input",
			req:       CreateResponseRequest{Model: "sonnet"},
			wantParam: "input",
		},
		{
			name:      "malformed previous_response_id",
			req:       CreateResponseRequest{Model: "sonnet", Input: "hi", PreviousResponseID: "bogus"},
			wantParam: "previous_response_id",
		},
		{
			name: "well formed previous_response_id",
			req:  CreateResponseRequest{Model: "sonnet", Input: "hi", PreviousResponseID: "resp_abcdefghijklmnopqrstuvwx"},
		},
		{
			name:      "zero max_output_tokens",
			req:       CreateResponseRequest{Model: "sonnet", Input: "hi", MaxOutputTokens: intPtr(0)},
			wantParam: "max_output_tokens",
		},
		{
			name:      "temperature out of range",
			req:       CreateResponseRequest{Model: "sonnet", Input: "hi", Temperature: floatPtr(3.0)},
			wantParam: "temperature",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRequest(&tc.req, cfg)
			if tc.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Param != tc.wantParam {
				t.Errorf("param = %q, want %q", err.Param, tc.wantParam)
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("type = %q, want invalid_request", err.Type)
			}
		})
	}
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
