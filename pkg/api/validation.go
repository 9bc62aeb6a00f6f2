package api

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxInputSize int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxInputSize: 1 << 20, // 1 MB of input text
	}
}

// ValidateRequest checks a CreateResponseRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request
// is valid. Unknown previous_response_id values are not checked here; that
// requires the continuity store and happens in the bridge.
func ValidateRequest(req *CreateResponseRequest, cfg ValidationConfig) *APIError {
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}

	if req.Input == "" {
		return NewInvalidRequestError("input", "input is required")
	}

	if cfg.MaxInputSize > 0 && len(req.Input) > cfg.MaxInputSize {
		return NewInvalidRequestError("input", "input exceeds maximum size")
	}

	if req.PreviousResponseID != "" && !ValidateResponseID(req.PreviousResponseID) {
		return NewInvalidRequestError("previous_response_id", "malformed response ID")
	}

	if req.MaxOutputTokens != nil && *req.MaxOutputTokens <= 0 {
		return NewInvalidRequestError("max_output_tokens", "max_output_tokens must be positive")
	}

	if req.Temperature != nil && (*req.Temperature < 0.0 || *req.Temperature > 2.0) {
		return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
	}

	return nil
}
