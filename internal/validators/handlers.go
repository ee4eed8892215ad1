package validators

import (
	"net/http"

	apperrors "github.com/tubelens/backend/internal/errors"
)

// Handlers provides HTTP handlers for URL validation
type Handlers struct {
	registry *Registry
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{
		registry: registry,
	}
}

// ValidateURLResponse is the response for URL validation
type ValidateURLResponse struct {
	ValidationResult
}

// SupportedSourcesResponse is the response for listing supported sources
type SupportedSourcesResponse struct {
	Sources []SourceType `json:"sources"`
}

// ValidateURLQuery handles GET /api/validate?url=...
func (h *Handlers) ValidateURLQuery(w http.ResponseWriter, r *http.Request) error {
	url := r.URL.Query().Get("url")
	if url == "" {
		return apperrors.ValidationError("url query parameter is required")
	}

	result := h.registry.Validate(url)

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, ValidateURLResponse{ValidationResult: result})
	return nil
}

// GetSupportedSources handles GET /api/validate/sources
func (h *Handlers) GetSupportedSources(w http.ResponseWriter, r *http.Request) error {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK,
		SupportedSourcesResponse{Sources: h.registry.GetSupportedSources()})
	return nil
}
