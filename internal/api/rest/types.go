// Package rest exposes the decision point over HTTP: emergency token
// management and per-patient record views
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// IssueTokenRequest is the body of an emergency token request
type IssueTokenRequest struct {
	PatientID string `json:"patient_id"`
	Reason    string `json:"reason"`
}

// TokenRequest identifies a token for validation or revocation
type TokenRequest struct {
	TokenID string `json:"token_id"`
}

// TokenListResponse lists the caller's tokens
type TokenListResponse struct {
	Tokens []*types.EmergencyToken `json:"tokens"`
}

// PatientListResponse lists patients
type PatientListResponse struct {
	Count    int        `json:"count"`
	Patients []*Patient `json:"patients"`
}

// GrantedDecision summarizes a granted decision
type GrantedDecision struct {
	Granted      bool     `json:"granted"`
	ChecksPassed []string `json:"checks_passed"`
}

// DeniedDecision summarizes a denial
type DeniedDecision struct {
	Granted      bool     `json:"granted"`
	ChecksFailed []string `json:"checks_failed"`
	Reasons      []string `json:"reasons"`
}

// AccessibleResource is a record the caller may see, with its decision
type AccessibleResource struct {
	Resource types.Resource  `json:"resource"`
	Decision GrantedDecision `json:"access_decision"`
}

// DeniedResource identifies a record the caller may not see. Clinical
// content is withheld.
type DeniedResource struct {
	ID               string            `json:"id"`
	SensitivityLevel int               `json:"sensitivity_level"`
	Fields           map[string]string `json:"fields,omitempty"`
	Decision         DeniedDecision    `json:"access_decision"`
}

// AccessSummary counts the outcome of a records view
type AccessSummary struct {
	Total      int `json:"total"`
	Accessible int `json:"accessible"`
	Denied     int `json:"denied"`
}

// RecordsResponse is the result of a per-patient records view
type RecordsResponse struct {
	Patient           *Patient             `json:"patient"`
	ResourceType      types.ResourceType   `json:"resource_type"`
	IsEmergency       bool                 `json:"is_emergency"`
	HasEmergencyToken bool                 `json:"has_emergency_token"`
	Accessible        []AccessibleResource `json:"accessible"`
	Denied            []DeniedResource     `json:"denied"`
	Summary           AccessSummary        `json:"summary"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		return json.NewEncoder(w).Encode(data)
	}
	return nil
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// writeServiceError maps domain errors to HTTP status codes
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotAuthorized):
		WriteError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, types.ErrNotFound), errors.Is(err, ErrPatientNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, types.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
