package handlers

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"tradedash/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Коды ошибок API
const (
	CodeInvalidParam = "INVALID_PARAM"
	CodeNotFound     = "NOT_FOUND"
	CodeUnavailable  = "UNAVAILABLE"
)

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// respondJSON пишет v с указанным статусом
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Warn("failed to encode response", utils.Err(err))
	}
}

// respondError пишет ErrorResponse
func respondError(w http.ResponseWriter, status int, code, msg, details string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Code: code, Details: details})
}
