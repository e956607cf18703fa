package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cormorant-ai/cormorant/internal/log"
)

// WriteJSON writes a JSON response with the given status code. The payload is
// encoded into a buffer first so headers go out only after encoding
// succeeded and a proper 500 can still be returned on failure.
func WriteJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("writing response body", "error", err)
	}
}

// errorBody is the JSON shape of every API error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a structured JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	WriteJSON(w, status, errorBody{Error: code, Message: message}, logger)
}
