package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// RespondError writes the standard {success:false, error:{code,message}}
// envelope for the given code and message.
func RespondError(w http.ResponseWriter, code Code, message string) {
	WriteHTTP(w, NewAPIError(code, message))
}
