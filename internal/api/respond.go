package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/requestid"
)

// writeJSON encodes v before committing the status, so a value that cannot be
// encoded becomes an INTERNAL_ERROR envelope instead of an empty response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: ErrorBody{
			Code:      errors.ErrCodeInternal,
			Operation: "encode response",
			Message:   "response could not be encoded",
		}})
	}
	body = append(body, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError renders err in the error envelope. Unclassified errors never leak their cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	stdErr := errors.Normalize(operation, err)
	status := errors.HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"code":      stdErr.Code,
		"operation": stdErr.Operation,
		"requestId": requestid.FromContext(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		fields["error"] = err.Error()
		if cause := stdErr.Unwrap(); cause != nil {
			fields["cause"] = cause.Error()
		}
		s.logger.Error("Request failed", fields)
	} else {
		s.logger.Debug("Request rejected", fields)
	}

	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:      stdErr.Code,
		Operation: stdErr.Operation,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		RequestID: requestid.FromContext(r.Context()),
	}})
}
