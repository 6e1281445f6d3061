package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
	"github.com/StricklySoft/admingate/pkg/records"
)

type envelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

// writeError writes err with the status of its code. Server-side failures
// are logged and their messages replaced.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()

	body := errorBody{
		Error:     e.Message,
		Code:      e.Code.String(),
		RequestID: RequestIDFromContext(r.Context()),
	}
	if sserr.IsServerError(e) {
		s.logger.ErrorContext(r.Context(), "adminapi: request failed",
			"table", r.PathValue("table"),
			"code", e.Code.String(),
			"error", err,
		)
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

// readBody decodes a JSON object body. An empty body is an empty record.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (records.Record, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, sserr.Newf(sserr.CodeValidation, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, sserr.Wrap(err, sserr.CodeValidation, "failed to read request body")
	}
	body := records.Record{}
	if len(data) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat, "invalid JSON body")
	}
	return body, nil
}

// idString renders a JSON id value; numbers arrive as float64.
func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
