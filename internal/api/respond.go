package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/apperror"
)

// maxJSONBody bounds JSON request bodies; multipart uploads have their own
// limit.
const maxJSONBody = 1 << 20

var (
	errInvalidBody = apperror.BadRequest("Invalid request body")
	errInvalidID   = apperror.BadRequest("Invalid ID")
)

// envelope is the shape of every response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
	Errors  any    `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Message: message, Data: data})
}

// respondError is the single place errors become responses. Unclassified
// errors are logged and reported as a bare 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperror.From(err)
	if !ok || e.Kind == apperror.KindInternal {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	message := e.Message
	if e.Kind == apperror.KindInternal {
		message = "Internal Server Error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.Status())
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message, Errors: e.Details})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}

// pathInt parses a numeric path segment.
func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, errInvalidID
	}
	return n, nil
}
