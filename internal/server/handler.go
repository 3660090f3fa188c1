// Package server provides the HTTP and WebSocket helpers of the status server.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-voicegate/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

// validate is the shared validator instance for request validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use query parameter names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("query"); name != "" {
			return name
		}
		return fld.Name
	})
}

// WSCommand is a message sent by a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventQuery selects a page of the event log.
type EventQuery struct {
	Limit  int                 `query:"limit" validate:"gte=1,lte=500"`
	Offset int                 `query:"offset" validate:"gte=0"`
	Filter eventlog.TypeFilter `query:"type" validate:"omitempty,oneof=session upload"`
}

// EventsResponse is the body of the events endpoint.
type EventsResponse struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
}

// ParseEventQuery reads and validates the event query parameters of r.
func ParseEventQuery(r *http.Request) (EventQuery, error) {
	q := EventQuery{Limit: 50}
	values := r.URL.Query()

	verr := types.NewValidationError()
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add(name, "must be an integer", raw)
			continue
		}
		*dst = n
	}
	q.Filter = eventlog.TypeFilter(values.Get("type"))
	if verr.HasErrors() {
		return q, verr
	}

	if err := validate.Struct(&q); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return q, err
		}
		for _, e := range validationErrors {
			verr.Add(e.Field(), formatValidationMessage(e), e.Value())
		}
		return q, verr
	}
	return q, nil
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError writes err as a JSON error body. Validation errors keep their field list.
func WriteError(w http.ResponseWriter, status int, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		WriteJSON(w, status, map[string]any{"error": verr.Error(), "fields": verr.Errors})
		return
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(e.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
