// Package httpx contains the JSON response and request helpers used by every
// handler.
package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// DetailResponse wraps a single record.
type DetailResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// DeleteResponse reports how many rows a delete removed.
type DeleteResponse struct {
	Success bool     `json:"success"`
	Deleted int64    `json:"deleted"`
	Blocked []string `json:"blocked,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and writes the error body. Unexpected
// errors are logged with their cause.
func WriteError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := apperr.StatusCode(err)
	body := ErrorResponse{Error: "internal server error"}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
		body.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError && log != nil {
		log.WithError(err).Error("request failed")
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// ReadBody reads the whole body and picks out its "action" field, for
// endpoints that multiplex several operations on one method.
func ReadBody(r *http.Request) ([]byte, string, error) {
	if r.Body == nil {
		return nil, "", nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", apperr.Validation("failed to read body: %v", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", nil
	}
	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, "", apperr.Validation("invalid JSON body: %v", err)
	}
	return raw, probe.Action, nil
}

// Bind decodes a body read by ReadBody into v.
func Bind(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// QueryInt64 returns the integer query parameter key, or 0.
func QueryInt64(r *http.Request, key string) int64 {
	n, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IDSelector is the delete body shape shared by all resources.
type IDSelector struct {
	ID            *int64  `json:"id"`
	IDs           []int64 `json:"ids"`
	HiddenBookIDs []int64 `json:"hidden_book_ids"`
}

// Targets returns the ids addressed by the selector, single id first.
func (s IDSelector) Targets() []int64 {
	if s.ID != nil {
		return []int64{*s.ID}
	}
	ids := make([]int64, 0, len(s.IDs))
	for _, id := range s.IDs {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
