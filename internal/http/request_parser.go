package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"blackout/internal/core"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// recordRequest is the body of create and update calls. "data" is accepted
// as another name for "date".
type recordRequest struct {
	Value       *core.Money `json:"value"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        *core.Date  `json:"date"`
	Data        *core.Date  `json:"data"`
}

// Fields converts the request into record fields. Missing values are left
// zero so that field validation reports them.
func (req recordRequest) Fields() core.Fields {
	f := core.Fields{
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
	}
	if req.Value != nil {
		f.Value = *req.Value
	}
	switch {
	case req.Date != nil && !req.Date.IsZero():
		f.Date = *req.Date
	case req.Data != nil:
		f.Date = *req.Data
	}
	return f
}

type registerRequest struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"dateOfBirth"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// decodeJSON reads one JSON object from the body into dst. Unknown fields
// are ignored; trailing data is not.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// parseID reads the {id} path segment.
func parseID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
