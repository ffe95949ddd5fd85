// Package handler serves the HTML pages, HTMX partials and JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/habitual/internal/habit"
	"github.com/dukerupert/habitual/web"
)

const maxBodyBytes = 1 << 20

// ParseTemplates parses the embedded templates with the helper funcs they use.
func ParseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"humanizeTime": humanize.Time,
		"comma":        func(n int) string { return humanize.Comma(int64(n)) },
		"seq":          seq,
	}).ParseFS(web.Templates, "templates/*.html")
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON request body into v. Requiring the JSON media type keeps
// cookie-authenticated API writes out of reach of cross-site form posts.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// opStatus maps a habit.Service error onto an HTTP status and user-facing message.
func opStatus(err error) (int, string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, habit.ErrNoIdentity):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, habit.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, habit.ErrNotFound):
		status = http.StatusNotFound
	}
	var opErr *habit.OpError
	if errors.As(err, &opErr) {
		return status, opErr.Message
	}
	return status, "internal error"
}

func writeOpError(w http.ResponseWriter, err error) {
	status, msg := opStatus(err)
	writeError(w, status, msg)
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
