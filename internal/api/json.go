package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"elasticroute/internal/evol"
	"elasticroute/internal/store"
	"elasticroute/internal/tsp"
	"elasticroute/internal/vrp"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps err onto a problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := classify(err)
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, vrp.ErrValidation):
		return http.StatusBadRequest, "Invalid model"
	case errors.Is(err, vrp.ErrConfiguration), errors.Is(err, evol.ErrInvalidConfig):
		return http.StatusUnprocessableEntity, "Invalid solver configuration"
	case errors.Is(err, tsp.ErrEmpty), errors.Is(err, tsp.ErrUnknownNode), errors.Is(err, tsp.ErrBadCost),
		errors.Is(err, tsp.ErrUndefinedCost), errors.Is(err, tsp.ErrNoCoordinates), errors.Is(err, tsp.ErrRoundTrip):
		return http.StatusBadRequest, "Invalid tour"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Conflict"
	}
	return http.StatusInternalServerError, "Internal error"
}
